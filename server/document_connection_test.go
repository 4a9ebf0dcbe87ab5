package server

import (
	"context"
	"testing"

	"ycrdt/codec"
	"ycrdt/common"
	"ycrdt/crdt"
	"ycrdt/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(t *testing.T, store persistence.Store) (*Registry, *DocumentEntry) {
	t.Helper()
	r := NewRegistry(DefaultConfig(), func(ctx context.Context, name string) (*crdt.Doc, error) {
		return crdt.NewDoc(common.NewClientID()), nil
	}, nil, store, nil, nil)

	entry, err := r.Open(context.Background(), "doc-1")
	require.NoError(t, err)
	return r, entry
}

func decodeFrames(t *testing.T, raw [][]byte) []Frame {
	t.Helper()
	frames := make([]Frame, 0, len(raw))
	for _, b := range raw {
		f, err := DecodeFrame(b)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

func TestNewDocumentConnectionSendsInitialSyncHandshake(t *testing.T) {
	r, entry := newTestEntry(t, nil)
	conn := newFakeConnection("c1")

	NewDocumentConnection(context.Background(), r, entry, conn, false)

	frames := decodeFrames(t, conn.messages())
	require.Len(t, frames, 3)

	sub0, _, err := DecodeSyncPayload(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, MsgSync, frames[0].Type)
	assert.Equal(t, SyncStep1, sub0)

	sub1, _, err := DecodeSyncPayload(frames[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, SyncStep2, sub1)

	assert.Equal(t, MsgAwareness, frames[2].Type)
}

func TestHandleSyncStep1TriggersSyncStatusTrue(t *testing.T) {
	r, entry := newTestEntry(t, nil)
	conn := newFakeConnection("c1")
	dc := NewDocumentConnection(context.Background(), r, entry, conn, false)

	emptySV := codec.EncodeStateVector(map[common.ClientID]common.Clock{})
	f := Frame{DocName: "doc-1", Type: MsgSync, Payload: EncodeSyncPayload(SyncStep1, emptySV)}
	require.NoError(t, dc.HandleFrame(context.Background(), f))

	frames := decodeFrames(t, conn.messages())
	var sawSyncStatusTrue bool
	for _, fr := range frames {
		if fr.Type == MsgSyncStatus {
			sawSyncStatusTrue = true
		}
	}
	assert.True(t, sawSyncStatusTrue)
}

func TestHandleSyncRejectsUpdateWhenReadOnly(t *testing.T) {
	r, entry := newTestEntry(t, nil)
	conn := newFakeConnection("c1")
	dc := NewDocumentConnection(context.Background(), r, entry, conn, true)

	other := crdt.NewDoc(common.ClientID(99))
	require.NoError(t, other.GetText("content").InsertText(0, "hi"))
	update := other.EncodeStateAsUpdate()

	f := Frame{DocName: "doc-1", Type: MsgSync, Payload: EncodeSyncPayload(SyncUpdate, update)}
	require.NoError(t, dc.HandleFrame(context.Background(), f))

	assert.Equal(t, "", entry.Doc.GetText("content").String(), "a read-only connection must not apply the update")

	frames := decodeFrames(t, conn.messages())
	var sawRejection bool
	for _, fr := range frames {
		if fr.Type == MsgSyncStatus {
			status, _, err := DecodeSyncPayload(fr.Payload)
			_ = status
			_ = err
			sawRejection = true
		}
	}
	assert.True(t, sawRejection)
}

func TestHandleSyncAppliesUpdateAndMarksDebouncerDirty(t *testing.T) {
	store := persistence.NewMemoryStore()
	r, entry := newTestEntry(t, store)
	conn := newFakeConnection("c1")
	dc := NewDocumentConnection(context.Background(), r, entry, conn, false)

	other := crdt.NewDoc(common.ClientID(99))
	require.NoError(t, other.GetText("content").InsertText(0, "hi"))
	update := other.EncodeStateAsUpdate()

	f := Frame{DocName: "doc-1", Type: MsgSync, Payload: EncodeSyncPayload(SyncUpdate, update)}
	require.NoError(t, dc.HandleFrame(context.Background(), f))

	assert.Equal(t, "hi", entry.Doc.GetText("content").String())

	entry.Debouncer.Stop(context.Background())
	_, stored, err := store.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, stored, "Stop flushes only a dirty debouncer, so a stored copy shows MarkDirty ran")
}

func TestCloseReleasesDocumentRefCount(t *testing.T) {
	r, entry := newTestEntry(t, nil)
	conn := newFakeConnection("c1")
	dc := NewDocumentConnection(context.Background(), r, entry, conn, false)

	assert.Equal(t, 1, r.Count())
	dc.Close(context.Background())
	assert.Equal(t, 0, r.Count())
}
