package crdt

import (
	"testing"

	"ycrdt/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextInsertAndDelete(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	text := doc.GetText("content")

	require.NoError(t, text.InsertText(0, "hello"))
	assert.Equal(t, "hello", text.String())
	assert.Equal(t, 5, text.Length())

	require.NoError(t, text.DeleteText(1, 3))
	assert.Equal(t, "ho", text.String())
}

func TestTextInsertOutOfRange(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	text := doc.GetText("content")
	err := text.InsertText(5, "x")
	assert.Error(t, err)
}

func TestTextObserveFiresOncePerTransaction(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	text := doc.GetText("content")

	var events []Event
	text.Observe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, doc.Transact("user-1", func(tx *Transaction) error {
		if err := text.Insert(tx, 0, "ab"); err != nil {
			return err
		}
		return text.Insert(tx, 2, "cd")
	}))

	require.Len(t, events, 1)
	assert.Equal(t, "user-1", events[0].Origin)
	assert.Len(t, events[0].Changes, 2)
	assert.Equal(t, "abcd", text.String())
}

func TestTextConvergesAcrossReplicasRegardlessOfApplyOrder(t *testing.T) {
	a := NewDoc(common.ClientID(1))
	b := NewDoc(common.ClientID(2))

	require.NoError(t, a.GetText("content").InsertText(0, "hello"))
	require.NoError(t, b.GetText("content").InsertText(0, "world"))

	updateA := a.EncodeStateAsUpdate()
	updateB := b.EncodeStateAsUpdate()

	require.NoError(t, a.ApplyUpdate(updateB))
	require.NoError(t, b.ApplyUpdate(updateA))

	assert.Equal(t, a.GetText("content").String(), b.GetText("content").String())
	assert.Equal(t, a.EncodeStateAsUpdate(), b.EncodeStateAsUpdate(), "byte-identical EncodeStateAsUpdate regardless of integration order")
}

func TestTextRemoteInsertPreservesCharacters(t *testing.T) {
	a := NewDoc(common.ClientID(1))
	b := NewDoc(common.ClientID(2))

	require.NoError(t, a.GetText("content").InsertText(0, "café"))
	require.NoError(t, b.ApplyUpdate(a.EncodeStateAsUpdate()))

	assert.Equal(t, "café", b.GetText("content").String())
}
