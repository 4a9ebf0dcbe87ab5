package crdt

import (
	"testing"

	"ycrdt/codec"
	"ycrdt/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeUpdateForTest(update []byte) ([]codec.OpRecord, error) {
	return codec.DecodeUpdate(update)
}

func opKeys(ops []codec.OpRecord) []string {
	var keys []string
	for _, op := range ops {
		if op.Key != "" {
			keys = append(keys, op.Key)
		}
	}
	return keys
}

func TestMapSetGetDelete(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	m := doc.GetMap("config")

	require.NoError(t, m.SetValue("theme", "dark"))
	v, ok := m.Get("theme")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, m.DeleteKey("theme"))
	_, ok = m.Get("theme")
	assert.False(t, ok)
}

func TestMapDeleteRetainsTombstoneForConvergence(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	m := doc.GetMap("config")
	require.NoError(t, m.SetValue("k", "v"))
	require.NoError(t, m.DeleteKey("k"))

	// The deleted key must still surface in allOps (via EncodeStateAsUpdate)
	// so a replica that applies this Doc's full state later can resolve a
	// concurrent write using the same (clock, client) winner, rather than
	// silently losing the deletion.
	ops, err := decodeUpdateForTest(doc.EncodeStateAsUpdate())
	require.NoError(t, err)
	assert.Contains(t, opKeys(ops), "k")
}

func TestMapLastWriterWinsByClockThenClient(t *testing.T) {
	a := NewDoc(common.ClientID(1))
	b := NewDoc(common.ClientID(2))

	require.NoError(t, a.GetMap("config").SetValue("theme", "dark"))
	require.NoError(t, b.GetMap("config").SetValue("theme", "light"))

	require.NoError(t, a.ApplyUpdate(b.EncodeStateAsUpdate()))
	require.NoError(t, b.ApplyUpdate(a.EncodeStateAsUpdate()))

	va, _ := a.GetMap("config").Get("theme")
	vb, _ := b.GetMap("config").Get("theme")
	assert.Equal(t, va, vb, "both replicas must converge on the same winning value")
	assert.Equal(t, "light", va, "equal clocks, so the higher client id (2) wins")
}

func TestMapSetEmbedCreatesUsableNestedMap(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	m := doc.GetMap("config")

	var handle any
	require.NoError(t, doc.Transact("", func(tx *Transaction) error {
		h, err := m.SetEmbed(tx, "nested", common.NodeTypeMap)
		handle = h
		return err
	}))

	nested, ok := handle.(*Map)
	require.True(t, ok)
	require.NoError(t, nested.SetValue("inner", "value"))
	v, ok := nested.Get("inner")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
