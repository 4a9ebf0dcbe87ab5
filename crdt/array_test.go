package crdt

import (
	"testing"

	"ycrdt/codec"
	"ycrdt/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayInsertGetDelete(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	arr := doc.GetArray("items")

	require.NoError(t, arr.InsertValues(0, "a", "b", "c"))
	assert.Equal(t, []any{"a", "b", "c"}, arr.ToSlice())

	v, err := arr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, arr.DeleteRange(1, 1))
	assert.Equal(t, []any{"a", "c"}, arr.ToSlice())
}

func TestArrayGetOutOfRange(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	arr := doc.GetArray("items")
	_, err := arr.Get(0)
	assert.Error(t, err)
}

func TestArrayPushEmbedCreatesUsableNestedText(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	arr := doc.GetArray("items")

	var handle any
	require.NoError(t, doc.Transact("", func(tx *Transaction) error {
		h, err := arr.PushEmbed(tx, common.NodeTypeText)
		handle = h
		return err
	}))

	nested, ok := handle.(*Text)
	require.True(t, ok)
	require.NoError(t, nested.InsertText(0, "nested"))
	assert.Equal(t, "nested", nested.String())
	assert.Equal(t, 1, arr.Length())
}

func TestArrayPushEmbedCreatesUsableSubDoc(t *testing.T) {
	doc := NewDoc(common.ClientID(1))
	arr := doc.GetArray("items")

	var handle any
	require.NoError(t, doc.Transact("", func(tx *Transaction) error {
		h, err := arr.PushEmbed(tx, common.NodeTypeSubDoc)
		handle = h
		return err
	}))

	sub, ok := handle.(*Doc)
	require.True(t, ok)
	require.NotSame(t, doc, sub)

	require.NoError(t, sub.GetText("content").InsertText(0, "inside sub-doc"))
	assert.Equal(t, "inside sub-doc", sub.GetText("content").String())
	assert.Equal(t, "", doc.GetText("content").String(), "sub-doc state must not leak into the parent's own roots")

	v, err := arr.Get(0)
	require.NoError(t, err)
	embed, ok := v.(codec.Embed)
	require.True(t, ok)
	assert.Equal(t, common.NodeTypeSubDoc, embed.Kind)

	resolved, ok := doc.SubDoc(embed.ID)
	require.True(t, ok)
	assert.Same(t, sub, resolved)
}

func TestArrayConvergesConcurrentInsertsAtSamePosition(t *testing.T) {
	a := NewDoc(common.ClientID(1))
	b := NewDoc(common.ClientID(2))

	require.NoError(t, a.GetArray("items").InsertValues(0, "a1"))
	require.NoError(t, b.GetArray("items").InsertValues(0, "b1"))

	require.NoError(t, a.ApplyUpdate(b.EncodeStateAsUpdate()))
	require.NoError(t, b.ApplyUpdate(a.EncodeStateAsUpdate()))

	assert.Equal(t, a.GetArray("items").ToSlice(), b.GetArray("items").ToSlice())
}
