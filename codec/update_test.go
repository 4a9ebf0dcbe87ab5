package codec

import (
	"testing"

	"ycrdt/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUpdateRoundTrip(t *testing.T) {
	ops := []OpRecord{
		{
			ID:         common.OpID{Client: 1, Clock: 0},
			ParentName: "root",
			Kind:       common.OperationTypeInsert,
			NodeType:   common.NodeTypeText,
			Content:    rune('a'),
		},
		{
			ID:          common.OpID{Client: 1, Clock: 1},
			ParentName:  "root",
			Kind:        common.OperationTypeDelete,
			NodeType:    common.NodeTypeText,
			DeleteCount: 1,
		},
		{
			ID:         common.OpID{Client: 2, Clock: 0},
			ParentName: "attrs",
			Kind:       common.OperationTypeFormat,
			NodeType:   common.NodeTypeText,
			Key:        "0",
			Attrs:      map[string]any{"bold": true},
		},
	}

	data := EncodeUpdate(ops)
	decoded, err := DecodeUpdate(data)
	require.NoError(t, err)
	require.Len(t, decoded, len(ops))
	for i, op := range ops {
		assert.Equal(t, op.ID, decoded[i].ID)
		assert.Equal(t, op.ParentName, decoded[i].ParentName)
		assert.Equal(t, op.Kind, decoded[i].Kind)
		assert.Equal(t, op.Content, decoded[i].Content)
		assert.Equal(t, op.Key, decoded[i].Key)
	}
}

func TestDecodeUpdateRejectsTruncated(t *testing.T) {
	_, err := DecodeUpdate([]byte{0x05})
	assert.Error(t, err)
}

func TestMergeUpdatesConcatenatesInOrder(t *testing.T) {
	a := EncodeUpdate([]OpRecord{{ID: common.OpID{Client: 1, Clock: 0}, ParentName: "t", Kind: common.OperationTypeInsert}})
	b := EncodeUpdate([]OpRecord{{ID: common.OpID{Client: 2, Clock: 0}, ParentName: "t", Kind: common.OperationTypeInsert}})

	merged, err := MergeUpdates([][]byte{a, b})
	require.NoError(t, err)

	ops, err := DecodeUpdate(merged)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, common.ClientID(1), ops[0].ID.Client)
	assert.Equal(t, common.ClientID(2), ops[1].ID.Client)
}
