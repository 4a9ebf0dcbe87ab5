package codec

import (
	"testing"

	"ycrdt/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValueScalars(t *testing.T) {
	cases := []any{nil, true, false, 3.5, "hello", rune('x')}
	for _, v := range cases {
		w := NewWriter()
		require.NoError(t, EncodeValue(w, v))
		r := NewReader(w.Bytes())
		got, err := DecodeValue(r)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEncodeDecodeValueRunePreservesType(t *testing.T) {
	w := NewWriter()
	require.NoError(t, EncodeValue(w, rune('é')))
	r := NewReader(w.Bytes())
	got, err := DecodeValue(r)
	require.NoError(t, err)
	_, isString := got.(string)
	assert.False(t, isString, "a decoded rune must not come back as a string")
	assert.Equal(t, rune('é'), got)
}

func TestEncodeDecodeValueEmbed(t *testing.T) {
	embed := Embed{Kind: common.NodeTypeText, ID: common.OpID{Client: 7, Clock: 42}, Tag: "bold"}
	w := NewWriter()
	require.NoError(t, EncodeValue(w, embed))
	r := NewReader(w.Bytes())
	got, err := DecodeValue(r)
	require.NoError(t, err)
	assert.Equal(t, embed, got)
}
