package server

import (
	"testing"

	"ycrdt/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	f := Frame{DocName: "room-1", Type: MsgSync, Payload: []byte{1, 2, 3}}
	got, err := DecodeFrame(EncodeFrame(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeFrameRejectsTruncatedBytes(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff})
	assert.Error(t, err)
}

func TestEncodeDecodeSyncPayloadRoundTrip(t *testing.T) {
	sub, body, err := DecodeSyncPayload(EncodeSyncPayload(SyncStep2, []byte("state")))
	require.NoError(t, err)
	assert.Equal(t, SyncStep2, sub)
	assert.Equal(t, []byte("state"), body)
}

func TestEncodeSyncStatusEncodesBooleanAsVarUint(t *testing.T) {
	trueBytes := EncodeSyncStatus(true)
	falseBytes := EncodeSyncStatus(false)
	assert.NotEqual(t, trueBytes, falseBytes)

	r := codec.NewReader(trueBytes)
	v, err := r.ReadVarUint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	r = codec.NewReader(falseBytes)
	v, err = r.ReadVarUint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestEncodeCloseEncodesCodeAndReason(t *testing.T) {
	payload := EncodeClose(1008, "policy violation")
	r := codec.NewReader(payload)

	code, err := r.ReadVarUint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1008), code)

	reason, err := r.ReadVarString()
	require.NoError(t, err)
	assert.Equal(t, "policy violation", reason)
}
