package server

import (
	"ycrdt/codec"
	"ycrdt/common"
)

// MessageType is the top-level frame discriminator.
type MessageType uint64

const (
	MsgSync                MessageType = 0
	MsgAwareness           MessageType = 1
	MsgAuth                MessageType = 2
	MsgQueryAwareness      MessageType = 3
	MsgSyncReply           MessageType = 4
	MsgStateless           MessageType = 5
	MsgBroadcastStateless  MessageType = 6
	MsgClose               MessageType = 7
	MsgSyncStatus          MessageType = 8
)

// SyncSubType discriminates the payload of a SYNC/SYNC_REPLY frame.
type SyncSubType uint64

const (
	SyncStep1  SyncSubType = 0
	SyncStep2  SyncSubType = 1
	SyncUpdate SyncSubType = 2
)

// Frame is a decoded wire message: [docName: VarString][type: VarUint][payload: bytes].
type Frame struct {
	DocName string
	Type    MessageType
	Payload []byte
}

// EncodeFrame serializes f into the wire frame format.
func EncodeFrame(f Frame) []byte {
	w := codec.NewWriter()
	w.WriteVarString(f.DocName)
	w.WriteVarUint(uint64(f.Type))
	w.WriteBytes(f.Payload)
	return w.Bytes()
}

// DecodeFrame parses bytes written by EncodeFrame.
func DecodeFrame(data []byte) (Frame, error) {
	r := codec.NewReader(data)
	name, err := r.ReadVarString()
	if err != nil {
		return Frame{}, common.ErrInvalidUpdate{Reason: "frame: " + err.Error()}
	}
	typ, err := r.ReadVarUint()
	if err != nil {
		return Frame{}, common.ErrInvalidUpdate{Reason: "frame: " + err.Error()}
	}
	payload, err := r.ReadBytes()
	if err != nil {
		return Frame{}, common.ErrInvalidUpdate{Reason: "frame: " + err.Error()}
	}
	return Frame{DocName: name, Type: MessageType(typ), Payload: payload}, nil
}

// EncodeSyncPayload wraps a sync sub-message: [subType: VarUint][...].
func EncodeSyncPayload(sub SyncSubType, body []byte) []byte {
	w := codec.NewWriter()
	w.WriteVarUint(uint64(sub))
	w.WriteBytes(body)
	return w.Bytes()
}

// DecodeSyncPayload reverses EncodeSyncPayload.
func DecodeSyncPayload(payload []byte) (SyncSubType, []byte, error) {
	r := codec.NewReader(payload)
	sub, err := r.ReadVarUint()
	if err != nil {
		return 0, nil, common.ErrInvalidUpdate{Reason: "sync payload: " + err.Error()}
	}
	body, err := r.ReadBytes()
	if err != nil {
		return 0, nil, common.ErrInvalidUpdate{Reason: "sync payload: " + err.Error()}
	}
	return SyncSubType(sub), body, nil
}

// EncodeSyncStatus encodes the [boolean: VarUint] payload of SYNC_STATUS.
func EncodeSyncStatus(synced bool) []byte {
	w := codec.NewWriter()
	if synced {
		w.WriteVarUint(1)
	} else {
		w.WriteVarUint(0)
	}
	return w.Bytes()
}

// EncodeClose encodes the [code: VarUint][reason: VarString] payload of CLOSE.
func EncodeClose(code uint16, reason string) []byte {
	w := codec.NewWriter()
	w.WriteVarUint(uint64(code))
	w.WriteVarString(reason)
	return w.Bytes()
}
