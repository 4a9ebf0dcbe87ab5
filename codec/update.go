package codec

import (
	"fmt"

	"ycrdt/common"
)

// OpRecord is the wire-level, decoded form of a single CRDT operation: one
// YATA insert, one tombstoning delete run, or one LWW-map/attribute format
// write. crdt.Doc translates between these and its live item/arena graph
// (crdt/encode.go); this package only knows how to move OpRecords to and
// from bytes.
type OpRecord struct {
	ID common.OpID

	// ParentName addresses a root-level shared type by its Doc-registered
	// name; ParentID addresses a nested node by the OpID of the item/node
	// that created it. Exactly one is set.
	ParentName string
	ParentID   common.OpID

	LeftOrigin  common.OpID
	RightOrigin common.OpID

	Kind     common.OperationType
	NodeType common.NodeType // selects sequence vs Map/attribute handling for every Kind

	Content any // decoded scalar/Embed payload; nil for Delete

	// Key addresses a Map entry (Insert/Delete) or an XML/Text attribute
	// name (Format).
	Key string

	// DeleteCount is the number of consecutive sequence ids, starting at
	// ID, tombstoned by a Delete op against a sequence-shaped parent.
	DeleteCount uint64

	// Attrs carries Format-op attribute writes, or XmlElement initial
	// attributes on Insert.
	Attrs map[string]any
}

const (
	opTagInsert = 0
	opTagDelete = 1
	opTagFormat = 2
)

// EncodeUpdate serializes ops in the order given. Order matters: a
// dependent op (e.g. one whose LeftOrigin is another op in this same
// update) must follow what it depends on.
func EncodeUpdate(ops []OpRecord) []byte {
	w := NewWriter()
	w.WriteVarUint(uint64(len(ops)))
	for _, op := range ops {
		encodeOpRecord(w, op)
	}
	return w.Bytes()
}

func encodeOpRecord(w *Writer, op OpRecord) {
	switch op.Kind {
	case common.OperationTypeInsert:
		w.WriteByte(opTagInsert)
	case common.OperationTypeDelete:
		w.WriteByte(opTagDelete)
	case common.OperationTypeFormat:
		w.WriteByte(opTagFormat)
	default:
		w.WriteByte(opTagInsert)
	}

	writeOpID(w, op.ID)

	if op.ParentName != "" {
		w.WriteBool(true)
		w.WriteVarString(op.ParentName)
	} else {
		w.WriteBool(false)
		writeOpID(w, op.ParentID)
	}

	writeOpID(w, op.LeftOrigin)
	writeOpID(w, op.RightOrigin)
	w.WriteVarString(string(op.NodeType))
	w.WriteVarString(op.Key)
	w.WriteVarUint(op.DeleteCount)

	_ = EncodeValue(w, op.Content)

	w.WriteVarUint(uint64(len(op.Attrs)))
	for k, v := range op.Attrs {
		w.WriteVarString(k)
		_ = EncodeValue(w, v)
	}
}

func writeOpID(w *Writer, id common.OpID) {
	w.WriteVarUint(uint64(id.Client))
	w.WriteVarUint(uint64(id.Clock))
}

func readOpID(r *Reader) (common.OpID, error) {
	client, err := r.ReadVarUint()
	if err != nil {
		return common.OpID{}, err
	}
	clock, err := r.ReadVarUint()
	if err != nil {
		return common.OpID{}, err
	}
	return common.OpID{Client: common.ClientID(client), Clock: common.Clock(clock)}, nil
}

// DecodeUpdate parses bytes written by EncodeUpdate.
func DecodeUpdate(data []byte) ([]OpRecord, error) {
	r := NewReader(data)
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, fmt.Errorf("codec: decode update header: %w", err)
	}
	ops := make([]OpRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		op, err := decodeOpRecord(r)
		if err != nil {
			return nil, fmt.Errorf("codec: decode update op %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func decodeOpRecord(r *Reader) (OpRecord, error) {
	var op OpRecord

	tag, err := r.ReadByte()
	if err != nil {
		return op, err
	}
	switch tag {
	case opTagInsert:
		op.Kind = common.OperationTypeInsert
	case opTagDelete:
		op.Kind = common.OperationTypeDelete
	case opTagFormat:
		op.Kind = common.OperationTypeFormat
	default:
		return op, fmt.Errorf("codec: unknown op tag %d", tag)
	}

	if op.ID, err = readOpID(r); err != nil {
		return op, err
	}

	named, err := r.ReadBool()
	if err != nil {
		return op, err
	}
	if named {
		if op.ParentName, err = r.ReadVarString(); err != nil {
			return op, err
		}
	} else if op.ParentID, err = readOpID(r); err != nil {
		return op, err
	}

	if op.LeftOrigin, err = readOpID(r); err != nil {
		return op, err
	}
	if op.RightOrigin, err = readOpID(r); err != nil {
		return op, err
	}
	nt, err := r.ReadVarString()
	if err != nil {
		return op, err
	}
	op.NodeType = common.NodeType(nt)

	if op.Key, err = r.ReadVarString(); err != nil {
		return op, err
	}
	if op.DeleteCount, err = r.ReadVarUint(); err != nil {
		return op, err
	}

	if op.Content, err = DecodeValue(r); err != nil {
		return op, err
	}

	attrCount, err := r.ReadVarUint()
	if err != nil {
		return op, err
	}
	if attrCount > 0 {
		op.Attrs = make(map[string]any, attrCount)
		for i := uint64(0); i < attrCount; i++ {
			k, err := r.ReadVarString()
			if err != nil {
				return op, err
			}
			v, err := DecodeValue(r)
			if err != nil {
				return op, err
			}
			op.Attrs[k] = v
		}
	}

	return op, nil
}

// MergeUpdates concatenates the op streams of several updates into one,
// preserving relative order within each input. Applying a merged update
// must be equivalent to applying each input update in turn; crdt.Doc
// enforces the per-op idempotence (skip ids already seen) that makes
// this safe even when inputs overlap.
func MergeUpdates(updates [][]byte) ([]byte, error) {
	var all []OpRecord
	for i, u := range updates {
		ops, err := DecodeUpdate(u)
		if err != nil {
			return nil, fmt.Errorf("codec: merge update %d: %w", i, err)
		}
		all = append(all, ops...)
	}
	return EncodeUpdate(all), nil
}
