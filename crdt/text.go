package crdt

import (
	"strconv"
	"strings"

	"ycrdt/codec"
	"ycrdt/common"
)

// Text is a YATA sequence of rune-indexed characters with per-range
// formatting attributes. Formatting is modeled as a Format op applied to
// a [from, to) visible range rather than as a separate attribute run
// structure, which keeps the wire shape uniform with Map/XmlElement
// attribute writes (codec.OpRecord.Attrs).
type Text struct {
	eventEmitter
	d   *Doc
	seq *sequence
}

func newText(d *Doc, seq *sequence) *Text {
	return &Text{eventEmitter: newEventEmitter(), d: d, seq: seq}
}

func (t *Text) nodeType() common.NodeType { return common.NodeTypeText }
func (t *Text) nodeID() common.OpID       { return t.seq.parentID }
func (t *Text) doc() *Doc                 { return t.d }

// String returns the current visible contents.
func (t *Text) String() string {
	var b strings.Builder
	for _, it := range t.seq.visibleItems() {
		if r, ok := it.content.(rune); ok {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Length returns the number of visible rune-indexed characters.
func (t *Text) Length() int { return t.seq.length() }

// Insert inserts value at index within tx, splitting it into one sequence
// item per rune; this keeps YATA's origin-based ordering exact for
// concurrent inserts without needing run-splitting logic.
func (t *Text) Insert(tx *Transaction, index int, value string) error {
	if err := t.d.checkOpen("Text"); err != nil {
		return err
	}
	if index < 0 || index > t.seq.length() {
		return common.ErrInvalidArgument{Message: "text insert index out of range"}
	}
	if value == "" {
		return nil
	}
	pos := index
	for _, r := range value {
		it := t.seq.insertVisible(t.d, pos-1, r)
		tx.recordInsert(t.seq, it)
		pos++
	}
	tx.recordChange(&t.eventEmitter, t, Change{Kind: ChangeInsert, Values: runesToAny(value)})
	return nil
}

// InsertText is the implicit-transaction convenience form of Insert.
func (t *Text) InsertText(index int, value string) error {
	return t.d.Transact("", func(tx *Transaction) error {
		return t.Insert(tx, index, value)
	})
}

// Delete tombstones count visible characters starting at index.
func (t *Text) Delete(tx *Transaction, index, count int) error {
	if err := t.d.checkOpen("Text"); err != nil {
		return err
	}
	if index < 0 || count < 0 || index+count > t.seq.length() {
		return common.ErrInvalidArgument{Message: "text delete range out of range"}
	}
	if count == 0 {
		return nil
	}
	ids := t.seq.deleteRange(index, count)
	for _, id := range ids {
		tx.recordOp(codec.OpRecord{
			ID:          id,
			ParentName:  t.seq.parentName,
			ParentID:    t.seq.parentID,
			Kind:        common.OperationTypeDelete,
			NodeType:    common.NodeTypeText,
			DeleteCount: 1,
		})
	}
	tx.recordChange(&t.eventEmitter, t, Change{Kind: ChangeDelete, Length: count})
	return nil
}

// DeleteText is the implicit-transaction convenience form of Delete.
func (t *Text) DeleteText(index, count int) error {
	return t.d.Transact("", func(tx *Transaction) error {
		return t.Delete(tx, index, count)
	})
}

// Format applies attrs to the visible range [index, index+count) as a
// Format op. There is no queryable per-character attribute map; the
// emitted event and op both carry the range, and a reader reconstructs
// current formatting from the event stream.
func (t *Text) Format(tx *Transaction, index, count int, attrs map[string]any) error {
	if index < 0 || count < 0 || index+count > t.seq.length() {
		return common.ErrInvalidArgument{Message: "text format range out of range"}
	}
	tx.recordOp(codec.OpRecord{
		ID:         t.d.nextLocalID(),
		ParentName: t.seq.parentName,
		ParentID:   t.seq.parentID,
		Kind:       common.OperationTypeFormat,
		NodeType:   common.NodeTypeText,
		Attrs:      attrs,
		DeleteCount: uint64(count),
		Key:        indexKey(index),
	})
	tx.recordChange(&t.eventEmitter, t, Change{Kind: ChangeAttribute, Length: count, Attributes: attrs})
	return nil
}

func runesToAny(s string) []any {
	out := make([]any, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	return out
}

func indexKey(index int) string {
	return strconv.Itoa(index)
}
