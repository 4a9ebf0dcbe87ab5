package crdt

import (
	"ycrdt/codec"
	"ycrdt/common"
)

// Array is a YATA sequence of polymorphic values: string, float64, bool,
// nil, or an embedded shared type (codec.Embed).
type Array struct {
	eventEmitter
	d   *Doc
	seq *sequence
}

func newArray(d *Doc, seq *sequence) *Array {
	return &Array{eventEmitter: newEventEmitter(), d: d, seq: seq}
}

func (a *Array) nodeType() common.NodeType { return common.NodeTypeArray }
func (a *Array) nodeID() common.OpID       { return a.seq.parentID }
func (a *Array) doc() *Doc                 { return a.d }

// Length returns the number of visible elements.
func (a *Array) Length() int { return a.seq.length() }

// Get returns the visible element at index.
func (a *Array) Get(index int) (any, error) {
	it := a.seq.nthVisible(index)
	if it == nil {
		return nil, common.ErrInvalidArgument{Message: "array index out of range"}
	}
	return it.content, nil
}

// ToSlice materializes every visible element in order.
func (a *Array) ToSlice() []any {
	items := a.seq.visibleItems()
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it.content
	}
	return out
}

// Insert inserts values at index within tx.
func (a *Array) Insert(tx *Transaction, index int, values ...any) error {
	if err := a.d.checkOpen("Array"); err != nil {
		return err
	}
	if index < 0 || index > a.seq.length() {
		return common.ErrInvalidArgument{Message: "array insert index out of range"}
	}
	if len(values) == 0 {
		return nil
	}
	pos := index
	for _, v := range values {
		it := a.seq.insertVisible(a.d, pos-1, v)
		tx.recordInsert(a.seq, it)
		pos++
	}
	tx.recordChange(&a.eventEmitter, a, Change{Kind: ChangeInsert, Values: values})
	return nil
}

// InsertValues is the implicit-transaction convenience form of Insert.
func (a *Array) InsertValues(index int, values ...any) error {
	return a.d.Transact("", func(tx *Transaction) error {
		return a.Insert(tx, index, values...)
	})
}

// Delete tombstones count elements starting at index.
func (a *Array) Delete(tx *Transaction, index, count int) error {
	if err := a.d.checkOpen("Array"); err != nil {
		return err
	}
	if index < 0 || count < 0 || index+count > a.seq.length() {
		return common.ErrInvalidArgument{Message: "array delete range out of range"}
	}
	if count == 0 {
		return nil
	}
	ids := a.seq.deleteRange(index, count)
	for _, id := range ids {
		tx.recordOp(codec.OpRecord{
			ID:          id,
			ParentName:  a.seq.parentName,
			ParentID:    a.seq.parentID,
			Kind:        common.OperationTypeDelete,
			NodeType:    common.NodeTypeArray,
			DeleteCount: 1,
		})
	}
	tx.recordChange(&a.eventEmitter, a, Change{Kind: ChangeDelete, Length: count})
	return nil
}

// DeleteRange is the implicit-transaction convenience form of Delete.
func (a *Array) DeleteRange(index, count int) error {
	return a.d.Transact("", func(tx *Transaction) error {
		return a.Delete(tx, index, count)
	})
}

// PushEmbed inserts a brand-new nested shared type at the end of the array
// and returns its handle, registering it in the Doc's node index under the
// new item's own OpID so it can be addressed by Embed in nested writes. A
// remote replica applying the update receives only the codec.Embed value;
// no nested handle is created there.
func (a *Array) PushEmbed(tx *Transaction, kind common.NodeType) (any, error) {
	id := a.d.nextLocalID()
	handle := a.d.createNested(id, kind)
	it := a.seq.insertVisibleWithID(a.d, a.seq.length()-1, id, codec.Embed{Kind: kind, ID: id})
	tx.recordInsert(a.seq, it)
	tx.recordChange(&a.eventEmitter, a, Change{Kind: ChangeInsert, Values: []any{codec.Embed{Kind: kind, ID: id}}})
	return handle, nil
}
