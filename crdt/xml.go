package crdt

import (
	"ycrdt/codec"
	"ycrdt/common"
)

// XmlFragment is an ordered sequence of XmlElement/XmlText children,
// addressed like Array but holding only codec.Embed values.
type XmlFragment struct {
	eventEmitter
	d   *Doc
	seq *sequence
}

func newXmlFragment(d *Doc, seq *sequence) *XmlFragment {
	return &XmlFragment{eventEmitter: newEventEmitter(), d: d, seq: seq}
}

func (f *XmlFragment) nodeType() common.NodeType { return common.NodeTypeXmlFrag }
func (f *XmlFragment) nodeID() common.OpID       { return f.seq.parentID }
func (f *XmlFragment) doc() *Doc                 { return f.d }

func (f *XmlFragment) Length() int { return f.seq.length() }

// InsertElement creates a new XmlElement child with the given tag at
// index and returns its handle.
func (f *XmlFragment) InsertElement(tx *Transaction, index int, tag string) (*XmlElement, error) {
	if index < 0 || index > f.seq.length() {
		return nil, common.ErrInvalidArgument{Message: "xml fragment insert index out of range"}
	}
	id := f.d.nextLocalID()
	elem := newXmlElement(f.d, id, tag, newNestedSequence(id))
	f.d.registerNode(id, elem)

	it := f.seq.insertVisibleWithID(f.d, index-1, id, codec.Embed{Kind: common.NodeTypeXmlElem, ID: id, Tag: tag})
	tx.recordInsert(f.seq, it)
	tx.recordChange(&f.eventEmitter, f, Change{Kind: ChangeInsert, Values: []any{elem}})
	return elem, nil
}

// Children returns the handles of every live child, in order.
func (f *XmlFragment) Children() []any {
	var out []any
	for _, it := range f.seq.visibleItems() {
		if embed, ok := it.content.(codec.Embed); ok {
			if n := f.d.lookupNode(embed.ID); n != nil {
				out = append(out, n)
			}
		}
	}
	return out
}

// XmlElement is an immutable-tag container with LWW attributes and an
// ordered child sequence.
type XmlElement struct {
	eventEmitter
	d    *Doc
	id   common.OpID
	tag  string
	attr *Map // reuses Map's LWW-by-(clock,client) semantics for attributes
	kids *XmlFragment
}

func newXmlElement(d *Doc, id common.OpID, tag string, kidsSeq *sequence) *XmlElement {
	e := &XmlElement{
		eventEmitter: newEventEmitter(),
		d:            d,
		id:           id,
		tag:          tag,
		attr:         newMap(d, id),
		kids:         newXmlFragment(d, kidsSeq),
	}
	return e
}

func (e *XmlElement) nodeType() common.NodeType { return common.NodeTypeXmlElem }
func (e *XmlElement) nodeID() common.OpID       { return e.id }
func (e *XmlElement) doc() *Doc                 { return e.d }

func (e *XmlElement) Tag() string { return e.tag }

func (e *XmlElement) SetAttribute(tx *Transaction, name string, value any) error {
	return e.attr.Set(tx, name, value)
}

func (e *XmlElement) Attribute(name string) (any, bool) { return e.attr.Get(name) }

func (e *XmlElement) Children() *XmlFragment { return e.kids }

// XmlText is a Text-shaped sequence. InsertWithAttributes additionally
// appends one XmlElement per non-null attribute to a parent fragment.
type XmlText struct {
	*Text
}

func newXmlText(d *Doc, seq *sequence) *XmlText {
	return &XmlText{Text: newText(d, seq)}
}

func (t *XmlText) nodeType() common.NodeType { return common.NodeTypeXmlText }

// InsertWithAttributes inserts value as plain text into t, then - for
// every attribute with a non-null value - appends an empty XmlElement
// tagged with the attribute name at the end of parent. The text is not
// moved into those elements, and their order follows map iteration, so
// it is not defined.
func (t *XmlText) InsertWithAttributes(tx *Transaction, index int, value string, attrs map[string]any, parent *XmlFragment) error {
	if err := t.Insert(tx, index, value); err != nil {
		return err
	}
	for name, v := range attrs {
		if v == nil {
			continue
		}
		if _, err := parent.InsertElement(tx, parent.Length(), name); err != nil {
			return err
		}
	}
	return nil
}
