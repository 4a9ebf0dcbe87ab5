package crdt

import "ycrdt/common"

// item is one operation in a sequence-shaped shared type (Text, Array,
// XmlFragment, XmlText). Each item carries its origin-left/origin-right
// OpIDs so concurrent inserts sharing an origin can be ordered
// deterministically (YATA) instead of merely appended after a fixed
// anchor.
type item struct {
	id common.OpID

	// leftOrigin/rightOrigin are the OpIDs of the item's immediate
	// neighbors at the moment of insertion; common.RootID means "the
	// sequence boundary" on that side.
	leftOrigin  common.OpID
	rightOrigin common.OpID

	// left/right are the live doubly-linked neighbors after integration.
	// They are in-memory only and rebuilt when replaying from the arena.
	left  *item
	right *item

	content any
	deleted bool

	// parent is the owning sequence, used for positional addressing and,
	// for XmlFragment children, parent queries.
	parent *sequence
}

func (it *item) leftNeighbor(doc *Doc) *item {
	if it.leftOrigin.IsRoot() {
		return nil
	}
	return doc.lookup(it.leftOrigin)
}

func (it *item) rightNeighbor(doc *Doc) *item {
	if it.rightOrigin.IsRoot() {
		return nil
	}
	return doc.lookup(it.rightOrigin)
}

func idEqualPtr(a, b *item) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.id == b.id
}
