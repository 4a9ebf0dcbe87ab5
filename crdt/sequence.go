package crdt

import "ycrdt/common"

// sequence is the shared YATA engine behind Text, Array, XmlFragment and
// XmlText. It holds the ordered (including tombstoned) run of items and
// answers positional queries against the *visible* subsequence: deleted
// items stay linked, just filtered out of Length() and index resolution.
type sequence struct {
	head *item // first item, live or tombstoned

	// parentName addresses this sequence's owning shared type when it is
	// a Doc root (GetText/GetArray/GetXmlFragment by name); parentID
	// addresses it when it is nested (an XmlElement's child sequence, or
	// an XmlText created by insertWithAttributes). Exactly one is set,
	// matching the ParentName/ParentID split in codec.OpRecord.
	parentName string
	parentID   common.OpID
}

func newRootSequence(name string) *sequence {
	return &sequence{parentName: name}
}

func newNestedSequence(parentID common.OpID) *sequence {
	return &sequence{parentID: parentID}
}

// integrate performs YATA conflict resolution and links it into the
// sequence. An origin missing from doc.arena resolves to nil and is
// treated as the sequence boundary, so callers buffer causally-blocked
// ops (see pending.go) before calling integrate.
func (s *sequence) integrate(doc *Doc, it *item) {
	left := it.leftNeighbor(doc)
	right := it.rightNeighbor(doc)

	var o *item
	if left != nil {
		o = left.right
	} else {
		o = s.head
	}

	conflicting := make(map[*item]bool)
	beforeOrigin := make(map[*item]bool)

	for o != nil && !idEqualPtr(o, right) {
		beforeOrigin[o] = true
		conflicting[o] = true

		oLeft := o.leftNeighbor(doc)
		itLeft := left

		switch {
		case idEqualPtr(oLeft, itLeft):
			// Concurrent insert sharing the same origin-left: break the
			// tie by ascending client id.
			if o.id.Client < it.id.Client {
				left = o
				conflicting = make(map[*item]bool)
			} else if idEqualPtr(o.rightNeighbor(doc), right) {
				o = o.right
				goto insert
			}
		case oLeft != nil && beforeOrigin[oLeft]:
			// o's origin was itself among the items we've already scanned
			// past: resolve transitively through that origin's winner.
			if !conflicting[oLeft] {
				left = o
				conflicting = make(map[*item]bool)
			}
		default:
			goto insert
		}
		o = o.right
	}

insert:
	it.left = left
	it.right = o
	if left != nil {
		left.right = it
	} else {
		s.head = it
	}
	if o != nil {
		o.left = it
	}
	it.parent = s
	doc.addToArena(it)
}

// insertVisible creates and integrates a new item holding content after
// the visibleIndex-th non-deleted item (visibleIndex == -1 means prepend).
func (s *sequence) insertVisible(doc *Doc, visibleIndex int, content any) *item {
	return s.insertVisibleWithID(doc, visibleIndex, doc.nextLocalID(), content)
}

// insertVisibleWithID is insertVisible with a caller-supplied id, used when
// the id must be known before integration (embedding a nested shared type,
// whose node index key is its own item's OpID).
func (s *sequence) insertVisibleWithID(doc *Doc, visibleIndex int, id common.OpID, content any) *item {
	leftOrigin := common.RootID
	rightOrigin := common.RootID

	if visibleIndex >= 0 {
		target := s.nthVisible(visibleIndex)
		if target == nil {
			leftOrigin = s.lastID()
		} else {
			leftOrigin = target.id
			if target.right != nil {
				rightOrigin = target.right.id
			}
		}
	} else if s.head != nil {
		rightOrigin = s.head.id
	}

	it := &item{
		id:          id,
		leftOrigin:  leftOrigin,
		rightOrigin: rightOrigin,
		content:     content,
	}
	s.integrate(doc, it)
	return it
}

// nthVisible returns the n-th (0-based) non-deleted item, walking deleted
// tombstones without counting them, or nil past the end.
func (s *sequence) nthVisible(n int) *item {
	count := -1
	for it := s.head; it != nil; it = it.right {
		if it.deleted {
			continue
		}
		count++
		if count == n {
			return it
		}
	}
	return nil
}

// lastID returns the id of the final linked item (live or tombstoned), or
// common.RootID if the sequence is empty.
func (s *sequence) lastID() common.OpID {
	var last common.OpID = common.RootID
	for it := s.head; it != nil; it = it.right {
		last = it.id
	}
	return last
}

// length returns the number of visible (non-deleted) items.
func (s *sequence) length() int {
	n := 0
	for it := s.head; it != nil; it = it.right {
		if !it.deleted {
			n++
		}
	}
	return n
}

// deleteRange marks the visible items [from, from+count) as deleted and
// returns their ids, for observer delta construction.
func (s *sequence) deleteRange(from, count int) []common.OpID {
	var ids []common.OpID
	idx := -1
	for it := s.head; it != nil && count > 0; it = it.right {
		if it.deleted {
			continue
		}
		idx++
		if idx < from {
			continue
		}
		it.deleted = true
		ids = append(ids, it.id)
		count--
	}
	return ids
}

// visibleItems returns every non-deleted item in sequence order.
func (s *sequence) visibleItems() []*item {
	var out []*item
	for it := s.head; it != nil; it = it.right {
		if !it.deleted {
			out = append(out, it)
		}
	}
	return out
}

// allItems returns every item, deleted or not, in sequence order.
func (s *sequence) allItems() []*item {
	var out []*item
	for it := s.head; it != nil; it = it.right {
		out = append(out, it)
	}
	return out
}
