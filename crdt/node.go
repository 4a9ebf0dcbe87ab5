package crdt

import "ycrdt/common"

// node is implemented by every shared-type value that can be addressed by
// an OpID: Text, Array, Map, XmlFragment, XmlElement, XmlText. Doc keeps a
// flat index from OpID to node so that parent/child and embedding links
// are ids, never pointers. The index is split between sequence items
// (crdt/item.go) and container nodes because a container's identity and
// its position in a parent sequence are different things.
type node interface {
	nodeType() common.NodeType
	nodeID() common.OpID
	doc() *Doc
}
