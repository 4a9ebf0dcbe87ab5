// Package common holds the identifiers, enums and error taxonomy shared by
// the crdt, codec, awareness, persistence and server packages.
package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// ClientID identifies one replica of a document. Distinct replicas must
// hold distinct ids; collisions produce silent divergence.
type ClientID uint64

// NewClientID returns a random ClientID suitable for a new Doc replica.
func NewClientID() ClientID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("common: failed to generate client id: %v", err))
	}
	// Clear the top bit so ids stay within the positive int64 range for
	// implementations that bridge to signed-integer wire formats.
	id := binary.BigEndian.Uint64(b[:]) &^ (1 << 63)
	if id == 0 {
		id = 1 // client 0 is reserved for RootID
	}
	return ClientID(id)
}

// Clock is a per-client monotonically increasing operation counter.
type Clock uint64

// OpID uniquely identifies one CRDT operation.
type OpID struct {
	Client ClientID
	Clock  Clock
}

// RootID is the identifier of a Doc's implicit root container. It can never
// be produced by NewClientID (client 0 is reserved) and any OpID comparing
// equal to it refers to "no predecessor" / "document root".
var RootID = OpID{Client: 0, Clock: 0}

// Compare orders two OpIDs by (Client, Clock); it returns -1, 0 or 1.
func (id OpID) Compare(other OpID) int {
	switch {
	case id.Client < other.Client:
		return -1
	case id.Client > other.Client:
		return 1
	case id.Clock < other.Clock:
		return -1
	case id.Clock > other.Clock:
		return 1
	default:
		return 0
	}
}

// Next returns the OpID immediately following id for the same client.
func (id OpID) Next() OpID {
	return OpID{Client: id.Client, Clock: id.Clock + 1}
}

// WithOffset returns the OpID offset by n clock ticks for the same client.
func (id OpID) WithOffset(n uint64) OpID {
	return OpID{Client: id.Client, Clock: id.Clock + Clock(n)}
}

// IsRoot reports whether id refers to the document root.
func (id OpID) IsRoot() bool {
	return id.Compare(RootID) == 0
}

func (id OpID) String() string {
	return fmt.Sprintf("%d@%d", id.Clock, id.Client)
}

// NodeType identifies the kind of shared type a CRDT item belongs to.
type NodeType string

const (
	NodeTypeText    NodeType = "text"
	NodeTypeArray   NodeType = "array"
	NodeTypeMap     NodeType = "map"
	NodeTypeXmlFrag NodeType = "xml_fragment"
	NodeTypeXmlElem NodeType = "xml_element"
	NodeTypeXmlText NodeType = "xml_text"

	// NodeTypeSubDoc marks an Array/Map element that embeds a whole nested
	// Doc rather than another shared type within the same Doc's arena.
	NodeTypeSubDoc NodeType = "doc"
)

// OperationType identifies the kind of mutation an op performs.
type OperationType string

const (
	OperationTypeInsert OperationType = "insert"
	OperationTypeDelete OperationType = "delete"
	OperationTypeFormat OperationType = "format"
)

// EncodingFormat is reserved for future non-v1 wire formats. Only V1 is
// implemented; the spec explicitly keeps v2 out of scope.
type EncodingFormat string

const (
	EncodingFormatV1 EncodingFormat = "v1"
)
