package crdt

import (
	"sync"

	"ycrdt/codec"
	"ycrdt/common"

	"github.com/google/uuid"
)

// Doc is the root container for one replica of a collaborative document:
// a name -> shared-type registry, an arena of every sequence item and
// container node reachable by OpID, and the transaction/observer
// machinery that makes mutations atomic and observable.
type Doc struct {
	mu sync.Mutex

	GUID     string
	ClientID common.ClientID

	// clocks is this Doc's view of every client's next-unassigned clock,
	// i.e. its state vector. clocks[ClientID] is advanced by nextLocalID;
	// entries for remote clients are advanced as their ops integrate.
	clocks map[common.ClientID]common.Clock

	roots   map[string]node
	nodes   map[common.OpID]node
	arena   map[common.OpID]*item
	subdocs map[common.OpID]*Doc

	pending *pendingBuffer

	tx         *Transaction
	committing bool // true while tx.commit() is firing observers for tx

	updateSubs    *subscribers[[]byte]
	destroySubs   *subscribers[struct{}]
	closed        bool
}

// NewDoc creates a Doc with a random GUID. If clientID is omitted a
// random ClientID is generated.
func NewDoc(clientID ...common.ClientID) *Doc {
	id := common.NewClientID()
	if len(clientID) > 0 {
		id = clientID[0]
	}
	return &Doc{
		GUID:        uuid.NewString(),
		ClientID:    id,
		clocks:      make(map[common.ClientID]common.Clock),
		roots:       make(map[string]node),
		nodes:       make(map[common.OpID]node),
		arena:       make(map[common.OpID]*item),
		subdocs:     make(map[common.OpID]*Doc),
		pending:     newPendingBuffer(),
		updateSubs:  newSubscribers[[]byte](),
		destroySubs: newSubscribers[struct{}](),
	}
}

// Destroy marks this Doc closed and fires its destroy subscribers.
// Afterwards Transact, and with it every mutator and ApplyUpdate, returns
// ErrUseAfterClose; read accessors and the Encode* methods do not check
// and keep returning the current state.
func (d *Doc) Destroy() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.destroySubs.emit(struct{}{})
}

func (d *Doc) checkOpen(resource string) error {
	if d.closed {
		return common.ErrUseAfterClose{Resource: resource}
	}
	return nil
}

// ObserveDestroy registers cb to run once, when the Doc is destroyed.
func (d *Doc) ObserveDestroy(cb func()) *Subscription {
	return d.destroySubs.subscribe(func(struct{}) { cb() })
}

// ObserveUpdateV1 receives the encoded update bytes for every committed
// transaction; the bytes are exactly what other replicas must
// ApplyUpdate to converge.
func (d *Doc) ObserveUpdateV1(cb func(update []byte, origin string)) *Subscription {
	return d.updateSubs.subscribe(func(u []byte) { cb(u, "") })
}

// nextLocalID allocates the next OpID for this Doc's own ClientID and
// advances its own clock entry. Only valid while a transaction is active;
// callers (text.go, array.go, map.go, xml.go) enforce that.
func (d *Doc) nextLocalID() common.OpID {
	clock := d.clocks[d.ClientID]
	id := common.OpID{Client: d.ClientID, Clock: clock}
	d.clocks[d.ClientID] = clock + 1
	return id
}

// observedClock reports the next-unseen clock for client, 0 if nothing
// from that client has been integrated yet.
func (d *Doc) observedClock(client common.ClientID) common.Clock {
	return d.clocks[client]
}

// observeIntegrated marks id as integrated, advancing that client's entry in the
// state vector if id.Clock is the next expected value or later.
func (d *Doc) observeIntegrated(id common.OpID) {
	if id.Clock >= d.clocks[id.Client] {
		d.clocks[id.Client] = id.Clock + 1
	}
}

// hasIntegrated reports whether id has already been integrated into this
// Doc, which is exactly "id.Clock < next-unseen clock for id.Client" -
// the idempotence check every ApplyUpdate op goes through.
func (d *Doc) hasIntegrated(id common.OpID) bool {
	return id.Clock < d.clocks[id.Client]
}

func (d *Doc) lookup(id common.OpID) *item {
	return d.arena[id]
}

func (d *Doc) addToArena(it *item) {
	d.arena[it.id] = it
	d.observeIntegrated(it.id)
}

func (d *Doc) lookupNode(id common.OpID) node {
	return d.nodes[id]
}

func (d *Doc) registerNode(id common.OpID, n node) {
	d.nodes[id] = n
}

// EncodeStateVector returns this Doc's state vector in the lib0-compatible
// layout (codec.EncodeStateVector).
func (d *Doc) EncodeStateVector() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	sv := make(map[common.ClientID]common.Clock, len(d.clocks))
	for c, clk := range d.clocks {
		sv[c] = clk
	}
	return codec.EncodeStateVector(sv)
}

// EncodeStateAsUpdate returns every op this Doc has integrated, encoded as
// a single update - equivalent to EncodeDiff against an empty state vector.
func (d *Doc) EncodeStateAsUpdate() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return codec.EncodeUpdate(d.allOps())
}

// EncodeDiff returns the ops the remote (described by sv) is missing,
// including their causal predecessors' OpIds. Because our arena
// already retains every predecessor verbatim (leftOrigin/rightOrigin/
// ParentID), any op emitted here carries its own causal predecessors by
// construction. Every sequence tombstone is included regardless of sv:
// it carries the id of the item it deletes, and a state vector cannot
// record which deletions the remote has already seen.
func (d *Doc) EncodeDiff(sv map[common.ClientID]common.Clock) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var diff []codec.OpRecord
	for _, op := range d.allOps() {
		seqDelete := op.Kind == common.OperationTypeDelete && op.Key == ""
		if op.ID.Clock >= sv[op.ID.Client] || seqDelete {
			diff = append(diff, op)
		}
	}
	return codec.EncodeUpdate(diff)
}

// ApplyUpdate decodes update and integrates every op it contains. Ops
// whose causal predecessor is not yet integrated are buffered in the
// pending causality queue (pending.go) rather than rejected, and retried
// whenever a later ApplyUpdate call succeeds.
func (d *Doc) ApplyUpdate(update []byte) error {
	ops, err := codec.DecodeUpdate(update)
	if err != nil {
		return common.ErrInvalidUpdate{Reason: err.Error()}
	}
	return d.Transact("applyUpdate", func(tx *Transaction) error {
		tx.applyOps(ops)
		return nil
	})
}

// GetText returns the named root Text, creating it on first access.
func (d *Doc) GetText(name string) *Text {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.roots[name]; ok {
		return n.(*Text)
	}
	t := newText(d, newRootSequence(name))
	d.roots[name] = t
	return t
}

// GetArray returns the named root Array, creating it on first access.
func (d *Doc) GetArray(name string) *Array {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.roots[name]; ok {
		return n.(*Array)
	}
	a := newArray(d, newRootSequence(name))
	d.roots[name] = a
	return a
}

// GetMap returns the named root Map, creating it on first access.
func (d *Doc) GetMap(name string) *Map {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.roots[name]; ok {
		return n.(*Map)
	}
	m := newMap(d, common.OpID{})
	d.roots[name] = m
	return m
}

// GetXmlFragment returns the named root XmlFragment, creating it on first
// access.
func (d *Doc) GetXmlFragment(name string) *XmlFragment {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.roots[name]; ok {
		return n.(*XmlFragment)
	}
	f := newXmlFragment(d, newRootSequence(name))
	d.roots[name] = f
	return f
}

// rootName reports the registry name n was created under, if it is a Doc
// root rather than a nested/embedded node.
func (d *Doc) rootName(n node) (string, bool) {
	for name, rn := range d.roots {
		if rn == n {
			return name, true
		}
	}
	return "", false
}

// createNested constructs a new nested shared-type node of kind, keyed by
// id in the Doc's node index, for embedding as an Array/Map value or an
// XmlFragment child. A NodeTypeSubDoc embeds a whole independent Doc
// instead: it gets its own GUID/ClientID/clock and arena, and is indexed
// in d.subdocs rather than d.nodes since it does not implement node
// (it has no single OpID-addressable type - it is itself a document).
func (d *Doc) createNested(id common.OpID, kind common.NodeType) any {
	if kind == common.NodeTypeSubDoc {
		sub := NewDoc()
		d.subdocs[id] = sub
		return sub
	}
	var n node
	switch kind {
	case common.NodeTypeText:
		n = newText(d, newNestedSequence(id))
	case common.NodeTypeArray:
		n = newArray(d, newNestedSequence(id))
	case common.NodeTypeMap:
		n = newMap(d, id)
	case common.NodeTypeXmlFrag:
		n = newXmlFragment(d, newNestedSequence(id))
	case common.NodeTypeXmlText:
		n = newXmlText(d, newNestedSequence(id))
	default:
		return nil
	}
	d.registerNode(id, n)
	return n
}

// SubDoc resolves an embedded sub-document by the OpID of the Array/Map
// slot that embeds it (codec.Embed.ID with Kind == common.NodeTypeSubDoc).
// It is the sub-document analogue of lookupNode: reachable only through
// the parent value that embeds it, never through the Doc's own arena.
func (d *Doc) SubDoc(id common.OpID) (*Doc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.subdocs[id]
	return sub, ok
}

// sequenceOf extracts the underlying sequence from a sequence-shaped node,
// or nil if n is not sequence-shaped (e.g. a Map).
func sequenceOf(n node) *sequence {
	switch v := n.(type) {
	case *Text:
		return v.seq
	case *Array:
		return v.seq
	case *XmlFragment:
		return v.seq
	case *XmlText:
		return v.seq
	case *XmlElement:
		return v.kids.seq
	default:
		return nil
	}
}
