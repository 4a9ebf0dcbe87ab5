package crdt

import (
	"ycrdt/codec"
	"ycrdt/common"
)

// mapEntry is one key's write history reduced to its current winner.
// Superseded entries are tombstoned, never removed, to preserve
// convergence: a replica that later integrates a concurrent write to the
// same key must still be able to resolve the (clock, client) tie-break
// against what it already has.
type mapEntry struct {
	id      common.OpID
	value   any
	deleted bool
}

// wins reports whether a write with id should replace the current entry,
// comparing clock first, then client id - the opposite precedence of
// common.OpID.Compare (client first), so Map keeps its own comparison
// rather than reusing it.
func wins(id, current common.OpID) bool {
	if id.Clock != current.Clock {
		return id.Clock > current.Clock
	}
	return id.Client > current.Client
}

// Map is a last-writer-wins key/value container: keys are unique
// (insertion order not preserved), and a concurrent write to the same
// key is resolved by the (clock, client) tie-break in wins.
type Map struct {
	eventEmitter
	d        *Doc
	id       common.OpID
	entries  map[string]*mapEntry
}

func newMap(d *Doc, id common.OpID) *Map {
	return &Map{eventEmitter: newEventEmitter(), d: d, id: id, entries: make(map[string]*mapEntry)}
}

func (m *Map) nodeType() common.NodeType { return common.NodeTypeMap }
func (m *Map) nodeID() common.OpID       { return m.id }
func (m *Map) doc() *Doc                 { return m.d }

// Get returns the current value for key and whether it is present and
// live (not tombstoned).
func (m *Map) Get(key string) (any, bool) {
	e, ok := m.entries[key]
	if !ok || e.deleted {
		return nil, false
	}
	return e.value, true
}

// Has reports whether key currently has a live value.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns every key with a live value, in unspecified order.
func (m *Map) Keys() []string {
	var keys []string
	for k, e := range m.entries {
		if !e.deleted {
			keys = append(keys, k)
		}
	}
	return keys
}

// ToMap materializes every live key/value pair.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, len(m.entries))
	for k, e := range m.entries {
		if !e.deleted {
			out[k] = e.value
		}
	}
	return out
}

func (m *Map) parentAddr() (string, common.OpID) {
	if named, ok := m.d.rootName(m); ok {
		return named, common.OpID{}
	}
	return "", m.id
}

// Set writes key=value within tx.
func (m *Map) Set(tx *Transaction, key string, value any) error {
	if err := m.d.checkOpen("Map"); err != nil {
		return err
	}
	id := m.d.nextLocalID()
	m.entries[key] = &mapEntry{id: id, value: value}

	parentName, parentID := m.parentAddr()
	tx.recordOp(codec.OpRecord{
		ID:         id,
		ParentName: parentName,
		ParentID:   parentID,
		Kind:       common.OperationTypeInsert,
		NodeType:   common.NodeTypeMap,
		Key:        key,
		Content:    value,
	})
	tx.recordChange(&m.eventEmitter, m, Change{Kind: ChangeAttribute, Key: key, Attributes: map[string]any{key: value}})
	return nil
}

// SetEmbed creates a brand-new nested shared type under key and returns
// its handle, mirroring Array.PushEmbed for map-valued containers.
func (m *Map) SetEmbed(tx *Transaction, key string, kind common.NodeType) (any, error) {
	id := m.d.nextLocalID()
	handle := m.d.createNested(id, kind)
	m.entries[key] = &mapEntry{id: id, value: codec.Embed{Kind: kind, ID: id}}

	parentName, parentID := m.parentAddr()
	tx.recordOp(codec.OpRecord{
		ID:         id,
		ParentName: parentName,
		ParentID:   parentID,
		Kind:       common.OperationTypeInsert,
		NodeType:   common.NodeTypeMap,
		Key:        key,
		Content:    codec.Embed{Kind: kind, ID: id},
	})
	tx.recordChange(&m.eventEmitter, m, Change{Kind: ChangeAttribute, Key: key})
	return handle, nil
}

// SetValue is the implicit-transaction convenience form of Set.
func (m *Map) SetValue(key string, value any) error {
	return m.d.Transact("", func(tx *Transaction) error {
		return m.Set(tx, key, value)
	})
}

// Delete tombstones key within tx. The entry is retained so a concurrent
// remote Set racing this Delete still converges deterministically via
// wins().
func (m *Map) Delete(tx *Transaction, key string) error {
	if err := m.d.checkOpen("Map"); err != nil {
		return err
	}
	existing, ok := m.entries[key]
	if !ok || existing.deleted {
		return nil
	}
	id := m.d.nextLocalID()
	m.entries[key] = &mapEntry{id: id, value: existing.value, deleted: true}

	parentName, parentID := m.parentAddr()
	tx.recordOp(codec.OpRecord{
		ID:         id,
		ParentName: parentName,
		ParentID:   parentID,
		Kind:       common.OperationTypeDelete,
		NodeType:   common.NodeTypeMap,
		Key:        key,
	})
	tx.recordChange(&m.eventEmitter, m, Change{Kind: ChangeDelete, Key: key})
	return nil
}

// DeleteKey is the implicit-transaction convenience form of Delete.
func (m *Map) DeleteKey(key string) error {
	return m.d.Transact("", func(tx *Transaction) error {
		return m.Delete(tx, key)
	})
}

// applyRemote integrates a Map Insert/Delete op decoded from an update.
func (m *Map) applyRemote(doc *Doc, op codec.OpRecord) {
	current, ok := m.entries[op.Key]
	if ok && !wins(op.ID, current.id) {
		doc.observeIntegrated(op.ID)
		return
	}
	switch op.Kind {
	case common.OperationTypeInsert:
		m.entries[op.Key] = &mapEntry{id: op.ID, value: op.Content}
	case common.OperationTypeDelete:
		value := any(nil)
		if ok {
			value = current.value
		}
		m.entries[op.Key] = &mapEntry{id: op.ID, value: value, deleted: true}
	}
	doc.observeIntegrated(op.ID)
}
