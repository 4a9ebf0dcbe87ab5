package crdt

import (
	"ycrdt/codec"
	"ycrdt/common"
)

// Transaction is a scoped, exclusive mutation batch on a Doc. It is
// acquired via Doc.Transact and never constructed directly. Every
// shared-type mutator also has an implicit-transaction convenience
// wrapper that opens and commits one of these around a single call, so
// both paths go through the same commit logic and observer ordering is
// never bypassed.
type Transaction struct {
	doc    *Doc
	origin string

	ops []codec.OpRecord

	pending []pendingEvent
}

type pendingEvent struct {
	emitter *eventEmitter
	target  any
	change  Change
}

// Transact opens a transaction, runs fn, and commits on fn's success or
// rolls back if fn returns an error. Only one mutating transaction may be
// live on a Doc at a time; a concurrent attempt fails immediately rather
// than blocking. If the attempt comes from inside an observer callback
// fired by this same Doc's own commit (d.committing), it is reported as
// ErrReentrantMutation instead of ErrConcurrentTransaction, since it is
// the same logical operation re-entering rather than a second writer.
func (d *Doc) Transact(origin string, fn func(*Transaction) error) error {
	if err := d.checkOpen("doc"); err != nil {
		return err
	}

	d.mu.Lock()
	if d.tx != nil {
		reentrant := d.committing
		d.mu.Unlock()
		if reentrant {
			return common.ErrReentrantMutation{}
		}
		return common.ErrConcurrentTransaction{DocGUID: d.GUID}
	}
	tx := &Transaction{doc: d, origin: origin}
	d.tx = tx
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.tx = nil
		d.mu.Unlock()
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

func (tx *Transaction) recordOp(op codec.OpRecord) {
	tx.ops = append(tx.ops, op)
}

// recordInsert derives a codec.OpRecord from an already-integrated
// sequence item and records it for the outgoing update.
func (tx *Transaction) recordInsert(seq *sequence, it *item) {
	tx.recordOp(codec.OpRecord{
		ID:          it.id,
		ParentName:  seq.parentName,
		ParentID:    seq.parentID,
		LeftOrigin:  it.leftOrigin,
		RightOrigin: it.rightOrigin,
		Kind:        common.OperationTypeInsert,
		Content:     it.content,
	})
}

// recordChange buffers a Change against target's emitter; every buffered
// change for the same emitter is delivered as one Event on commit, fired
// exactly once per committed transaction rather than once per mutation.
func (tx *Transaction) recordChange(emitter *eventEmitter, target any, change Change) {
	tx.pending = append(tx.pending, pendingEvent{emitter: emitter, target: target, change: change})
}

// commit fires every buffered Event (grouped by emitter, in the order
// their first change was recorded) and the Doc-level update-bytes
// observer. An observer panic is recovered (subscribers.emit) rather than
// aborting the commit, and the remaining observers still run; crdt has no
// error handler, so the recovered value is discarded. d.committing is
// held true for the whole of this firing so a mutation attempted from
// inside a callback is reported as reentrant rather than concurrent.
func (tx *Transaction) commit() {
	type group struct {
		emitter *eventEmitter
		target  any
		changes []Change
	}
	var order []*group
	index := make(map[*eventEmitter]*group)
	for _, pe := range tx.pending {
		g, ok := index[pe.emitter]
		if !ok {
			g = &group{emitter: pe.emitter, target: pe.target}
			index[pe.emitter] = g
			order = append(order, g)
		}
		g.changes = append(g.changes, pe.change)
	}

	tx.doc.mu.Lock()
	tx.doc.committing = true
	tx.doc.mu.Unlock()

	for _, g := range order {
		fireObserver(g.emitter, Event{Target: g.target, Origin: tx.origin, Changes: g.changes})
	}

	if len(tx.ops) > 0 {
		update := codec.EncodeUpdate(tx.ops)
		tx.doc.updateSubs.emit(update)
	}

	tx.doc.mu.Lock()
	tx.doc.committing = false
	tx.doc.mu.Unlock()
}

func fireObserver(e *eventEmitter, ev Event) {
	defer func() { _ = recover() }()
	e.fire(ev)
}

// rollback discards every staged op and change; no observer fires.
func (tx *Transaction) rollback() {
	tx.ops = nil
	tx.pending = nil
}

// applyOps integrates remote ops decoded from an incoming update,
// resolving each op's parent node, buffering ops whose ParentID or
// sequence origins are not yet integrated (pending.go), and retrying
// buffered ops as their dependencies arrive.
func (tx *Transaction) applyOps(ops []codec.OpRecord) {
	queue := append([]codec.OpRecord{}, ops...)
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]

		// A sequence Delete carries the id of the item it tombstones, which
		// is already integrated by the time the Delete can apply.
		seqDelete := op.Kind == common.OperationTypeDelete && op.Key == ""
		if tx.doc.hasIntegrated(op.ID) && !seqDelete {
			continue
		}

		missing, ok := tx.missingDependency(op)
		if ok {
			tx.doc.pending.add(missing, op)
			continue
		}

		tx.applyOp(op)

		ready := tx.doc.pending.drain(op.ID)
		queue = append(queue, ready...)
	}
}

// missingDependency reports the first unintegrated id this op causally
// depends on, if any.
func (tx *Transaction) missingDependency(op codec.OpRecord) (common.OpID, bool) {
	if op.ParentName == "" && !op.ParentID.IsRoot() && !tx.doc.hasIntegrated(op.ParentID) {
		return op.ParentID, true
	}
	if op.Kind == common.OperationTypeInsert {
		if !op.LeftOrigin.IsRoot() && !tx.doc.hasIntegrated(op.LeftOrigin) {
			return op.LeftOrigin, true
		}
		if !op.RightOrigin.IsRoot() && !tx.doc.hasIntegrated(op.RightOrigin) {
			return op.RightOrigin, true
		}
	}
	if (op.Kind == common.OperationTypeDelete || op.Kind == common.OperationTypeFormat) && op.Key == "" {
		if !tx.doc.hasIntegrated(op.ID) && tx.doc.lookup(op.ID) == nil {
			// Sequence delete/format addresses an existing item by its own
			// id; if we haven't seen it at all yet, wait for it.
			return op.ID, true
		}
	}
	return common.OpID{}, false
}

func (tx *Transaction) applyOp(op codec.OpRecord) {
	switch op.NodeType {
	case common.NodeTypeText, common.NodeTypeArray, common.NodeTypeXmlText:
		tx.applySequenceOp(op)
	case common.NodeTypeMap:
		tx.applyMapOp(op)
	case common.NodeTypeXmlFrag:
		tx.applySequenceOp(op)
	case common.NodeTypeXmlElem:
		tx.applyMapOp(op) // attribute writes against an XmlElement reuse Map's LWW semantics
	default:
		tx.applySequenceOp(op)
	}
}

func (tx *Transaction) resolveSequence(op codec.OpRecord) *sequence {
	if op.ParentName != "" {
		n := tx.doc.roots[op.ParentName]
		return sequenceOf(n)
	}
	n := tx.doc.lookupNode(op.ParentID)
	return sequenceOf(n)
}

func (tx *Transaction) applySequenceOp(op codec.OpRecord) {
	seq := tx.resolveSequence(op)
	if seq == nil {
		return
	}
	switch op.Kind {
	case common.OperationTypeInsert:
		it := &item{
			id:          op.ID,
			leftOrigin:  op.LeftOrigin,
			rightOrigin: op.RightOrigin,
			content:     op.Content,
		}
		seq.integrate(tx.doc, it)
	case common.OperationTypeDelete:
		if existing := tx.doc.lookup(op.ID); existing != nil {
			existing.deleted = true
			tx.doc.observeIntegrated(op.ID)
		}
	case common.OperationTypeFormat:
		tx.doc.observeIntegrated(op.ID)
	}
}

func (tx *Transaction) applyMapOp(op codec.OpRecord) {
	var m *Map
	if op.ParentName != "" {
		m, _ = tx.doc.roots[op.ParentName].(*Map)
	} else if n := tx.doc.lookupNode(op.ParentID); n != nil {
		switch v := n.(type) {
		case *Map:
			m = v
		case *XmlElement:
			m = v.attr
		}
	}
	if m == nil {
		return
	}
	m.applyRemote(tx.doc, op)
}
