package crdt

import (
	"sync"

	"ycrdt/codec"
	"ycrdt/common"
)

// pendingBuffer holds ops whose causal predecessor has not yet been
// integrated, keyed by the id of the predecessor they are waiting on.
// ApplyUpdate drains the entries keyed by each id as soon as that id
// itself integrates, which is how out-of-order delivery converges.
type pendingBuffer struct {
	mu      sync.Mutex
	waiting map[common.OpID][]codec.OpRecord
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{waiting: make(map[common.OpID][]codec.OpRecord)}
}

func (p *pendingBuffer) add(missing common.OpID, op codec.OpRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting[missing] = append(p.waiting[missing], op)
}

// drain removes and returns every op that was waiting on ready.
func (p *pendingBuffer) drain(ready common.OpID) []codec.OpRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := p.waiting[ready]
	delete(p.waiting, ready)
	return ops
}

func (p *pendingBuffer) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ops := range p.waiting {
		n += len(ops)
	}
	return n
}
