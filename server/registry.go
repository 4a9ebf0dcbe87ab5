package server

import (
	"context"
	"sync"

	"ycrdt/awareness"
	"ycrdt/crdt"
	"ycrdt/hooks"
	"ycrdt/persistence"

	"go.uber.org/zap"
)

// LoadFunc constructs a fresh Doc for name, running the hook chain,
// fetching any persisted state, and applying it before the Doc is handed
// back.
type LoadFunc func(ctx context.Context, name string) (*crdt.Doc, error)

// DocumentEntry is one loaded document plus everything the registry and
// connections need to route messages and persist state for it.
type DocumentEntry struct {
	Name      string
	Doc       *crdt.Doc
	Awareness *awareness.Awareness
	Debouncer *persistence.Debouncer

	mu       sync.Mutex
	refCount int
	conns    map[string]*DocumentConnection

	stopAwarenessSweep func()
}

func (e *DocumentEntry) addConn(c *DocumentConnection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[c.ConnectionID()] = c
}

func (e *DocumentEntry) removeConn(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, connID)
}

// Broadcast sends payload to every DocumentConnection on this entry
// except the one named exclude (pass "" to exclude none). Tolerates
// concurrent add/remove without missing or double-delivering to a
// connection present for the whole broadcast window, by taking a
// snapshot of the connection set under the entry's lock.
//
// Broadcast is called synchronously from a Doc's commit path (see
// NewDocumentConnection's ObserveUpdateV1 subscription), so it must
// never block on a peer's write: conn.Send only enqueues the frame on
// transport.Connection's own send queue and returns immediately,
// leaving the actual write to that connection's dedicated writer. A
// stalled connection therefore sheds its own load (see
// transport.WSConnection's bounded send queue) instead of stalling this
// Doc's commit, every other connection's delivery, or a concurrent Open.
func (e *DocumentEntry) Broadcast(ctx context.Context, exclude string, frame Frame) {
	e.mu.Lock()
	targets := make([]*DocumentConnection, 0, len(e.conns))
	for id, c := range e.conns {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	e.mu.Unlock()

	data := EncodeFrame(frame)
	for _, c := range targets {
		c.conn.Send(ctx, data)
	}
}

type loadFuture struct {
	done  chan struct{}
	entry *DocumentEntry
	err   error
}

// Registry is the server's process-wide name -> Document map, plus an
// in-flight-load map that serializes concurrent opens of the same name.
// It is an explicit instance, not a package-level singleton, so that
// multiple independent servers can run in one process.
type Registry struct {
	mu      sync.Mutex
	loaded  map[string]*DocumentEntry
	loading map[string]*loadFuture

	load   LoadFunc
	unload func(ctx context.Context, e *DocumentEntry)
	store  persistence.Store

	hooks  *hooks.Pipeline
	cfg    Config
	logger *zap.Logger
}

// NewRegistry constructs an empty Registry. unload is called exactly once
// per document, when its ref count drops to zero; it must perform the
// final persistence flush. store, if non-nil, is wired into each freshly
// loaded entry's Debouncer so commits flush automatically; pass nil to
// manage persistence some other way.
func NewRegistry(cfg Config, load LoadFunc, unload func(ctx context.Context, e *DocumentEntry), store persistence.Store, hookPipeline *hooks.Pipeline, logger *zap.Logger) *Registry {
	return &Registry{
		loaded:  make(map[string]*DocumentEntry),
		loading: make(map[string]*loadFuture),
		load:    load,
		unload:  unload,
		store:   store,
		hooks:   hookPipeline,
		cfg:     cfg,
		logger:  logger,
	}
}

// Open returns the DocumentEntry for name, loading it if necessary, and
// increments its reference count. Callers must call Release exactly once
// per successful Open.
func (r *Registry) Open(ctx context.Context, name string) (*DocumentEntry, error) {
	for {
		r.mu.Lock()
		if e, ok := r.loaded[name]; ok {
			e.mu.Lock()
			e.refCount++
			e.mu.Unlock()
			r.mu.Unlock()
			return e, nil
		}
		if f, ok := r.loading[name]; ok {
			r.mu.Unlock()
			<-f.done
			if f.err != nil {
				return nil, f.err
			}
			continue // re-check loaded map; entry should now be present
		}

		f := &loadFuture{done: make(chan struct{})}
		r.loading[name] = f
		r.mu.Unlock()

		doc, err := r.load(ctx, name)

		r.mu.Lock()
		delete(r.loading, name)
		if err != nil {
			f.err = err
			r.mu.Unlock()
			close(f.done)
			return nil, err
		}
		entry := &DocumentEntry{
			Name:      name,
			Doc:       doc,
			Awareness: awareness.New(r.cfg.AwarenessTimeout),
			conns:     make(map[string]*DocumentConnection),
			refCount:  1,
		}
		entry.stopAwarenessSweep = entry.Awareness.RunExpirySweep(r.cfg.AwarenessTimeout/3+1, func(update []byte) {
			entry.Broadcast(context.Background(), "", Frame{DocName: name, Type: MsgAwareness, Payload: update})
		})
		if r.store != nil {
			AttachDebouncer(entry, r.store, r.cfg, r.logger)
		}
		r.loaded[name] = entry
		f.entry = entry
		r.mu.Unlock()
		close(f.done)
		return entry, nil
	}
}

// Release decrements name's reference count and, if it reaches zero,
// removes the entry and invokes the configured unload callback, which
// is expected to enqueue a final persistence flush.
func (r *Registry) Release(ctx context.Context, name string) {
	r.mu.Lock()
	e, ok := r.loaded[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.refCount--
	done := e.refCount <= 0
	e.mu.Unlock()
	if !done {
		r.mu.Unlock()
		return
	}
	delete(r.loaded, name)
	r.mu.Unlock()

	if e.stopAwarenessSweep != nil {
		e.stopAwarenessSweep()
	}
	if r.unload != nil {
		r.unload(ctx, e)
	}
}

// Count reports the number of currently loaded documents, for tests and
// diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loaded)
}
