// Package hooks implements the server's ordered extension pipeline: named
// hook points run a priority-ordered list of extensions, each of which
// may short-circuit, enrich a shared context, or attach a side effect.
package hooks

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Context is the shared, mutable bag of values visible to every extension
// invoked for one hook firing, plus later hooks and the connection code
// that triggered the firing.
type Context struct {
	context.Context
	DocumentName string
	Values       map[string]any
}

// Set stores a value under key for later hooks/callers to read.
func (c *Context) Set(key string, value any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[key] = value
}

// Get reads a value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Result is returned by an extension. A true Terminal short-circuits
// the remaining extensions in the chain; Err, if non-nil, is the hook's
// declared error and is always propagated to the caller of Fire.
type Result struct {
	Terminal bool
	Err      error
}

// HandlerFunc is one extension's implementation of one hook point.
type HandlerFunc func(ctx *Context) Result

// handler pairs a HandlerFunc with its dispatch priority (lower runs
// first).
type handler struct {
	priority int
	fn       HandlerFunc
}

// Pipeline is an ordered, named collection of hook points. Extensions
// register against a hook-point name (e.g. "onLoadDocument") and the
// pipeline runs them in ascending-priority order on Fire.
type Pipeline struct {
	mu       sync.RWMutex
	handlers map[string][]handler
	logger   *zap.Logger
}

// New creates an empty Pipeline.
func New(logger *zap.Logger) *Pipeline {
	return &Pipeline{handlers: make(map[string][]handler), logger: logger}
}

// Register adds fn to point at priority (lower runs earlier; ties keep
// registration order).
func (p *Pipeline) Register(point string, priority int, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[point] = append(p.handlers[point], handler{priority: priority, fn: fn})
	sort.SliceStable(p.handlers[point], func(i, j int) bool {
		return p.handlers[point][i].priority < p.handlers[point][j].priority
	})
}

// Fire runs every extension registered at point, in priority order,
// until one returns a terminal Result or an error. Unhandled panics from
// an extension are caught and reported via the logger without breaking
// the pipeline.
func (p *Pipeline) Fire(point string, ctx *Context) Result {
	p.mu.RLock()
	chain := append([]handler(nil), p.handlers[point]...)
	p.mu.RUnlock()

	for _, h := range chain {
		res := p.runOne(point, h.fn, ctx)
		if res.Terminal || res.Err != nil {
			return res
		}
	}
	return Result{}
}

func (p *Pipeline) runOne(point string, fn HandlerFunc, ctx *Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Error("hook panicked", zap.String("point", point), zap.Any("recover", r))
			}
			res = Result{}
		}
	}()
	return fn(ctx)
}
