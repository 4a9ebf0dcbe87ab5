package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Debouncer schedules a Store flush after `debounce` of quiescence,
// bounded by a hard `maxDebounce` ceiling since the first dirtying update
// in the current window.
type Debouncer struct {
	mu sync.Mutex

	debounce    time.Duration
	maxDebounce time.Duration
	flush       func(ctx context.Context)
	logger      *zap.Logger

	quietTimer   *time.Timer
	ceilingTimer *time.Timer
	dirty        bool
	stopped      bool
}

// NewDebouncer builds a Debouncer that calls flush when it fires. flush
// must be idempotent: it may run concurrently with Stop's final
// synchronous flush in rare races. A concurrent cancel+flush race lands
// on exactly one flush, achieved here by gating both the timer callback
// and Stop's flush behind the same dirty flag under mu.
func NewDebouncer(debounce, maxDebounce time.Duration, flush func(ctx context.Context), logger *zap.Logger) *Debouncer {
	return &Debouncer{debounce: debounce, maxDebounce: maxDebounce, flush: flush, logger: logger}
}

// MarkDirty records a committed update. It (re)starts the quiescence
// timer and, if this is the first dirtying update since the last flush,
// starts the ceiling timer too.
func (d *Debouncer) MarkDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if d.quietTimer != nil {
		d.quietTimer.Stop()
	}
	d.quietTimer = time.AfterFunc(d.debounce, d.fireLocked)

	if !d.dirty {
		d.dirty = true
		if d.ceilingTimer != nil {
			d.ceilingTimer.Stop()
		}
		d.ceilingTimer = time.AfterFunc(d.maxDebounce, d.fireLocked)
	}
}

// fireLocked is called by either timer; only the first caller of a given
// dirty window actually flushes.
func (d *Debouncer) fireLocked() {
	d.mu.Lock()
	if !d.dirty || d.stopped {
		d.mu.Unlock()
		return
	}
	d.dirty = false
	if d.quietTimer != nil {
		d.quietTimer.Stop()
	}
	if d.ceilingTimer != nil {
		d.ceilingTimer.Stop()
	}
	flush := d.flush
	d.mu.Unlock()

	flush(context.Background())
}

// Stop cancels any pending timers and, if a flush was outstanding,
// synchronously runs it once more before returning.
func (d *Debouncer) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	wasDirty := d.dirty
	d.dirty = false
	if d.quietTimer != nil {
		d.quietTimer.Stop()
	}
	if d.ceilingTimer != nil {
		d.ceilingTimer.Stop()
	}
	flush := d.flush
	d.mu.Unlock()

	if wasDirty {
		flush(ctx)
	}
}

// Logger exposes the configured logger for callers building retry/error
// reporting on top of a Debouncer.
func (d *Debouncer) Logger() *zap.Logger { return d.logger }
