package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDebouncerFlushesAfterQuiescence(t *testing.T) {
	var mu sync.Mutex
	flushes := 0
	d := NewDebouncer(20*time.Millisecond, time.Hour, func(ctx context.Context) {
		mu.Lock()
		flushes++
		mu.Unlock()
	}, zap.NewNop())

	d.MarkDirty()
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, flushes)
}

func TestDebouncerResetsQuietTimerOnRepeatedDirty(t *testing.T) {
	var mu sync.Mutex
	flushes := 0
	d := NewDebouncer(30*time.Millisecond, time.Hour, func(ctx context.Context) {
		mu.Lock()
		flushes++
		mu.Unlock()
	}, zap.NewNop())

	// Keep marking dirty faster than the quiescence window so the quiet
	// timer never gets a chance to fire on its own.
	for i := 0; i < 3; i++ {
		d.MarkDirty()
		time.Sleep(15 * time.Millisecond)
	}

	mu.Lock()
	assert.Equal(t, 0, flushes, "quiescence timer should keep being pushed out")
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, flushes)
}

func TestDebouncerCeilingFlushesDespiteContinuousDirtying(t *testing.T) {
	var mu sync.Mutex
	flushes := 0
	d := NewDebouncer(25*time.Millisecond, 40*time.Millisecond, func(ctx context.Context) {
		mu.Lock()
		flushes++
		mu.Unlock()
	}, zap.NewNop())

	stop := time.Now().Add(70 * time.Millisecond)
	for time.Now().Before(stop) {
		d.MarkDirty()
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, flushes, 1, "the hard ceiling must flush even under continuous dirtying")
}

func TestStopFlushesSynchronouslyWhenDirty(t *testing.T) {
	flushed := false
	d := NewDebouncer(time.Hour, time.Hour, func(ctx context.Context) {
		flushed = true
	}, zap.NewNop())

	d.MarkDirty()
	d.Stop(context.Background())
	assert.True(t, flushed, "Stop must synchronously flush an outstanding dirty window")
}

func TestStopIsNoopWhenClean(t *testing.T) {
	flushed := false
	d := NewDebouncer(time.Hour, time.Hour, func(ctx context.Context) {
		flushed = true
	}, zap.NewNop())

	d.Stop(context.Background())
	assert.False(t, flushed)
}

func TestMarkDirtyAfterStopIsIgnored(t *testing.T) {
	var mu sync.Mutex
	flushes := 0
	d := NewDebouncer(5*time.Millisecond, time.Hour, func(ctx context.Context) {
		mu.Lock()
		flushes++
		mu.Unlock()
	}, zap.NewNop())

	d.Stop(context.Background())
	d.MarkDirty()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, flushes, "a stopped Debouncer must not schedule further flushes")
}
