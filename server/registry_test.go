package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ycrdt/common"
	"ycrdt/crdt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoadFunc(calls *int32) LoadFunc {
	return func(ctx context.Context, name string) (*crdt.Doc, error) {
		atomic.AddInt32(calls, 1)
		return crdt.NewDoc(common.NewClientID()), nil
	}
}

func TestOpenLoadsOnceAndIncrementsRefCount(t *testing.T) {
	var calls int32
	r := NewRegistry(DefaultConfig(), testLoadFunc(&calls), nil, nil, nil, nil)

	e1, err := r.Open(context.Background(), "doc-1")
	require.NoError(t, err)
	e2, err := r.Open(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 1, r.Count())
}

func TestConcurrentOpenOfSameNameLoadsExactlyOnce(t *testing.T) {
	var calls int32
	r := NewRegistry(DefaultConfig(), testLoadFunc(&calls), nil, nil, nil, nil)

	var wg sync.WaitGroup
	entries := make([]*DocumentEntry, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := r.Open(context.Background(), "shared-doc")
			require.NoError(t, err)
			entries[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range entries {
		assert.Same(t, entries[0], e)
	}
	assert.Equal(t, int32(1), calls)
}

func TestReleaseUnloadsOnlyWhenRefCountReachesZero(t *testing.T) {
	var calls int32
	unloaded := make(chan string, 1)
	r := NewRegistry(DefaultConfig(), testLoadFunc(&calls), func(ctx context.Context, e *DocumentEntry) {
		unloaded <- e.Name
	}, nil, nil, nil)

	_, err := r.Open(context.Background(), "doc-1")
	require.NoError(t, err)
	_, err = r.Open(context.Background(), "doc-1")
	require.NoError(t, err)

	r.Release(context.Background(), "doc-1")
	select {
	case <-unloaded:
		t.Fatal("must not unload while refCount > 0")
	case <-time.After(20 * time.Millisecond):
	}

	r.Release(context.Background(), "doc-1")
	select {
	case name := <-unloaded:
		assert.Equal(t, "doc-1", name)
	case <-time.After(time.Second):
		t.Fatal("expected unload after refCount reaches zero")
	}
	assert.Equal(t, 0, r.Count())
}

func TestReleaseOfUnknownNameIsNoop(t *testing.T) {
	var calls int32
	r := NewRegistry(DefaultConfig(), testLoadFunc(&calls), func(ctx context.Context, e *DocumentEntry) {
		t.Fatal("unload should not be called")
	}, nil, nil, nil)

	r.Release(context.Background(), "never-opened")
}
