package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFetchMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	data, ok, err := s.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestMemoryStoreStoreFullThenFetchRoundTrips(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.StoreFull(context.Background(), "doc-1", []byte("hello")))

	data, ok, err := s.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestMemoryStoreFetchDoesNotAliasStoredBytes(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.StoreFull(context.Background(), "doc-1", []byte("hello")))

	data, _, err := s.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	data[0] = 'H'

	again, _, err := s.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again, "mutating a fetched slice must not affect the stored copy")
}

func TestMemoryStoreAppendIsUnsupported(t *testing.T) {
	s := NewMemoryStore()
	err := s.Append(context.Background(), "doc-1", []byte("x"))
	assert.ErrorIs(t, err, ErrAppendUnsupported)
}
