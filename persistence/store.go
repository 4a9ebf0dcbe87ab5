// Package persistence implements the pluggable store seam and debounced
// save pipeline: a small fetch/store interface with interchangeable
// backends, holding opaque encodeStateAsUpdate() byte payloads.
package persistence

import (
	"context"

	"github.com/pkg/errors"
)

// Store is the persistence seam a document's Debouncer flushes into. It
// carries one required property: StoreFull(name, bytes) followed by
// Fetch(name) returns those same bytes.
type Store interface {
	// Fetch returns the persisted bytes for name, or (nil, false) if
	// nothing has been stored yet.
	Fetch(ctx context.Context, name string) ([]byte, bool, error)

	// StoreFull replaces the persisted bytes for name wholesale - this is
	// what the debouncer calls with doc.EncodeStateAsUpdate().
	StoreFull(ctx context.Context, name string, data []byte) error

	// Append incrementally persists one update without requiring a full
	// re-serialization; optional - implementations that don't support it
	// return ErrAppendUnsupported. The debouncer flush does not call
	// Append; it always uses StoreFull.
	Append(ctx context.Context, name string, update []byte) error
}

// ErrAppendUnsupported signals that a Store has no incremental append
// path.
var ErrAppendUnsupported = errors.New("persistence: incremental append not supported")
