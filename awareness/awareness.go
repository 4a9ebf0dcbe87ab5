// Package awareness implements per-document ephemeral presence state:
// cursor positions, selections and other non-persisted per-client data.
package awareness

import (
	"encoding/json"
	"sync"
	"time"

	"ycrdt/codec"
	"ycrdt/common"
)

// State is one client's ephemeral presence: a monotonically increasing
// clock and an opaque JSON-encoded application state (e.g. cursor
// position, selection range, user color).
type State struct {
	Clock    uint64
	JSON     string
	lastSeen time.Time
}

// Awareness holds every known client's presence for one document.
// ApplyUpdate/GetStates/RemoveStates are safe for concurrent use.
type Awareness struct {
	mu      sync.Mutex
	clients map[common.ClientID]State
	subs    []func(changed []common.ClientID, removed []common.ClientID, origin string)
	timeout time.Duration
	now     func() time.Time
}

// New creates an Awareness instance with the given expiration timeout.
func New(timeout time.Duration) *Awareness {
	return &Awareness{
		clients: make(map[common.ClientID]State),
		timeout: timeout,
		now:     time.Now,
	}
}

// Observe registers cb to run after every ApplyUpdate that actually
// changed the client map and after every SetLocalState or non-empty
// RemoveStates call, receiving the ids that changed (added or updated)
// and the ids that were removed.
func (a *Awareness) Observe(cb func(changed, removed []common.ClientID, origin string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, cb)
}

func (a *Awareness) emit(changed, removed []common.ClientID, origin string) {
	if len(changed) == 0 && len(removed) == 0 {
		return
	}
	for _, cb := range a.subs {
		cb(changed, removed, origin)
	}
}

// ApplyUpdate parses bytes written by GetStates/encodeEntries:
// [N]{[clientId][clock][jsonOrEmpty]}. An empty-string state removes the
// client; otherwise the entry is accepted only when clock > storedClock
// (stale writes are silently dropped).
func (a *Awareness) ApplyUpdate(update []byte, origin string) error {
	r := codec.NewReader(update)
	n, err := r.ReadVarUint()
	if err != nil {
		return common.ErrInvalidUpdate{Reason: err.Error()}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var changed, removed []common.ClientID
	for i := uint64(0); i < n; i++ {
		clientRaw, err := r.ReadVarUint()
		if err != nil {
			return common.ErrInvalidUpdate{Reason: err.Error()}
		}
		clock, err := r.ReadVarUint()
		if err != nil {
			return common.ErrInvalidUpdate{Reason: err.Error()}
		}
		jsonState, err := r.ReadVarString()
		if err != nil {
			return common.ErrInvalidUpdate{Reason: err.Error()}
		}
		client := common.ClientID(clientRaw)

		if jsonState == "" {
			if _, ok := a.clients[client]; ok {
				delete(a.clients, client)
				removed = append(removed, client)
			}
			continue
		}

		current, ok := a.clients[client]
		if ok && clock <= current.Clock {
			continue
		}
		a.clients[client] = State{Clock: clock, JSON: jsonState, lastSeen: a.now()}
		changed = append(changed, client)
	}

	a.emit(changed, removed, origin)
	return nil
}

// SetLocalState sets clientID's state to value (marshaled to JSON),
// bumping its clock by one, and returns the encoded single-entry update
// suitable for ApplyUpdate on a remote replica or broadcast.
func (a *Awareness) SetLocalState(clientID common.ClientID, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	current := a.clients[clientID]
	next := State{Clock: current.Clock + 1, JSON: string(data), lastSeen: a.now()}
	a.clients[clientID] = next
	a.mu.Unlock()

	a.emit([]common.ClientID{clientID}, nil, "")
	return a.encodeEntries(map[common.ClientID]State{clientID: next}), nil
}

// RemoveStates bumps each id's clock and emits a removal update.
func (a *Awareness) RemoveStates(ids []common.ClientID) []byte {
	a.mu.Lock()
	entries := make(map[common.ClientID]State, len(ids))
	var removed []common.ClientID
	for _, id := range ids {
		current := a.clients[id]
		delete(a.clients, id)
		entries[id] = State{Clock: current.Clock + 1, JSON: ""}
		removed = append(removed, id)
	}
	a.mu.Unlock()

	a.emit(nil, removed, "")
	return a.encodeEntries(entries)
}

// GetStates encodes the full current client map, for QUERY_AWARENESS
// replies and initial sync.
func (a *Awareness) GetStates() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.encodeEntries(a.clients)
}

func (a *Awareness) encodeEntries(entries map[common.ClientID]State) []byte {
	w := codec.NewWriter()
	w.WriteVarUint(uint64(len(entries)))
	for client, st := range entries {
		w.WriteVarUint(uint64(client))
		w.WriteVarUint(st.Clock)
		w.WriteVarString(st.JSON)
	}
	return w.Bytes()
}

// ExpireStale removes every entry whose lastSeen exceeds the configured
// timeout (strictly greater than) and returns the removal update, or nil
// if nothing expired.
func (a *Awareness) ExpireStale() []byte {
	a.mu.Lock()
	now := a.now()
	var stale []common.ClientID
	for client, st := range a.clients {
		if now.Sub(st.lastSeen) > a.timeout {
			stale = append(stale, client)
		}
	}
	a.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}
	return a.RemoveStates(stale)
}

// RunExpirySweep starts a background loop that calls ExpireStale every
// interval until the returned stop function is called, broadcasting any
// non-nil removal update via onExpire.
func (a *Awareness) RunExpirySweep(interval time.Duration, onExpire func([]byte)) func() {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if update := a.ExpireStale(); update != nil && onExpire != nil {
					onExpire(update)
				}
			}
		}
	}()
	return func() { close(stop) }
}
