package server

import (
	"context"
	"sync"

	"ycrdt/transport"
)

// fakeConnection is an in-memory transport.Connection used to drive
// ClientConnection/DocumentConnection in tests without a real socket.
type fakeConnection struct {
	id string

	mu     sync.Mutex
	open   bool
	sent   [][]byte
	closed bool
	code   transport.CloseCode
	reason string
}

func newFakeConnection(id string) *fakeConnection {
	return &fakeConnection{id: id, open: true}
}

func (f *fakeConnection) Send(ctx context.Context, data []byte) <-chan error {
	result := make(chan error, 1)
	f.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	f.mu.Unlock()
	result <- nil
	close(result)
	return result
}

func (f *fakeConnection) Close(code transport.CloseCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closed = true
	f.code = code
	f.reason = reason
	return nil
}

func (f *fakeConnection) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConnection) RemoteAddress() string { return "test://" + f.id }
func (f *fakeConnection) ConnectionID() string  { return f.id }

func (f *fakeConnection) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}
