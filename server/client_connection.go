package server

import (
	"context"
	"sync"
	"time"

	"ycrdt/transport"

	"go.uber.org/zap"
)

// AuthState is a ClientConnection's position in its auth state machine:
// Unauthenticated -> Authenticated | Rejected.
type AuthState int

const (
	AuthUnauthenticated AuthState = iota
	AuthAuthenticated
	AuthRejected
)

// AuthFunc validates the payload of an incoming AUTH frame and decides
// whether the connection is read-only; readOnly applies to every document
// opened over it.
type AuthFunc func(ctx context.Context, payload []byte) (readOnly bool, err error)

// ClientConnection is one per transport, multiplexing every document the
// client has opened over that single connection.
type ClientConnection struct {
	conn     transport.Connection
	registry *Registry
	cfg      Config
	auth     AuthFunc
	logger   *zap.Logger

	mu       sync.Mutex
	state    AuthState
	queue    [][]byte
	docs     map[string]*DocumentConnection
	readOnly bool

	keepalive *time.Timer
	authTimer *time.Timer
}

// NewClientConnection wires conn to registry. If auth is nil the
// connection is treated as already authenticated (no AUTH frame
// required) and opens documents read-write.
func NewClientConnection(registry *Registry, cfg Config, conn transport.Connection, auth AuthFunc, logger *zap.Logger) *ClientConnection {
	cc := &ClientConnection{
		conn:     conn,
		registry: registry,
		cfg:      cfg,
		auth:     auth,
		logger:   logger,
		docs:     make(map[string]*DocumentConnection),
	}
	if auth == nil {
		cc.state = AuthAuthenticated
	} else {
		cc.authTimer = time.AfterFunc(cfg.AuthTimeout, cc.authTimeout)
	}
	cc.keepalive = time.AfterFunc(cfg.KeepaliveInterval, cc.keepaliveMissed)
	return cc
}

func (cc *ClientConnection) authTimeout() {
	cc.mu.Lock()
	rejected := cc.state == AuthUnauthenticated
	cc.state = AuthRejected
	cc.mu.Unlock()
	if rejected {
		_ = cc.conn.Close(transport.CloseAppAuthFailed, "authentication timeout")
	}
}

func (cc *ClientConnection) keepaliveMissed() {
	_ = cc.conn.Close(transport.CloseGoingAway, "keepalive timeout")
}

// Touch resets the keepalive deadline; call on any inbound traffic,
// including transport-level pings.
func (cc *ClientConnection) Touch() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.keepalive != nil {
		cc.keepalive.Reset(cc.cfg.KeepaliveInterval)
	}
}

// HandleMessage implements transport.Handler, decoding one frame and
// routing it per the connection's current auth state.
func (cc *ClientConnection) HandleMessage(ctx context.Context, data []byte) error {
	cc.Touch()

	if cc.cfg.MaxMessageBytes > 0 && len(data) > cc.cfg.MaxMessageBytes {
		return cc.conn.Close(transport.ClosePolicy, "message too large")
	}

	f, err := DecodeFrame(data)
	if err != nil {
		return err
	}

	if f.Type == MsgAuth {
		return cc.handleAuth(ctx, f)
	}

	cc.mu.Lock()
	state := cc.state
	if state == AuthUnauthenticated {
		cc.enqueueLocked(data)
		cc.mu.Unlock()
		return nil
	}
	cc.mu.Unlock()

	if state == AuthRejected {
		return nil
	}
	return cc.route(ctx, f)
}

// enqueueLocked buffers a raw frame while unauthenticated. The queue is
// bounded; the oldest queued frame is dropped on overflow, reported via
// the warning log since this connection has no other channel to signal
// it on before authentication completes.
func (cc *ClientConnection) enqueueLocked(data []byte) {
	if cc.cfg.AuthQueueSize > 0 && len(cc.queue) >= cc.cfg.AuthQueueSize {
		cc.queue = cc.queue[1:]
		if cc.logger != nil {
			cc.logger.Warn("auth queue overflow, dropping oldest frame", zap.String("connection", cc.conn.ConnectionID()))
		}
	}
	cc.queue = append(cc.queue, data)
}

func (cc *ClientConnection) handleAuth(ctx context.Context, f Frame) error {
	var readOnly bool
	var err error
	if cc.auth != nil {
		readOnly, err = cc.auth(ctx, f.Payload)
	}

	cc.mu.Lock()
	if err != nil {
		cc.state = AuthRejected
		cc.mu.Unlock()
		return cc.conn.Close(transport.CloseAppAuthFailed, "authentication rejected")
	}
	cc.state = AuthAuthenticated
	cc.readOnly = readOnly
	if cc.authTimer != nil {
		cc.authTimer.Stop()
	}
	queued := cc.queue
	cc.queue = nil
	cc.mu.Unlock()

	for _, data := range queued {
		qf, err := DecodeFrame(data)
		if err != nil {
			continue
		}
		if err := cc.route(ctx, qf); err != nil && cc.logger != nil {
			cc.logger.Warn("queued frame routing failed", zap.Error(err))
		}
	}
	return nil
}

func (cc *ClientConnection) route(ctx context.Context, f Frame) error {
	if f.Type == MsgClose {
		return cc.conn.Close(transport.CloseNormal, "client requested close")
	}

	cc.mu.Lock()
	dc, ok := cc.docs[f.DocName]
	readOnly := cc.readOnly
	cc.mu.Unlock()
	if !ok {
		entry, err := cc.registry.Open(ctx, f.DocName)
		if err != nil {
			return err
		}
		dc = NewDocumentConnection(ctx, cc.registry, entry, cc.conn, readOnly)
		cc.mu.Lock()
		cc.docs[f.DocName] = dc
		cc.mu.Unlock()
	}
	return dc.HandleFrame(ctx, f)
}

// HandleClose implements transport.Handler: every open DocumentConnection
// is closed, releasing its document's reference count.
func (cc *ClientConnection) HandleClose(code transport.CloseCode, reason string) {
	cc.mu.Lock()
	docs := cc.docs
	cc.docs = make(map[string]*DocumentConnection)
	if cc.keepalive != nil {
		cc.keepalive.Stop()
	}
	if cc.authTimer != nil {
		cc.authTimer.Stop()
	}
	cc.mu.Unlock()

	ctx := context.Background()
	for _, dc := range docs {
		dc.Close(ctx)
	}
}
