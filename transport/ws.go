package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sendQueueSize bounds how many outstanding writes a connection's
// writeLoop goroutine will buffer before Send starts dropping sends
// rather than letting a stalled peer grow the queue without limit.
const sendQueueSize = 256

// WSConnection adapts a *websocket.Conn to the Connection interface: a
// mutex-guarded *websocket.Conn, a context/cancel pair for shutdown, a
// dedicated read-loop goroutine that calls back into a Handler, and a
// dedicated write-loop goroutine that drains a buffered send queue so a
// slow or stalled peer's write deadline never blocks the caller of Send.
type WSConnection struct {
	conn   *websocket.Conn
	id     string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	sendQueue chan sendRequest
}

type sendRequest struct {
	data   []byte
	result chan<- error
}

// NewWSConnection wraps conn under id, suitable for registering with a
// server.Registry-driven DocumentConnection. The write-loop goroutine
// starts immediately; callers need only call Serve to begin reading.
func NewWSConnection(conn *websocket.Conn, id string, logger *zap.Logger) *WSConnection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &WSConnection{
		conn:      conn,
		id:        id,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		sendQueue: make(chan sendRequest, sendQueueSize),
	}
	go c.writeLoop()
	return c
}

// writeLoop is the sole goroutine that performs WriteMessage calls,
// serializing them the way gorilla/websocket requires while decoupling
// every Send caller from the blocking I/O and write deadline below.
func (c *WSConnection) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.sendQueue:
			err := c.writeNow(req.data)
			if req.result != nil {
				req.result <- err
				close(req.result)
			}
		}
	}
}

func (c *WSConnection) writeNow(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed{ConnectionID: c.id}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Serve runs the read loop until the connection closes, dispatching every
// binary frame to handler.HandleMessage and the terminal close to
// handler.HandleClose. Call this from its own goroutine.
func (c *WSConnection) Serve(handler Handler) {
	defer c.teardown(handler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := handler.HandleMessage(c.ctx, data); err != nil {
			if c.logger != nil {
				c.logger.Warn("message handler error", zap.String("connection", c.id), zap.Error(err))
			}
		}
	}
}

func (c *WSConnection) teardown(handler Handler) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	_ = c.conn.Close()
	handler.HandleClose(CloseAbnormal(c.conn), "connection closed")
}

// CloseAbnormal is a small helper kept distinct from the close-code
// constants so Serve's teardown path always has a code to report even
// when the peer closed without a control frame.
func CloseAbnormal(_ *websocket.Conn) CloseCode { return CloseGoingAway }

// Send enqueues data for the write-loop goroutine and returns
// immediately; it never performs the write itself. The returned channel
// receives the write's outcome once writeLoop gets to it. If the queue
// is full - a stalled peer with sendQueueSize writes already
// outstanding - the send is dropped and the channel is closed without a
// value, so a persistently slow connection sheds load instead of
// growing memory without bound.
func (c *WSConnection) Send(ctx context.Context, data []byte) <-chan error {
	result := make(chan error, 1)

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		result <- ErrClosed{ConnectionID: c.id}
		close(result)
		return result
	}

	select {
	case c.sendQueue <- sendRequest{data: data, result: result}:
	default:
		close(result)
		if c.logger != nil {
			c.logger.Warn("send queue full, dropping frame", zap.String("connection", c.id))
		}
	}
	return result
}

func (c *WSConnection) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(int(code), reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
	c.cancel()
	return c.conn.Close()
}

func (c *WSConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *WSConnection) RemoteAddress() string { return c.conn.RemoteAddr().String() }

func (c *WSConnection) ConnectionID() string { return c.id }

// ErrClosed is delivered on Send's result channel for an already-closed
// connection. The server does not wrap it as common.ErrTransportClosed;
// DocumentConnection returns the error from Send unchanged.
type ErrClosed struct {
	ConnectionID string
}

func (e ErrClosed) Error() string { return "transport: connection closed: " + e.ConnectionID }
