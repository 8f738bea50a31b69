package services

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// PushConn is the minimal interface our WebSocket implementation must satisfy.
type PushConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SocketAttacher binds a freshly accepted socket to a push transport.
type SocketAttacher interface {
	Attach(ctx context.Context, connectionID string, conn PushConn) error
	Detach(ctx context.Context, connectionID string)
}

type hubConn struct {
	conn PushConn
	mu   sync.Mutex // gorilla allows a single concurrent writer
}

// Hub tracks the sockets accepted by this process.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*hubConn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*hubConn)}
}

// Attach registers or replaces the socket of connectionID.
func (h *Hub) Attach(_ context.Context, connectionID string, conn PushConn) error {
	h.mu.Lock()
	h.conns[connectionID] = &hubConn{conn: conn}
	h.mu.Unlock()
	return nil
}

// Detach forgets connectionID. The socket itself is closed by its owner.
func (h *Hub) Detach(_ context.Context, connectionID string) {
	h.mu.Lock()
	delete(h.conns, connectionID)
	h.mu.Unlock()
}

// Len returns the number of local sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send writes payload as a text frame. Unknown ids and closed sockets are
// reported as ErrGone.
func (h *Hub) Send(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	hc, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrGone, "no local socket for %s", connectionID)
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	_ = hc.conn.SetWriteDeadline(deadline)

	if err := hc.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if isGoneWriteError(err) {
			h.Detach(ctx, connectionID)
			return errors.Wrapf(ErrGone, "socket %s closed: %v", connectionID, err)
		}
		return errors.Wrapf(err, "write to %s", connectionID)
	}
	return nil
}

// isGoneWriteError is true for closed sockets and for peers that vanished
// without a close frame.
func isGoneWriteError(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
