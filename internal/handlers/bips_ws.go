package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/models"
	"github.com/bipbip/bips-backend/internal/services"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// Registrar is the connection registry as seen by the HTTP layer.
type Registrar interface {
	Register(ctx context.Context, connectionID string) error
	Unregister(ctx context.Context, connectionID string) error
}

var bipsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origins are enforced by the CORS layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// BipSocketHandler accepts subscriber sockets on GET /ws/bips.
type BipSocketHandler struct {
	attacher services.SocketAttacher
	registry Registrar
	logger   *zap.Logger
}

func NewBipSocketHandler(attacher services.SocketAttacher, registry Registrar, logger *zap.Logger) *BipSocketHandler {
	return &BipSocketHandler{attacher: attacher, registry: registry, logger: logger}
}

// ServeHTTP upgrades the request, announces the connection id, registers it
// and holds the socket open until the client leaves.
func (h *BipSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := bipsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	logger := h.logger.With(zap.String("connection_id", connectionID))

	// written before Attach, while this goroutine is still the only writer
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(models.PushEvent{Kind: models.PushKindConnected, ConnectionID: connectionID}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.attacher.Attach(ctx, connectionID, conn); err != nil {
		logger.Error("failed to attach socket", zap.Error(err))
		return
	}
	defer h.attacher.Detach(context.Background(), connectionID)

	if err := h.registry.Register(ctx, connectionID); err != nil {
		logger.Error("failed to register connection", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "registry unavailable"),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer h.unregister(logger, connectionID)
	logger.Info("subscriber connected")

	go h.keepAlive(ctx, conn)

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	// subscribers have nothing to say; reads only drive keepalive and close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("socket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

func (h *BipSocketHandler) unregister(logger *zap.Logger, connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.registry.Unregister(ctx, connectionID); err != nil {
		logger.Warn("failed to unregister connection", zap.Error(err))
		return
	}
	logger.Info("subscriber disconnected")
}

// keepAlive pings until ctx ends. WriteControl may run alongside other writers.
func (h *BipSocketHandler) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
