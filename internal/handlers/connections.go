package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ConnectionHandler serves the connect and disconnect hooks of an external
// WebSocket gateway.
type ConnectionHandler struct {
	registry Registrar
	logger   *zap.Logger
}

func NewConnectionHandler(registry Registrar, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{registry: registry, logger: logger}
}

type ConnectRequest struct {
	ConnectionID string `json:"connection_id"`
}

// Connect handles POST /api/connections.
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.registry.Register(r.Context(), req.ConnectionID); err != nil {
		if statusFor(err) != http.StatusBadRequest {
			h.logger.Error("connect hook failed", zap.String("connection_id", req.ConnectionID), zap.Error(err))
		}
		writeError(w, statusFor(err), messageFor(err))
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Connected."})
}

// Disconnect handles DELETE /api/connections/{id}.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "id")

	if err := h.registry.Unregister(r.Context(), connectionID); err != nil {
		if statusFor(err) != http.StatusBadRequest {
			h.logger.Error("disconnect hook failed", zap.String("connection_id", connectionID), zap.Error(err))
		}
		writeError(w, statusFor(err), messageFor(err))
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Success: true, Message: "Disconnected."})
}
