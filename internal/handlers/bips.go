package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bipbip/bips-backend/internal/models"
	"github.com/bipbip/bips-backend/internal/services"
)

// BipService is the ledger as seen by the HTTP layer.
type BipService interface {
	Add(ctx context.Context, in services.NewBip) (string, error)
	Query(ctx context.Context, q services.BipQuery) ([]models.BipSummary, error)
}

// Notifier broadcasts push events. The dispatcher implements it.
type Notifier interface {
	NotifyAll(ctx context.Context, event models.PushEvent) (int, error)
}

// CreateBipRequest is the body of POST /api/bips.
type CreateBipRequest struct {
	Pseudo       string   `json:"pseudo"`
	StatusCode   *int     `json:"status_code"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	ConnectionID string   `json:"connection_id,omitempty"`
}

// CreateBipResponse is returned after a bip is stored.
type CreateBipResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// BipHandler serves the create and query endpoints of bips.
type BipHandler struct {
	bips          BipService
	notifier      Notifier
	notifyTimeout time.Duration
	logger        *zap.Logger
}

// NewBipHandler wires the bip endpoints. A nil notifier disables realtime
// notification.
func NewBipHandler(bips BipService, notifier Notifier, notifyTimeout time.Duration, logger *zap.Logger) *BipHandler {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &BipHandler{bips: bips, notifier: notifier, notifyTimeout: notifyTimeout, logger: logger}
}

// Create handles POST /api/bips.
func (h *BipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.bips.Add(r.Context(), services.NewBip{
		Pseudo:       req.Pseudo,
		StatusCode:   req.StatusCode,
		Location:     req.Location,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		ConnectionID: req.ConnectionID,
	})
	if err != nil {
		status := statusFor(err)
		if status != http.StatusBadRequest {
			h.logger.Error("failed to add bip", zap.Error(err))
		}
		writeError(w, status, messageFor(err))
		return
	}

	h.notify(r.Context())

	writeJSON(w, http.StatusCreated, CreateBipResponse{
		Success: true,
		ID:      id,
		Message: fmt.Sprintf("Bip stacked with ID: %s", id),
	})
}

// notify runs the fan-out to completion. The bip is already stored, so
// failures are only logged.
func (h *BipHandler) notify(ctx context.Context) {
	if h.notifier == nil {
		return
	}
	// a client hanging up must not cut the broadcast short
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.notifyTimeout)
	defer cancel()

	attempted, err := h.notifier.NotifyAll(ctx, models.NewBipEvent())
	if err != nil {
		h.logger.Warn("new-bip notification skipped", zap.Error(err))
		return
	}
	h.logger.Debug("new-bip notification sent", zap.Int("attempted", attempted))
}

// Query handles GET /api/bips?location=&latitude=&longitude=.
func (h *BipHandler) Query(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	location := strings.TrimSpace(params.Get("location"))
	if location == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return
	}

	lat, err := optionalFloat(params.Get("latitude"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "latitude must be a number")
		return
	}
	lon, err := optionalFloat(params.Get("longitude"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "longitude must be a number")
		return
	}

	bips, err := h.bips.Query(r.Context(), services.BipQuery{
		Location:  location,
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		if statusFor(err) != http.StatusBadRequest {
			h.logger.Error("failed to query bips", zap.String("location", location), zap.Error(err))
		}
		writeError(w, statusFor(err), messageFor(err))
		return
	}

	writeJSON(w, http.StatusOK, bips)
}

func optionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
