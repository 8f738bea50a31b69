package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bipbip/bips-backend/internal/handlers"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Bips        *handlers.BipHandler
	Socket      http.Handler // nil when realtime is off or the gateway owns sockets
	Connections *handlers.ConnectionHandler
	Health      http.HandlerFunc

	// CreateLimit wraps POST /api/bips. Optional.
	CreateLimit func(http.Handler) http.Handler

	Gatherer prometheus.Gatherer
}

func SetupRoutes(r chi.Router, h Handlers) {
	r.Get("/health", h.Health)
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	// Bip routes
	r.Route("/api/bips", func(r chi.Router) {
		r.Get("/", h.Bips.Query)
		if h.CreateLimit != nil {
			r.With(h.CreateLimit).Post("/", h.Bips.Create)
		} else {
			r.Post("/", h.Bips.Create)
		}
	})

	// Connection hooks for an external WebSocket gateway
	r.Post("/api/connections", h.Connections.Connect)
	r.Delete("/api/connections/{id}", h.Connections.Disconnect)

	if h.Socket != nil {
		r.Method(http.MethodGet, "/ws/bips", h.Socket)
	}
}
