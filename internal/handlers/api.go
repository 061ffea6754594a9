package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/connection"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/delivery"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Deliveries interface {
	Board() delivery.Board
	Deliveries() []delivery.Record
	Get(id string) (delivery.Record, bool)
	MarkDelivered(ctx context.Context, id string) (delivery.Record, bool, error)
	Clear(ctx context.Context) error
	HasData() bool
}

type Connection interface {
	State() connection.State
	Reconnect() error
}

type Deps struct {
	Deliveries Deliveries
	Connection Connection
	Validator  *auth.JWTValidator
	Limiter    *middleware.RateLimiter
	Failures   auth.FailureRecorder
	Gatherer   prometheus.Gatherer
	WebSocket  http.Handler
	Clients    func() int
}

type API struct {
	deps   Deps
	logger zerolog.Logger
}

func NewAPI(deps Deps, logger zerolog.Logger) *API {
	return &API{
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Routes returns the full HTTP surface of the service.
func (a *API) Routes() http.Handler {
	authn := auth.AuthMiddleware(a.deps.Validator, a.deps.Failures)
	admin := func(h http.Handler) http.Handler {
		return authn(auth.RequireRole(auth.RoleAdmin, a.deps.Failures)(h))
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("GET /v1/deliveries", a.listDeliveries)
	v1.HandleFunc("GET /v1/deliveries/{id}", a.getDelivery)
	v1.Handle("POST /v1/deliveries/{id}/deliver", authn(http.HandlerFunc(a.markDelivered)))
	v1.Handle("POST /v1/connection/reconnect", authn(http.HandlerFunc(a.reconnect)))
	v1.Handle("DELETE /v1/delivered", admin(http.HandlerFunc(a.clearDelivered)))
	if a.deps.WebSocket != nil {
		v1.Handle("GET /v1/ws", authn(a.deps.WebSocket))
	}

	var limited http.Handler = v1
	if a.deps.Limiter != nil {
		limited = a.deps.Limiter.Middleware(v1)
	}

	gatherer := a.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler())
	mux.HandleFunc("GET /ready", a.ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/v1/", limited)
	return mux
}

type boardResponse struct {
	Pending    []delivery.Record `json:"pending"`
	Recent     []delivery.Record `json:"recent"`
	Connection connection.State  `json:"connection"`
}

func (a *API) listDeliveries(w http.ResponseWriter, r *http.Request) {
	board := a.deps.Deliveries.Board()
	writeJSON(w, http.StatusOK, boardResponse{
		Pending:    board.Pending,
		Recent:     board.Recent,
		Connection: a.deps.Connection.State(),
	})
}

func (a *API) getDelivery(w http.ResponseWriter, r *http.Request) {
	record, ok := a.deps.Deliveries.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (a *API) markDelivered(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	user := auth.GetUserFromContext(r.Context())

	record, ok, err := a.deps.Deliveries.MarkDelivered(r.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Str("deliveryId", id).Msg("Failed to mark delivered")
		writeError(w, http.StatusInternalServerError, "could not record delivery")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}

	a.logger.Info().
		Str("deliveryId", id).
		Str("userId", user.GetUserID()).
		Msg("Delivery marked")
	writeJSON(w, http.StatusOK, record)
}

func (a *API) reconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Connection.Reconnect(); err != nil {
		if errors.Is(err, connection.ErrNotRunning) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.logger.Info().Str("userId", auth.GetUserFromContext(r.Context()).GetUserID()).Msg("Manual reconnect requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func (a *API) clearDelivered(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Deliveries.Clear(r.Context()); err != nil {
		a.logger.Error().Err(err).Msg("Failed to clear delivered set")
		writeError(w, http.StatusInternalServerError, "could not clear delivered set")
		return
	}
	a.logger.Warn().Str("userId", auth.GetUserFromContext(r.Context()).GetUserID()).Msg("Delivered set cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	state := a.deps.Connection.State()
	body := map[string]interface{}{
		"status":     "ready",
		"connection": state,
		"deliveries": len(a.deps.Deliveries.Deliveries()),
		"hasData":    a.deps.Deliveries.HasData(),
	}
	if a.deps.Clients != nil {
		body["clients"] = a.deps.Clients()
	}

	status := http.StatusOK
	if state.Phase == connection.PhaseFailed {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
