package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
	"github.com/mediakeep/photo-pipeline/pkg/photopipe/broker"
)

// OpsHandler exposes operational endpoints for the pipeline: health,
// queue depths, and an ingest endpoint that feeds raw upload events into
// the router.
type OpsHandler struct {
	router *photopipe.Router
	queues map[string]broker.DepthReporter
	logger *slog.Logger
}

// NewOpsHandler creates a new ops handler. queues maps a display name to
// the queue whose depth it reports; queues that cannot report depth are
// skipped by the caller.
func NewOpsHandler(router *photopipe.Router, queues map[string]broker.DepthReporter, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{
		router: router,
		queues: queues,
		logger: logger,
	}
}

// Routes returns the routes for pipeline operations
func (h *OpsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", h.Health)
	r.Get("/queues", h.QueueDepths)
	r.Post("/events", h.IngestEvent)

	return r
}

// HealthResponse is the response body for a health check
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// Health reports process liveness
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// QueueDepthResponse is the response body for queue depths
type QueueDepthResponse struct {
	Depths map[string]int `json:"depths"`
}

// QueueDepths reports the approximate number of waiting messages per queue
func (h *OpsHandler) QueueDepths(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]int, len(h.queues))
	for name, q := range h.queues {
		n, err := q.Depth(r.Context())
		if err != nil {
			h.logger.Error("failed to query queue depth", "queue", name, "err", err)
			http.Error(w, "failed to query queue depth", http.StatusBadGateway)
			return
		}
		depths[name] = n
	}
	render.JSON(w, r, QueueDepthResponse{Depths: depths})
}

// IngestEvent accepts a raw upload event document and routes it into the
// pipeline. The body may be a bare upload event or a full storage event
// notification, wrapped or not.
func (h *OpsHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	if err := h.router.Handle(r.Context(), body); err != nil {
		h.logger.Error("failed to route event", "err", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "accepted"})
}
