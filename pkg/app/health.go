package app

import (
	"context"
	"net/http"
	"time"

	"spacebook/pkg/client"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const readyCheckTimeout = 2 * time.Second

type HealthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
	Redis  string `json:"redis,omitempty"`
}

// HealthHandler serves liveness and readiness. Readiness pings only the
// backends that were connected at startup.
type HealthHandler struct {
	client *client.Client
	log    *logger.Logger
}

func NewHealthHandler(c *client.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		client: c,
		log:    log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready"}
	status := http.StatusOK

	if h.client != nil && h.client.Mongo != nil {
		resp.Mongo = "ok"
		if err := h.client.Mongo.Ping(ctx, nil); err != nil {
			h.log.Error("MongoDB health check failed", "error", err, "path", r.URL.Path)
			resp.Mongo = "error"
			status = http.StatusServiceUnavailable
		}
	}
	if h.client != nil && h.client.Redis != nil {
		resp.Redis = "ok"
		if err := h.client.Redis.Ping(ctx).Err(); err != nil {
			h.log.Error("Redis health check failed", "error", err, "path", r.URL.Path)
			resp.Redis = "error"
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		resp.Status = "unavailable"
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
