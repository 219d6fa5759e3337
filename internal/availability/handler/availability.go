package handler

import (
	"net/http"

	"spacebook/internal/availability/service"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type AvailabilityHandler struct {
	service service.AvailabilityService
	log     *logger.Logger
}

func NewAvailabilityHandler(service service.AvailabilityService, log *logger.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		log:     log,
	}
}

// Get serves GET /api/v1/availability?date=YYYY-MM-DD[&facility_id=...].
// The date defaults to today in the configured time zone.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	q := r.URL.Query()
	grid, err := h.service.GetAvailability(r.Context(), actor, q.Get("date"), q.Get("facility_id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	if err := httputil.WriteSuccess(w, grid); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *AvailabilityHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *AvailabilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/availability", h.Get)
}
