package handler

import (
	"net/http"

	"spacebook/internal/holds/service"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"
	"spacebook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type HoldHandler struct {
	service service.HoldService
	log     *logger.Logger
}

func NewHoldHandler(service service.HoldService, log *logger.Logger) *HoldHandler {
	return &HoldHandler{
		service: service,
		log:     log,
	}
}

func (h *HoldHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.HoldRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	hold, err := h.service.Acquire(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, hold); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *HoldHandler) Refresh(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Refresh", err)
		return
	}

	hold, err := h.service.Refresh(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "Refresh", err)
		return
	}

	if err := httputil.WriteSuccess(w, hold); err != nil {
		h.log.Error("failed to write success response", "handler", "Refresh", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) Release(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Release", err)
		return
	}

	id := ps.ByName("id")
	if err := h.service.Release(r.Context(), id, actor.UserID); err != nil {
		h.writeError(w, "Release", err)
		return
	}

	if err := httputil.WriteSuccess(w, map[string]string{"id": id}); err != nil {
		h.log.Error("failed to write success response", "handler", "Release", "operation", "WriteSuccess", "error", err)
	}
}

func (h *HoldHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *HoldHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/holds", h.Create)
	router.PUT("/api/v1/holds/:id", h.Refresh)
	router.DELETE("/api/v1/holds/:id", h.Release)
}
