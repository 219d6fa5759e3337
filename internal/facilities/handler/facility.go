package handler

import (
	"context"
	"net/http"
	"strconv"

	"spacebook/internal/facilities/service"
	apperrors "spacebook/pkg/errors"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"
	"spacebook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type FacilityHandler struct {
	service service.FacilityService
	log     *logger.Logger
}

func NewFacilityHandler(service service.FacilityService, log *logger.Logger) *FacilityHandler {
	return &FacilityHandler{
		service: service,
		log:     log,
	}
}

func (h *FacilityHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var facility model.Facility
	if err := httputil.DecodeJSON(r, &facility, false); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := h.service.Create(r.Context(), actor, &facility); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, facility); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *FacilityHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	facility, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, facility); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *FacilityHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	activeOnly := false
	if s := r.URL.Query().Get("active"); s != "" {
		activeOnly, err = strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, "GetAll", apperrors.InvalidInput("invalid active parameter: "+s))
			return
		}
	}

	facilities, total, err := h.service.GetAll(r.Context(), activeOnly, limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, facilities, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *FacilityHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	var updates model.FacilityUpdate
	if err := httputil.DecodeJSON(r, &updates, false); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	facility, err := h.service.Update(r.Context(), actor, ps.ByName("id"), &updates)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, facility); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *FacilityHandler) MarkUnavailable(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.changeUnavailable(w, r, ps, "MarkUnavailable", h.service.MarkUnavailable)
}

func (h *FacilityHandler) ClearUnavailable(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.changeUnavailable(w, r, ps, "ClearUnavailable", h.service.ClearUnavailable)
}

func (h *FacilityHandler) changeUnavailable(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, actor model.Actor, id string, dr model.DateRange) (*model.Facility, error),
) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	var dr model.DateRange
	if err := httputil.DecodeJSON(r, &dr, false); err != nil {
		h.writeError(w, name, err)
		return
	}

	facility, err := op(r.Context(), actor, ps.ByName("id"), dr)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, facility); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *FacilityHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *FacilityHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/facilities", h.Create)
	router.GET("/api/v1/facilities", h.GetAll)
	router.GET("/api/v1/facilities/:id", h.GetByID)
	router.PATCH("/api/v1/facilities/:id", h.Update)
	router.POST("/api/v1/facilities/:id/unavailable", h.MarkUnavailable)
	router.DELETE("/api/v1/facilities/:id/unavailable", h.ClearUnavailable)
}
