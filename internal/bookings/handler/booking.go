package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"spacebook/internal/bookings/service"
	apperrors "spacebook/pkg/errors"
	httputil "spacebook/pkg/http"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"
	"spacebook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

type approveBody struct {
	AdminResponse string `json:"admin_response"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.BookingRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	result, err := h.service.Create(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	booking, err := h.service.GetByID(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	query, err := parseListQuery(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.List(r.Context(), actor, query, limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	var updates model.BookingUpdate
	if err := httputil.DecodeJSON(r, &updates, false); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	booking, err := h.service.Update(r.Context(), actor, ps.ByName("id"), &updates)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	var body approveBody
	if err := httputil.DecodeJSON(r, &body, true); err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	result, err := h.service.Approve(r.Context(), actor, ps.ByName("id"), body.AdminResponse)
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Approve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Deny(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.withReason(w, r, ps, "Deny", h.service.Deny)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.withReason(w, r, ps, "Cancel", h.service.Cancel)
}

func (h *BookingHandler) ConfirmArrival(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, "ConfirmArrival", err)
		return
	}

	booking, err := h.service.ConfirmArrival(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "ConfirmArrival", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "ConfirmArrival", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) withReason(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	op func(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error),
) {
	actor, err := middleware.RequireActor(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	var body reasonBody
	if err := httputil.DecodeJSON(r, &body, true); err != nil {
		h.writeError(w, name, err)
		return
	}

	booking, err := op(r.Context(), actor, ps.ByName("id"), body.Reason)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

// parseListQuery reads user_id, facility_id, a comma separated status list
// and an RFC 3339 from/to range.
func parseListQuery(r *http.Request) (service.ListQuery, error) {
	q := r.URL.Query()
	query := service.ListQuery{
		UserID:     q.Get("user_id"),
		FacilityID: q.Get("facility_id"),
	}

	if s := q.Get("status"); s != "" {
		for _, raw := range strings.Split(s, ",") {
			status := model.Status(strings.TrimSpace(raw))
			if !status.Valid() {
				return query, apperrors.InvalidInput("invalid status parameter: " + raw)
			}
			query.Statuses = append(query.Statuses, status)
		}
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &query.From}, {"to", &query.To}} {
		s := q.Get(p.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return query, apperrors.InvalidInput("invalid " + p.name + " parameter: " + s)
		}
		*p.dst = &t
	}

	if query.From != nil && query.To != nil && !query.To.After(*query.From) {
		return query, apperrors.InvalidInput("to must be after from")
	}
	return query, nil
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.GetAll)
	router.GET("/api/v1/bookings/:id", h.GetByID)
	router.PATCH("/api/v1/bookings/:id", h.Update)
	router.POST("/api/v1/bookings/:id/approve", h.Approve)
	router.POST("/api/v1/bookings/:id/deny", h.Deny)
	router.POST("/api/v1/bookings/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/:id/confirm-arrival", h.ConfirmArrival)
}
