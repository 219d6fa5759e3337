package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spacebook/internal/bookings/lifecycle"
	"spacebook/internal/bookings/service"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"
	"spacebook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type mockBookingService struct {
	service.BookingService
	createFunc  func(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*service.CreateResult, error)
	listFunc    func(ctx context.Context, actor model.Actor, query service.ListQuery, limit int, offset int64) ([]*model.Booking, int64, error)
	approveFunc func(ctx context.Context, actor model.Actor, id, adminResponse string) (*lifecycle.ApproveResult, error)
	cancelFunc  func(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error)
}

func (m *mockBookingService) Create(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*service.CreateResult, error) {
	return m.createFunc(ctx, actor, req)
}

func (m *mockBookingService) List(ctx context.Context, actor model.Actor, query service.ListQuery, limit int, offset int64) ([]*model.Booking, int64, error) {
	return m.listFunc(ctx, actor, query, limit, offset)
}

func (m *mockBookingService) Approve(ctx context.Context, actor model.Actor, id, adminResponse string) (*lifecycle.ApproveResult, error) {
	return m.approveFunc(ctx, actor, id, adminResponse)
}

func (m *mockBookingService) Cancel(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
	return m.cancelFunc(ctx, actor, id, reason)
}

func newRouter(svc service.BookingService) *httprouter.Router {
	router := httprouter.New()
	NewBookingHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func asActor(req *http.Request, actor model.Actor) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

type errorBody struct {
	Error apperrors.ErrorResponse `json:"error"`
}

var (
	member = model.Actor{UserID: "alice", Roles: []model.Role{model.RoleMember}}
	admin  = model.Actor{UserID: "root", Roles: []model.Role{model.RoleAdmin}}
)

func TestCreate(t *testing.T) {
	svc := &mockBookingService{
		createFunc: func(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*service.CreateResult, error) {
			if req.Participants > 6 {
				return nil, apperrors.Validation("too many", nil).WithReason("capacity_exceeded")
			}
			return &service.CreateResult{Booking: &model.Booking{ID: "b-1", UserID: actor.UserID, Status: model.StatusPending}}, nil
		},
	}
	router := newRouter(svc)

	valid := `{"facility_id":"room-a","start":"2026-03-10T10:00:00Z","end":"2026-03-10T11:00:00Z","purpose":"Sync","participants":4}`
	tests := []struct {
		name       string
		body       string
		actor      *model.Actor
		wantStatus int
		wantReason string
	}{
		{name: "created", body: valid, actor: &member, wantStatus: http.StatusCreated},
		{name: "no actor", body: valid, wantStatus: http.StatusUnauthorized},
		{name: "empty body", body: "", actor: &member, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"facility_id":"room-a","room":"x"}`, actor: &member, wantStatus: http.StatusBadRequest},
		{
			name:       "over capacity",
			body:       `{"facility_id":"room-a","start":"2026-03-10T10:00:00Z","end":"2026-03-10T11:00:00Z","purpose":"Sync","participants":9}`,
			actor:      &member,
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "capacity_exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(tt.body))
			if tt.actor != nil {
				req = asActor(req, *tt.actor)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantReason != "" {
				var resp errorBody
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Error.Reason != tt.wantReason {
					t.Errorf("reason = %q, want %q", resp.Error.Reason, tt.wantReason)
				}
			}
			if tt.wantStatus == http.StatusCreated {
				var resp struct {
					Data service.CreateResult `json:"data"`
				}
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Data.Booking == nil || resp.Data.Booking.ID != "b-1" {
					t.Errorf("booking = %+v", resp.Data.Booking)
				}
			}
		})
	}
}

func TestGetAll_QueryParameters(t *testing.T) {
	var got service.ListQuery
	svc := &mockBookingService{
		listFunc: func(ctx context.Context, actor model.Actor, query service.ListQuery, limit int, offset int64) ([]*model.Booking, int64, error) {
			got = query
			return []*model.Booking{{ID: "b-1"}}, 1, nil
		},
	}
	router := newRouter(svc)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		check      func(t *testing.T)
	}{
		{name: "no filters", query: "", wantStatus: http.StatusOK},
		{
			name:       "status list",
			query:      "?status=pending,approved&facility_id=room-a",
			wantStatus: http.StatusOK,
			check: func(t *testing.T) {
				if len(got.Statuses) != 2 || got.Statuses[1] != model.StatusApproved || got.FacilityID != "room-a" {
					t.Errorf("query = %+v", got)
				}
			},
		},
		{
			name:       "range",
			query:      "?from=2026-03-10T00:00:00Z&to=2026-03-11T00:00:00Z",
			wantStatus: http.StatusOK,
			check: func(t *testing.T) {
				if got.From == nil || !got.From.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) || got.To == nil {
					t.Errorf("range = %v - %v", got.From, got.To)
				}
			},
		},
		{name: "bad status", query: "?status=lost", wantStatus: http.StatusBadRequest},
		{name: "bad from", query: "?from=yesterday", wantStatus: http.StatusBadRequest},
		{name: "inverted range", query: "?from=2026-03-11T00:00:00Z&to=2026-03-10T00:00:00Z", wantStatus: http.StatusBadRequest},
		{name: "bad limit", query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = service.ListQuery{}
			req := asActor(httptest.NewRequest(http.MethodGet, "/api/v1/bookings"+tt.query, nil), admin)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t)
			}
		})
	}
}

func TestApprove_OptionalBody(t *testing.T) {
	var gotResponse string
	svc := &mockBookingService{
		approveFunc: func(ctx context.Context, actor model.Actor, id, adminResponse string) (*lifecycle.ApproveResult, error) {
			if !actor.IsAdmin() {
				return nil, apperrors.Forbidden("Only administrators can approve bookings")
			}
			if id == "gone" {
				return nil, apperrors.NotFoundWithID("Booking", id)
			}
			gotResponse = adminResponse
			return &lifecycle.ApproveResult{Booking: &model.Booking{ID: id, Status: model.StatusApproved}}, nil
		},
	}
	router := newRouter(svc)

	tests := []struct {
		name         string
		id           string
		body         string
		actor        model.Actor
		wantStatus   int
		wantResponse string
	}{
		{name: "with response", id: "b-1", body: `{"admin_response":"enjoy"}`, actor: admin, wantStatus: http.StatusOK, wantResponse: "enjoy"},
		{name: "empty body", id: "b-1", body: "", actor: admin, wantStatus: http.StatusOK},
		{name: "member", id: "b-1", body: "", actor: member, wantStatus: http.StatusForbidden},
		{name: "missing", id: "gone", body: "", actor: admin, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotResponse = ""
			req := asActor(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+tt.id+"/approve", strings.NewReader(tt.body)), tt.actor)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if gotResponse != tt.wantResponse {
				t.Errorf("admin response = %q, want %q", gotResponse, tt.wantResponse)
			}
		})
	}
}

func TestCancel_InvalidState(t *testing.T) {
	svc := &mockBookingService{
		cancelFunc: func(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
			return nil, apperrors.InvalidState("Booking has already ended")
		},
	}
	router := newRouter(svc)

	req := asActor(httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b-1/cancel", strings.NewReader(`{"reason":"late"}`)), member)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	var resp errorBody
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != apperrors.CodeInvalidState {
		t.Errorf("code = %s", resp.Error.Code)
	}
}
