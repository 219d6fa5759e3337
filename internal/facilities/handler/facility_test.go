package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"spacebook/internal/facilities/service"
	apperrors "spacebook/pkg/errors"
	"spacebook/pkg/logger"
	"spacebook/pkg/middleware"
	"spacebook/pkg/model"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
)

type mockFacilityService struct {
	service.FacilityService
	createFunc          func(ctx context.Context, actor model.Actor, f *model.Facility) error
	getAllFunc          func(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, int64, error)
	markUnavailableFunc func(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error)
}

func (m *mockFacilityService) Create(ctx context.Context, actor model.Actor, f *model.Facility) error {
	return m.createFunc(ctx, actor, f)
}

func (m *mockFacilityService) GetAll(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, int64, error) {
	return m.getAllFunc(ctx, activeOnly, limit, offset)
}

func (m *mockFacilityService) MarkUnavailable(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error) {
	return m.markUnavailableFunc(ctx, actor, id, r)
}

func newRouter(svc service.FacilityService) *httprouter.Router {
	router := httprouter.New()
	NewFacilityHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func asActor(req *http.Request, actor model.Actor) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

func TestCreate(t *testing.T) {
	admin := model.Actor{UserID: "admin", Roles: []model.Role{model.RoleAdmin}}
	svc := &mockFacilityService{
		createFunc: func(ctx context.Context, actor model.Actor, f *model.Facility) error {
			if !actor.IsAdmin() {
				return apperrors.Forbidden("Only administrators can manage facilities")
			}
			f.ID = "fac-1"
			return nil
		},
	}
	router := newRouter(svc)

	tests := []struct {
		name       string
		body       string
		actor      *model.Actor
		wantStatus int
	}{
		{name: "created", body: `{"name":"Room A","capacity":4,"active":true}`, actor: &admin, wantStatus: http.StatusCreated},
		{name: "unknown field", body: `{"name":"Room A","colour":"red"}`, actor: &admin, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"name":`, actor: &admin, wantStatus: http.StatusBadRequest},
		{name: "no actor", body: `{"name":"Room A","capacity":4}`, wantStatus: http.StatusUnauthorized},
		{name: "member", body: `{"name":"Room A","capacity":4}`, actor: &model.Actor{UserID: "u"}, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities", strings.NewReader(tt.body))
			if tt.actor != nil {
				req = asActor(req, *tt.actor)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusCreated {
				var resp struct {
					Data model.Facility `json:"data"`
				}
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Data.ID != "fac-1" {
					t.Errorf("id = %q", resp.Data.ID)
				}
			}
		})
	}
}

func TestGetAll_QueryParameters(t *testing.T) {
	var gotActive bool
	var gotLimit int
	svc := &mockFacilityService{
		getAllFunc: func(ctx context.Context, activeOnly bool, limit int, offset int64) ([]*model.Facility, int64, error) {
			gotActive = activeOnly
			gotLimit = limit
			return []*model.Facility{{ID: "1"}}, 1, nil
		},
	}
	router := newRouter(svc)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantActive bool
		wantLimit  int
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: 10},
		{name: "active only", query: "?active=true&limit=5", wantStatus: http.StatusOK, wantActive: true, wantLimit: 5},
		{name: "bad active", query: "?active=maybe", wantStatus: http.StatusBadRequest},
		{name: "bad limit", query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotActive, gotLimit = false, 0
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/facilities"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if gotActive != tt.wantActive || gotLimit != tt.wantLimit {
				t.Errorf("service got active=%v limit=%d", gotActive, gotLimit)
			}
		})
	}
}

func TestMarkUnavailable_PassesRange(t *testing.T) {
	var got model.DateRange
	var gotID string
	svc := &mockFacilityService{
		markUnavailableFunc: func(ctx context.Context, actor model.Actor, id string, r model.DateRange) (*model.Facility, error) {
			gotID, got = id, r
			return &model.Facility{ID: id, Unavailable: []model.DateRange{r}}, nil
		},
	}
	router := newRouter(svc)

	body := `{"from":"2026-04-01","to":"2026-04-03","reason":"Renovation"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities/fac-9/unavailable", strings.NewReader(body))
	req = asActor(req, model.Actor{UserID: "admin", Roles: []model.Role{model.RoleAdmin}})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if gotID != "fac-9" || got.From != "2026-04-01" || got.To != "2026-04-03" || got.Reason != "Renovation" {
		t.Errorf("service received id=%q range=%+v", gotID, got)
	}
}
