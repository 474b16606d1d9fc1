package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/services"
)

type stubUserService struct {
	getFn    func(context.Context, *services.Principal, string) (services.Principal, error)
	listFn   func(context.Context, *services.Principal, ...services.Role) ([]services.Principal, error)
	updateFn func(context.Context, services.UpdateUserRoleCommand) (services.Principal, error)
}

func (s *stubUserService) GetUser(ctx context.Context, actor *services.Principal, userID string) (services.Principal, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, userID)
	}
	return services.Principal{}, errors.New("not implemented")
}

func (s *stubUserService) ListUsers(ctx context.Context, actor *services.Principal, roles ...services.Role) ([]services.Principal, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, roles...)
	}
	return nil, errors.New("not implemented")
}

func (s *stubUserService) UpdateRole(ctx context.Context, cmd services.UpdateUserRoleCommand) (services.Principal, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Principal{}, errors.New("not implemented")
}

func newUserRouter(service services.UserService) chi.Router {
	handler := NewUserHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/users", handler.Routes)
	return router
}

func TestUserHandlersListUsers(t *testing.T) {
	var capturedRoles []services.Role
	service := &stubUserService{
		listFn: func(ctx context.Context, actor *services.Principal, roles ...services.Role) ([]services.Principal, error) {
			capturedRoles = roles
			return []services.Principal{
				{ID: "usr_a", Email: "a@example.com", Role: domain.RoleClient, IsActive: true},
				{ID: "usr_b", Email: "b@example.com", Role: domain.RoleClient, IsActive: true},
			}, nil
		},
	}

	router := newUserRouter(service)
	req := asStaff(httptest.NewRequest(http.MethodGet, "/users?role=client", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(capturedRoles) != 1 || capturedRoles[0] != domain.RoleClient {
		t.Fatalf("unexpected roles filter: %#v", capturedRoles)
	}

	var resp userListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "usr_a" {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
}

func TestUserHandlersListUsersRejectsUnknownRole(t *testing.T) {
	router := newUserRouter(&stubUserService{})

	req := asStaff(httptest.NewRequest(http.MethodGet, "/users?role=owner", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUserHandlersGetUser(t *testing.T) {
	service := &stubUserService{
		getFn: func(ctx context.Context, actor *services.Principal, userID string) (services.Principal, error) {
			return services.Principal{ID: userID, Email: "client@example.com", Role: domain.RoleClient, IsActive: true}, nil
		},
	}

	router := newUserRouter(service)
	req := asClient(httptest.NewRequest(http.MethodGet, "/users/usr_client", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp userResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.User.ID != "usr_client" || resp.User.Role != "client" || !resp.User.IsActive {
		t.Fatalf("unexpected payload: %#v", resp.User)
	}
}

func TestUserHandlersGetUserErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "forbidden", err: services.ErrForbidden, expected: http.StatusForbidden},
		{name: "not found", err: services.ErrUserNotFound, expected: http.StatusNotFound},
		{name: "internal", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		service := &stubUserService{
			getFn: func(ctx context.Context, actor *services.Principal, userID string) (services.Principal, error) {
				return services.Principal{}, tc.err
			},
		}
		router := newUserRouter(service)
		req := asClient(httptest.NewRequest(http.MethodGet, "/users/usr_other", nil))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, rr.Code)
		}
	}
}

func TestUserHandlersUpdateRole(t *testing.T) {
	var captured services.UpdateUserRoleCommand
	service := &stubUserService{
		updateFn: func(ctx context.Context, cmd services.UpdateUserRoleCommand) (services.Principal, error) {
			captured = cmd
			return services.Principal{ID: cmd.UserID, Role: cmd.NewRole, IsActive: true}, nil
		},
	}

	router := newUserRouter(service)
	body := []byte(`{"role":"developer"}`)
	req := asStaff(httptest.NewRequest(http.MethodPut, "/users/usr_dev/role", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "usr_dev" || captured.NewRole != domain.RoleDeveloper {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Actor == nil || captured.Actor.ID != "usr_admin" {
		t.Fatalf("expected actor usr_admin, got %#v", captured.Actor)
	}
}

func TestUserHandlersUpdateRoleRejectsUnknownRole(t *testing.T) {
	router := newUserRouter(&stubUserService{})

	body := []byte(`{"role":"owner"}`)
	req := asStaff(httptest.NewRequest(http.MethodPut, "/users/usr_dev/role", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestUserHandlersUpdateRoleForbidden(t *testing.T) {
	service := &stubUserService{
		updateFn: func(ctx context.Context, cmd services.UpdateUserRoleCommand) (services.Principal, error) {
			return services.Principal{}, services.ErrForbidden
		},
	}

	router := newUserRouter(service)
	body := []byte(`{"role":"admin"}`)
	req := asClient(httptest.NewRequest(http.MethodPut, "/users/usr_other/role", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
