package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/platform/auth"
	"github.com/craftfolio/api/internal/platform/httpx"
	"github.com/craftfolio/api/internal/services"
)

const maxUserBodySize = 4 * 1024

type updateUserRoleRequest struct {
	Role string `json:"role"`
}

// UserHandlers exposes principal lookups and role administration.
type UserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewUserHandlers constructs a new UserHandlers instance.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService) *UserHandlers {
	return &UserHandlers{
		authn: authn,
		users: users,
	}
}

// Routes registers the /users endpoints.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listUsers)
	r.Get("/{userID}", h.getUser)
	r.Put("/{userID}/role", h.updateRole)
}

func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	var roles []domain.Role
	for _, raw := range parseFilterValues(r.URL.Query()["role"]) {
		role := domain.ParseRole(raw)
		if role == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role filter contains an unknown role", http.StatusBadRequest))
			return
		}
		roles = append(roles, role)
	}

	users, err := h.users.ListUsers(ctx, actor, roles...)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	items := make([]userPayload, 0, len(users))
	for _, user := range users {
		items = append(items, buildUserPayload(user))
	}

	writeJSONResponse(w, http.StatusOK, userListResponse{Items: items})
}

func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}

	user, err := h.users.GetUser(ctx, actor, userID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *UserHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxUserBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req updateUserRoleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	role := domain.ParseRole(req.Role)
	if role == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role must be one of admin, developer, client", http.StatusBadRequest))
		return
	}

	user, err := h.users.UpdateRole(ctx, services.UpdateUserRoleCommand{
		Actor:   actor,
		UserID:  userID,
		NewRole: role,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

type userListResponse struct {
	Items []userPayload `json:"items"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	Superuser bool   `json:"superuser,omitempty"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func buildUserPayload(user services.Principal) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		Superuser: user.Superuser,
		IsActive:  user.IsActive,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}
