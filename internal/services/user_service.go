package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftfolio/api/internal/authz"
	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/repositories"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the principal could not be located.
	ErrUserNotFound = errors.New("user: not found")
)

// UserServiceDeps bundles collaborators for the user service.
type UserServiceDeps struct {
	Users    repositories.UserRepository
	Resolver *authz.Resolver
	Clock    func() time.Time
}

type userService struct {
	users    repositories.UserRepository
	resolver *authz.Resolver
	clock    func() time.Time
}

// NewUserService wires dependencies into a UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = authz.NewResolver()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &userService{
		users:    deps.Users,
		resolver: resolver,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *userService) GetUser(ctx context.Context, actor *Principal, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Principal{}, s.mapRepositoryError(err)
	}

	decision := s.resolver.Authorize(actor, authz.ActionRead, authz.Resource{
		Kind:      "user",
		ID:        user.ID,
		OwnerID:   user.ID,
		OwnerRole: user.Role,
	})
	if !decision.Allowed {
		return Principal{}, ErrForbidden
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, actor *Principal, roles ...Role) ([]Principal, error) {
	decision := s.resolver.Authorize(actor, authz.ActionRead, authz.Resource{Kind: "user_directory"})
	if !decision.Allowed {
		return nil, ErrForbidden
	}

	if len(roles) == 0 {
		roles = []Role{domain.RoleAdmin, domain.RoleDeveloper, domain.RoleClient}
	}
	users, err := s.users.ListByRoles(ctx, roles)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return users, nil
}

func (s *userService) UpdateRole(ctx context.Context, cmd UpdateUserRoleCommand) (Principal, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if domain.ParseRole(string(cmd.NewRole)) == "" {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, cmd.NewRole)
	}

	// Role is mutable only by admins and superusers; developers never
	// qualify regardless of the target.
	if cmd.Actor == nil || (!cmd.Actor.Superuser && cmd.Actor.Role != domain.RoleAdmin) {
		return Principal{}, ErrForbidden
	}

	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Principal{}, s.mapRepositoryError(err)
	}

	decision := s.resolver.Authorize(cmd.Actor, authz.ActionUpdate, authz.Resource{
		Kind:      "user",
		ID:        target.ID,
		OwnerID:   target.ID,
		OwnerRole: target.Role,
	})
	if !decision.Allowed {
		return Principal{}, ErrForbidden
	}

	updated, err := s.users.UpdateRole(ctx, target.ID, cmd.NewRole, s.clock())
	if err != nil {
		return Principal{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}
	return err
}
