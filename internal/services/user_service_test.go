package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/craftfolio/api/internal/domain"
)

func newUserServiceFixture(t *testing.T) (UserService, *stubUserRepository) {
	t.Helper()

	users := newStubUserRepository(*testSuperuser, *testAdmin, *testDeveloper, *testClient, *testOtherUser)
	svc, err := NewUserService(UserServiceDeps{
		Users: users,
		Clock: func() time.Time {
			return time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}
	return svc, users
}

func TestGetUserSelfAndStaff(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	self, err := svc.GetUser(context.Background(), testClient, testClient.ID)
	if err != nil {
		t.Fatalf("self lookup: %v", err)
	}
	if self.ID != testClient.ID {
		t.Fatalf("got %s", self.ID)
	}

	if _, err := svc.GetUser(context.Background(), testAdmin, testClient.ID); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
	if _, err := svc.GetUser(context.Background(), testDeveloper, testClient.ID); err != nil {
		t.Fatalf("developer lookup: %v", err)
	}
}

func TestGetUserClientCannotReadOthers(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	if _, err := svc.GetUser(context.Background(), testClient, testOtherUser.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	if _, err := svc.GetUser(context.Background(), testAdmin, "usr_ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListUsersStaffOnly(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	all, err := svc.ListUsers(context.Background(), testAdmin)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	// The superuser fixture carries no role, so the role-scoped listing
	// returns the four role-bearing principals.
	if len(all) != 4 {
		t.Fatalf("expected 4 users, got %d", len(all))
	}

	clients, err := svc.ListUsers(context.Background(), testAdmin, domain.RoleClient)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}

	if _, err := svc.ListUsers(context.Background(), testClient); !errors.Is(err, ErrForbidden) {
		t.Fatalf("client list expected ErrForbidden, got %v", err)
	}
}

func TestUpdateRoleAdminOnly(t *testing.T) {
	svc, users := newUserServiceFixture(t)

	updated, err := svc.UpdateRole(context.Background(), UpdateUserRoleCommand{
		Actor:   testAdmin,
		UserID:  testClient.ID,
		NewRole: domain.RoleDeveloper,
	})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Role != domain.RoleDeveloper {
		t.Fatalf("role %s", updated.Role)
	}

	stored, err := users.FindByID(context.Background(), testClient.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Role != domain.RoleDeveloper {
		t.Fatalf("stored role %s", stored.Role)
	}
}

func TestUpdateRoleDeniedForDeveloperAndClient(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	for _, actor := range []*domain.Principal{testDeveloper, testOtherUser, nil} {
		_, err := svc.UpdateRole(context.Background(), UpdateUserRoleCommand{
			Actor:   actor,
			UserID:  testClient.ID,
			NewRole: domain.RoleAdmin,
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("actor %v: expected ErrForbidden, got %v", actor, err)
		}
	}
}

func TestUpdateRoleSuperuserAllowed(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	if _, err := svc.UpdateRole(context.Background(), UpdateUserRoleCommand{
		Actor:   testSuperuser,
		UserID:  testDeveloper.ID,
		NewRole: domain.RoleAdmin,
	}); err != nil {
		t.Fatalf("superuser update: %v", err)
	}
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	svc, _ := newUserServiceFixture(t)

	if _, err := svc.UpdateRole(context.Background(), UpdateUserRoleCommand{
		Actor:   testAdmin,
		UserID:  testClient.ID,
		NewRole: "owner",
	}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput, got %v", err)
	}
}
