package authz

import (
	"testing"

	domain "github.com/craftfolio/api/internal/domain"
)

func principal(id string, role domain.Role) *domain.Principal {
	return &domain.Principal{ID: id, Role: role, IsActive: true}
}

func TestAuthorizeAnonymousDenied(t *testing.T) {
	r := NewResolver()
	for _, action := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionTransition, ActionRecordPayment, ActionRefund, ActionBulkUpdate} {
		if d := r.Authorize(nil, action, Resource{Kind: "order"}); d.Allowed {
			t.Fatalf("expected deny for anonymous %s", action)
		}
	}
}

func TestAuthorizeSuperuserAlwaysWins(t *testing.T) {
	r := NewResolver()
	p := &domain.Principal{ID: "usr_root", Role: domain.RoleClient, Superuser: true, IsActive: true}
	res := Resource{Kind: "order", OwnerID: "usr_other", OwnerRole: domain.RoleAdmin}
	for _, action := range []Action{ActionRead, ActionDelete, ActionRefund, ActionBulkUpdate} {
		if d := r.Authorize(p, action, res); !d.Allowed {
			t.Fatalf("expected allow for superuser %s: %s", action, d.Reason)
		}
	}
}

func TestAuthorizeDeactivatedPrincipalDenied(t *testing.T) {
	r := NewResolver()
	p := &domain.Principal{ID: "usr_1", Role: domain.RoleAdmin, IsActive: false}
	if d := r.Authorize(p, ActionRead, Resource{Kind: "order"}); d.Allowed {
		t.Fatal("expected deny for deactivated principal")
	}
}

func TestAuthorizeAdminAllowedEverywhere(t *testing.T) {
	r := NewResolver()
	p := principal("usr_admin", domain.RoleAdmin)
	res := Resource{Kind: "order", OwnerID: "usr_client", OwnerRole: domain.RoleClient}
	for _, action := range []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionTransition, ActionRecordPayment, ActionRefund, ActionBulkUpdate} {
		if d := r.Authorize(p, action, res); !d.Allowed {
			t.Fatalf("expected allow for admin %s: %s", action, d.Reason)
		}
	}
}

func TestAuthorizeDeveloperMatrix(t *testing.T) {
	r := NewResolver()
	p := principal("usr_dev", domain.RoleDeveloper)

	clientOwned := Resource{Kind: "order", OwnerID: "usr_client", OwnerRole: domain.RoleClient}
	adminOwned := Resource{Kind: "account", OwnerID: "usr_admin", OwnerRole: domain.RoleAdmin}

	if d := r.Authorize(p, ActionUpdate, clientOwned); !d.Allowed {
		t.Fatalf("developer update on client resource: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionDelete, clientOwned); !d.Allowed {
		t.Fatalf("developer delete on client resource: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionDelete, adminOwned); d.Allowed {
		t.Fatal("developer delete on admin-owned resource must be denied")
	}
	if d := r.Authorize(p, ActionRefund, adminOwned); d.Allowed {
		t.Fatal("developer refund on admin-owned resource must be denied")
	}
	if d := r.Authorize(p, ActionRead, adminOwned); !d.Allowed {
		t.Fatalf("developer read on admin-owned resource: %s", d.Reason)
	}
}

func TestAuthorizeClientOwnership(t *testing.T) {
	r := NewResolver()
	p := principal("usr_client", domain.RoleClient)

	own := Resource{Kind: "order", OwnerID: "usr_client"}
	foreign := Resource{Kind: "order", OwnerID: "usr_other"}

	if d := r.Authorize(p, ActionRead, own); !d.Allowed {
		t.Fatalf("client read own order: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionUpdate, own); !d.Allowed {
		t.Fatalf("client update own order: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionRead, foreign); d.Allowed {
		t.Fatal("client read of another client's order must be denied")
	}
	if d := r.Authorize(p, ActionUpdate, foreign); d.Allowed {
		t.Fatal("client write of another client's order must be denied")
	}
}

func TestAuthorizeClientStaffOnlyActionsDenied(t *testing.T) {
	r := NewResolver()
	p := principal("usr_client", domain.RoleClient)
	own := Resource{Kind: "order", OwnerID: "usr_client"}

	for _, action := range []Action{ActionRecordPayment, ActionRefund, ActionBulkUpdate, ActionTransition, ActionDelete} {
		if d := r.Authorize(p, action, own); d.Allowed {
			t.Fatalf("client %s must be denied even on own order", action)
		}
	}
}

func TestAuthorizeClientCreateForSelfOnly(t *testing.T) {
	r := NewResolver()
	p := principal("usr_client", domain.RoleClient)

	if d := r.Authorize(p, ActionCreate, Resource{Kind: "order", OwnerID: "usr_client"}); !d.Allowed {
		t.Fatalf("client create for self: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionCreate, Resource{Kind: "order"}); !d.Allowed {
		t.Fatalf("client create with implicit owner: %s", d.Reason)
	}
	if d := r.Authorize(p, ActionCreate, Resource{Kind: "order", OwnerID: "usr_other"}); d.Allowed {
		t.Fatal("client creating an order for another client must be denied")
	}
}

func TestAuthorizeClientReadCarriesFieldMask(t *testing.T) {
	r := NewResolver()
	p := principal("usr_client", domain.RoleClient)
	d := r.Authorize(p, ActionRead, Resource{Kind: "order", OwnerID: "usr_client"})
	if !d.Allowed {
		t.Fatalf("expected allow: %s", d.Reason)
	}
	if len(d.HiddenFields) == 0 {
		t.Fatal("expected hidden fields on client read")
	}
	staff := r.Authorize(principal("usr_dev", domain.RoleDeveloper), ActionRead, Resource{Kind: "order", OwnerID: "usr_client"})
	if len(staff.HiddenFields) != 0 {
		t.Fatal("staff reads must not be masked")
	}
}

func TestAuthorizeUnknownRoleDenied(t *testing.T) {
	r := NewResolver()
	p := &domain.Principal{ID: "usr_x", Role: "auditor", IsActive: true}
	if d := r.Authorize(p, ActionRead, Resource{Kind: "order", OwnerID: "usr_x"}); d.Allowed {
		t.Fatal("unknown role must be denied")
	}
}
