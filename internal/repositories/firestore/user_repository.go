package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/craftfolio/api/internal/domain"
	pfirestore "github.com/craftfolio/api/internal/platform/firestore"
)

const userCollection = "users"

type userDocument struct {
	Email     string    `firestore:"email"`
	FirstName string    `firestore:"firstName,omitempty"`
	LastName  string    `firestore:"lastName,omitempty"`
	Role      string    `firestore:"role"`
	Superuser bool      `firestore:"superuser"`
	IsActive  bool      `firestore:"isActive"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toDomainPrincipal(id string, doc userDocument) domain.Principal {
	return domain.Principal{
		ID:        id,
		Email:     doc.Email,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Role:      domain.ParseRole(doc.Role),
		Superuser: doc.Superuser,
		IsActive:  doc.IsActive,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// UserRepository resolves principals from the users collection.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection)
	return &UserRepository{provider: provider, base: base}, nil
}

// FindByID loads the principal by user id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.Principal, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Principal{}, pfirestore.WrapError("users.get", errors.New("user id is required"))
	}

	if tx := txFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, userID)
		if err != nil {
			return domain.Principal{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Principal{}, pfirestore.WrapError("users.get", err)
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Principal{}, pfirestore.WrapError("users.get", err)
		}
		return toDomainPrincipal(snap.Ref.ID, doc), nil
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.Principal{}, err
	}
	return toDomainPrincipal(doc.ID, doc.Data), nil
}

// ListByRoles returns every principal holding one of the given roles.
func (r *UserRepository) ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.Principal, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, string(role))
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("role", "in", values).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	principals := make([]domain.Principal, 0, len(docs))
	for _, doc := range docs {
		principals = append(principals, toDomainPrincipal(doc.ID, doc.Data))
	}
	return principals, nil
}

// UpdateRole changes the principal's role and returns the updated principal.
func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.Principal, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Principal{}, pfirestore.WrapError("users.update", errors.New("user id is required"))
	}

	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "role", Value: string(role)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	if err != nil {
		return domain.Principal{}, err
	}
	return r.FindByID(ctx, userID)
}
