// Package firestore provides Firestore-backed implementations of the
// repository contracts. All repositories honour an ambient transaction: when
// the context carries one, started through the registry's RunInTx, reads and
// writes execute inside it.
package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/craftfolio/api/internal/platform/firestore"
	"github.com/craftfolio/api/internal/repositories"
)

type txContextKey struct{}

// txFromContext returns the ambient transaction, if any.
func txFromContext(ctx context.Context) *firestore.Transaction {
	tx, _ := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx
}

// Registry wires the Firestore repositories behind the repositories.Registry
// contract and owns the shared provider lifecycle.
type Registry struct {
	provider *pfirestore.Provider

	orders        *OrderRepository
	payments      *PaymentRepository
	notifications *NotificationRepository
	users         *UserRepository
	counters      *CounterRepository
}

// NewRegistry builds the full repository set on one provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      provider,
		orders:        orders,
		payments:      payments,
		notifications: notifications,
		users:         users,
		counters:      counters,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository           { return r.payments }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }

// RunInTx executes fn inside one Firestore transaction. The transaction is
// attached to the context handed to fn, so repository calls made through that
// context participate in it. Firestore requires all reads before the first
// write; callers structure their transactional functions accordingly.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	if tx := txFromContext(ctx); tx != nil {
		// Already inside a transaction; nesting joins it.
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
