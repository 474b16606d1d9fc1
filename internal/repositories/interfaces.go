package repositories

import (
	"context"
	"time"

	domain "github.com/craftfolio/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	Notifications() NotificationRepository
	Users() UserRepository
	Counters() CounterRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter controls order listing for both staff and client views.
type OrderListFilter struct {
	ClientID      string
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	CreatedRange  domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

// OrderRepository persists order headers and provides query helpers for staff and clients.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// PaymentRepository stores ledger entries underneath an order. Insert must
// reject a transaction id already recorded for the same order with a conflict
// error so duplicate submissions surface deterministically.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	UpdateStatus(ctx context.Context, orderID, paymentID string, status domain.PaymentEntryStatus) error
	List(ctx context.Context, orderID string) ([]domain.Payment, error)
	FindByTransactionID(ctx context.Context, orderID, transactionID string) (domain.Payment, error)
	DeleteByOrder(ctx context.Context, orderID string) error
}

// NotificationListFilter controls recipient-scoped notification listings.
type NotificationListFilter struct {
	RecipientID string
	UnreadOnly  bool
	Types       []domain.NotificationType
	Pagination  domain.Pagination
}

// NotificationRepository stores per-recipient notification rows. Insert is
// create-only: re-inserting an existing id must return a conflict error, which
// the fan-out treats as an already-delivered event.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	FindByID(ctx context.Context, notificationID string) (domain.Notification, error)
	List(ctx context.Context, filter NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, notificationID string, readAt time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// UserRepository resolves principals for authorization and fan-out recipient enumeration.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.Principal, error)
	ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.Principal, error)
	UpdateRole(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.Principal, error)
}

// CounterRepository issues monotonically increasing sequence values, used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}
