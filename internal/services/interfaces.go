package services

import (
	"context"
	"time"

	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Principal            = domain.Principal
	Role                 = domain.Role
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	OrderAudit           = domain.OrderAudit
	PaymentStatus        = domain.PaymentStatus
	Payment              = domain.Payment
	PaymentEntryStatus   = domain.PaymentEntryStatus
	Notification         = domain.Notification
	NotificationType     = domain.NotificationType
	NotificationPriority = domain.NotificationPriority
)

// OrderListFilter mirrors the repository filter so handlers do not import repositories directly.
type OrderListFilter = repositories.OrderListFilter

// NotificationListFilter mirrors the repository filter for notification listings.
type NotificationListFilter = repositories.NotificationListFilter

// EventType identifies the kind of order lifecycle event emitted by the orchestrator.
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventPaymentRecorded    EventType = "order.payment_recorded"
)

// OrderEvent captures metadata for emitted order domain events. Events feed
// both the in-process notification fan-out and the Pub/Sub topic.
type OrderEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	ActorID     string    `json:"actorId,omitempty"`
	OldStatus   string    `json:"oldStatus,omitempty"`
	NewStatus   string    `json:"newStatus,omitempty"`
	PaymentID   string    `json:"paymentId,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
// Publishing is best-effort: the orchestrator logs failures and never rolls
// back the triggering state change.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderService is the orchestrator facade composing the role resolver, the
// order state machine, and the payment ledger. All order and payment
// mutations in the system flow through it, administrative callers included.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, actor *Principal, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, actor *Principal, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (Payment, error)
	Refund(ctx context.Context, cmd RefundCommand) (Payment, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	BulkUpdateStatus(ctx context.Context, cmd BulkStatusCommand) (BulkStatusResult, error)
	OrderStats(ctx context.Context, actor *Principal) (OrderStats, error)
	Timeline(ctx context.Context, actor *Principal, orderID string) ([]TimelineEntry, error)
}

// NotificationService fans order events out into per-recipient notification
// rows and exposes recipient-facing read operations.
type NotificationService interface {
	HandleOrderEvent(ctx context.Context, event OrderEvent) error
	ListNotifications(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error)
	MarkAllRead(ctx context.Context, actor *Principal) (int, error)
	UnreadCount(ctx context.Context, actor *Principal) (int, error)
}

// UserService exposes the principal lookups and role mutations needed around
// the authorization matrix.
type UserService interface {
	GetUser(ctx context.Context, actor *Principal, userID string) (Principal, error)
	ListUsers(ctx context.Context, actor *Principal, roles ...Role) ([]Principal, error)
	UpdateRole(ctx context.Context, cmd UpdateUserRoleCommand) (Principal, error)
}

// Command and DTO definitions ------------------------------------------------

type CreateOrderCommand struct {
	Actor          *Principal
	ClientID       string
	ServiceRef     *string
	PricingTierRef *string
	ProductRef     *string
	TotalAmount    int64
	Currency       string
	Notes          string
	DueDate        *time.Time
}

type OrderReadOptions struct {
	IncludePayments bool
}

type OrderStatusTransitionCommand struct {
	Actor        *Principal
	OrderID      string
	TargetStatus OrderStatus
	Reason       string
}

type SubmitPaymentCommand struct {
	Actor         *Principal
	OrderID       string
	Amount        int64
	Currency      string
	Method        string
	TransactionID string
	Notes         string
	// Failed records the entry as a failed attempt; it never counts toward
	// the order balance.
	Failed bool
}

type RefundCommand struct {
	Actor         *Principal
	OrderID       string
	Amount        int64
	TransactionID string
	Notes         string
}

type DeleteOrderCommand struct {
	Actor   *Principal
	OrderID string
}

type BulkStatusCommand struct {
	Actor        *Principal
	OrderIDs     []string
	TargetStatus OrderStatus
	Note         string
}

// BulkStatusResult reports the per-order outcome of a best-effort bulk update.
type BulkStatusResult struct {
	Updated  []string
	Rejected []BulkRejection
}

type BulkRejection struct {
	OrderID string
	Reason  string
}

// OrderStats aggregates staff-facing order counters.
type OrderStats struct {
	TotalOrders       int
	CountsByStatus    map[OrderStatus]int
	RevenueByCurrency map[string]int64
}

// TimelineEntry is one collated lifecycle event for an order's history view.
type TimelineEntry struct {
	Kind       string
	OccurredAt time.Time
	Label      string
	Amount     int64
	PaymentID  string
}

type ListNotificationsCommand struct {
	Actor *Principal
	// RecipientID lets staff inspect another recipient's feed; defaults to the actor.
	RecipientID string
	UnreadOnly  bool
	Pagination  Pagination
}

type MarkNotificationReadCommand struct {
	Actor          *Principal
	NotificationID string
}

type UpdateUserRoleCommand struct {
	Actor   *Principal
	UserID  string
	NewRole Role
}
