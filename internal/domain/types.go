package domain

import (
	"strings"
	"time"
)

// Role enumerates the principal roles understood by the authorization matrix.
type Role string

const (
	// RoleAdmin grants full access to back-office resources.
	RoleAdmin Role = "admin"
	// RoleDeveloper grants staff access with restrictions on admin-owned resources.
	RoleDeveloper Role = "developer"
	// RoleClient restricts access to resources owned by the principal.
	RoleClient Role = "client"
)

// ParseRole normalises a raw role string into a known Role, or empty when unknown.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleDeveloper:
		return RoleDeveloper
	case RoleClient:
		return RoleClient
	default:
		return ""
	}
}

// IsStaff reports whether the role carries staff-level access.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDeveloper
}

// Principal is an authenticated identity plus role, the subject of every
// authorization check. Superuser is orthogonal to Role and always wins.
type Principal struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Role      Role
	Superuser bool
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates a newly created order awaiting confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the order has been accepted for delivery.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusInProgress indicates work on the order is underway.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted indicates the order finished normally. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded is reached only through the payment ledger's refund
	// operation, never by a direct status set. Terminal.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus is derived from the order's payment ledger and never set
// independently of it.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPartial  PaymentStatus = "partial"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is a client's purchase of exactly one of a service, a service pricing
// tier, or a product, tracked through a status and payment lifecycle.
// Amounts are minor currency units (fixed point), never floats.
type Order struct {
	ID             string
	OrderNumber    string
	ClientID       string
	ServiceRef     *string
	PricingTierRef *string
	ProductRef     *string
	TotalAmount    int64
	Currency       string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	Notes          string
	DueDate        *time.Time
	Audit          OrderAudit
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Payments is populated on demand by read options, not stored inline.
	Payments []Payment
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// CategoryRef returns the single non-nil purchase reference for the order.
func (o Order) CategoryRef() (kind string, ref string) {
	switch {
	case o.ServiceRef != nil:
		return "service", *o.ServiceRef
	case o.PricingTierRef != nil:
		return "pricing_tier", *o.PricingTierRef
	case o.ProductRef != nil:
		return "product", *o.ProductRef
	default:
		return "", ""
	}
}

// PaymentEntryStatus enumerates ledger entry states.
type PaymentEntryStatus string

const (
	PaymentEntryPending  PaymentEntryStatus = "pending"
	PaymentEntryPaid     PaymentEntryStatus = "paid"
	PaymentEntryFailed   PaymentEntryStatus = "failed"
	PaymentEntryRefunded PaymentEntryStatus = "refunded"
)

// Payment is one ledger entry recorded against an order's balance. A negative
// Amount denotes a refund entry; entries with status paid are immutable.
type Payment struct {
	ID            string
	OrderID       string
	Amount        int64
	Currency      string
	Method        string
	TransactionID string
	Status        PaymentEntryStatus
	Notes         string
	CreatedAt     time.Time
}

// NotificationType categorises the resource class that triggered a notification.
type NotificationType string

const (
	NotificationTypeOrder   NotificationType = "order"
	NotificationTypePayment NotificationType = "payment"
	NotificationTypeSystem  NotificationType = "system"
)

// NotificationPriority orders notifications for recipient attention.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityUrgent NotificationPriority = "urgent"
)

// Notification is one per-recipient record produced by the event fan-out.
// Only the fan-out creates rows; only the recipient (or staff, in bulk)
// flips the read flag.
type Notification struct {
	ID           string
	RecipientID  string
	Type         NotificationType
	Title        string
	Message      string
	Priority     NotificationPriority
	IsRead       bool
	ResourceType string
	ResourceID   string
	CreatedAt    time.Time
}

// Pagination carries cursor-style paging inputs shared by list queries.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a slice of results with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery expresses an inclusive range filter over an ordered type.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
