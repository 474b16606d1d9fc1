package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/craftfolio/api/internal/authz"
	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// NotificationServiceDeps bundles collaborators for the fan-out service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Users         repositories.UserRepository
	Resolver      *authz.Resolver

	Clock    func() time.Time
	Sanitize func(string) string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	notifications repositories.NotificationRepository
	users         repositories.UserRepository
	resolver      *authz.Resolver

	clock    func() time.Time
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a NotificationService.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: notification repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("notification service: user repository is required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = authz.NewResolver()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		notifications: deps.Notifications,
		users:         deps.Users,
		resolver:      resolver,
		clock: func() time.Time {
			return clock().UTC()
		},
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// HandleOrderEvent fans one event out into per-recipient notification rows.
// Row IDs are derived from the event id and the recipient, so redelivering
// the same event creates no duplicates. Individual delivery failures are
// logged and skipped; they never fail the triggering operation.
func (s *notificationService) HandleOrderEvent(ctx context.Context, event OrderEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("%w: event id is required", ErrNotificationInvalidInput)
	}

	recipients, err := s.recipientsFor(ctx, event)
	if err != nil {
		s.logger(ctx, "notification.recipients.failed", map[string]any{
			"event": event.ID,
			"type":  string(event.Type),
			"error": err.Error(),
		})
		return nil
	}

	for _, recipientID := range recipients {
		notification := s.buildNotification(event, recipientID)
		if err := s.notifications.Insert(ctx, notification); err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsConflict() {
				// Already delivered for this event+recipient pair.
				continue
			}
			s.logger(ctx, "notification.deliver.failed", map[string]any{
				"event":     event.ID,
				"recipient": recipientID,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

func (s *notificationService) recipientsFor(ctx context.Context, event OrderEvent) ([]string, error) {
	switch event.Type {
	case EventOrderCreated, EventPaymentRecorded:
		staff, err := s.users.ListByRoles(ctx, []domain.Role{domain.RoleAdmin, domain.RoleDeveloper})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(staff))
		for _, principal := range staff {
			if principal.IsActive {
				ids = append(ids, principal.ID)
			}
		}
		return ids, nil

	case EventOrderStatusChanged:
		if strings.TrimSpace(event.ClientID) == "" {
			return nil, nil
		}
		return []string{event.ClientID}, nil

	default:
		return nil, nil
	}
}

func (s *notificationService) buildNotification(event OrderEvent, recipientID string) Notification {
	notification := Notification{
		ID:           notificationID(event.ID, recipientID),
		RecipientID:  recipientID,
		Type:         domain.NotificationTypeOrder,
		Priority:     domain.NotificationPriorityMedium,
		ResourceType: "order",
		ResourceID:   event.OrderID,
		CreatedAt:    s.clock(),
	}

	switch event.Type {
	case EventOrderCreated:
		notification.Title = fmt.Sprintf("New order %s", event.OrderNumber)
		notification.Message = fmt.Sprintf("Order %s was placed for %s %s.", event.OrderNumber, formatAmount(event.Amount), event.Currency)

	case EventOrderStatusChanged:
		notification.Title = fmt.Sprintf("Order %s updated", event.OrderNumber)
		notification.Message = fmt.Sprintf("Your order %s moved from %s to %s.", event.OrderNumber, event.OldStatus, event.NewStatus)
		if event.NewStatus == string(domain.OrderStatusCancelled) || event.NewStatus == string(domain.OrderStatusRefunded) {
			notification.Priority = domain.NotificationPriorityHigh
		}

	case EventPaymentRecorded:
		notification.Type = domain.NotificationTypePayment
		notification.ResourceType = "payment"
		notification.ResourceID = event.PaymentID
		if event.Amount < 0 {
			notification.Title = fmt.Sprintf("Refund issued on order %s", event.OrderNumber)
			notification.Priority = domain.NotificationPriorityHigh
		} else {
			notification.Title = fmt.Sprintf("Payment recorded on order %s", event.OrderNumber)
		}
		notification.Message = fmt.Sprintf("%s %s recorded against order %s.", formatAmount(event.Amount), event.Currency, event.OrderNumber)
	}

	notification.Message = s.sanitize(notification.Message)
	return notification
}

func (s *notificationService) ListNotifications(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error) {
	recipientID := strings.TrimSpace(cmd.RecipientID)
	if recipientID == "" && cmd.Actor != nil {
		recipientID = cmd.Actor.ID
	}
	if recipientID == "" {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: recipient id is required", ErrNotificationInvalidInput)
	}

	decision := s.resolver.Authorize(cmd.Actor, authz.ActionRead, authz.Resource{
		Kind:    "notification",
		OwnerID: recipientID,
	})
	if !decision.Allowed {
		return domain.CursorPage[Notification]{}, ErrForbidden
	}

	page, err := s.notifications.List(ctx, repositories.NotificationListFilter{
		RecipientID: recipientID,
		UnreadOnly:  cmd.UnreadOnly,
		Pagination:  cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Notification]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error) {
	notificationID := strings.TrimSpace(cmd.NotificationID)
	if notificationID == "" {
		return Notification{}, fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}

	notification, err := s.notifications.FindByID(ctx, notificationID)
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}

	decision := s.resolver.Authorize(cmd.Actor, authz.ActionUpdate, authz.Resource{
		Kind:    "notification",
		ID:      notification.ID,
		OwnerID: notification.RecipientID,
	})
	if !decision.Allowed {
		return Notification{}, ErrForbidden
	}

	now := s.clock()
	if err := s.notifications.MarkRead(ctx, notification.ID, now); err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}
	notification.IsRead = true
	return notification, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, actor *Principal) (int, error) {
	if actor == nil || actor.ID == "" {
		return 0, ErrForbidden
	}

	count, err := s.notifications.MarkAllRead(ctx, actor.ID, s.clock())
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, actor *Principal) (int, error) {
	if actor == nil || actor.ID == "" {
		return 0, ErrForbidden
	}

	count, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}
	return err
}

// notificationID derives a stable row id from the event and recipient so the
// fan-out stays idempotent across redeliveries.
func notificationID(eventID, recipientID string) string {
	sum := sha256.Sum256([]byte(eventID + "/" + recipientID))
	return notificationIDPrefix + hex.EncodeToString(sum[:13])
}

func formatAmount(minor int64) string {
	negative := minor < 0
	if negative {
		minor = -minor
	}
	formatted := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if negative {
		return "-" + formatted
	}
	return formatted
}
