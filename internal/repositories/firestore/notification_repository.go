package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/craftfolio/api/internal/domain"
	pfirestore "github.com/craftfolio/api/internal/platform/firestore"
	"github.com/craftfolio/api/internal/platform/pagination"
	"github.com/craftfolio/api/internal/repositories"
)

const (
	notificationCollection      = "notifications"
	defaultNotificationPageSize = 50
	maxNotificationPageSize     = 200
)

type notificationDocument struct {
	RecipientID  string     `firestore:"recipientId"`
	Type         string     `firestore:"type"`
	Title        string     `firestore:"title"`
	Message      string     `firestore:"message"`
	Priority     string     `firestore:"priority"`
	IsRead       bool       `firestore:"isRead"`
	ReadAt       *time.Time `firestore:"readAt,omitempty"`
	ResourceType string     `firestore:"resourceType,omitempty"`
	ResourceID   string     `firestore:"resourceId,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
}

func fromDomainNotification(notification domain.Notification) notificationDocument {
	return notificationDocument{
		RecipientID:  notification.RecipientID,
		Type:         string(notification.Type),
		Title:        notification.Title,
		Message:      notification.Message,
		Priority:     string(notification.Priority),
		IsRead:       notification.IsRead,
		ResourceType: notification.ResourceType,
		ResourceID:   notification.ResourceID,
		CreatedAt:    notification.CreatedAt.UTC(),
	}
}

func toDomainNotification(id string, doc notificationDocument) domain.Notification {
	return domain.Notification{
		ID:           id,
		RecipientID:  doc.RecipientID,
		Type:         domain.NotificationType(doc.Type),
		Title:        doc.Title,
		Message:      doc.Message,
		Priority:     domain.NotificationPriority(doc.Priority),
		IsRead:       doc.IsRead,
		ResourceType: doc.ResourceType,
		ResourceID:   doc.ResourceID,
		CreatedAt:    doc.CreatedAt,
	}
}

// NotificationRepository persists per-recipient notification rows.
type NotificationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection)
	return &NotificationRepository{provider: provider, base: base}, nil
}

// Insert is create-only. Fan-out ids are deterministic per event and
// recipient, so a conflict here means the row was already delivered.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if strings.TrimSpace(notification.ID) == "" {
		return pfirestore.WrapError("notifications.insert", errors.New("notification id is required"))
	}
	if strings.TrimSpace(notification.RecipientID) == "" {
		return pfirestore.WrapError("notifications.insert", errors.New("recipient id is required"))
	}

	_, err := r.base.Create(ctx, notification.ID, fromDomainNotification(notification))
	return err
}

// FindByID loads one notification row.
func (r *NotificationRepository) FindByID(ctx context.Context, notificationID string) (domain.Notification, error) {
	if strings.TrimSpace(notificationID) == "" {
		return domain.Notification{}, pfirestore.WrapError("notifications.get", errors.New("notification id is required"))
	}

	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	return toDomainNotification(doc.ID, doc.Data), nil
}

// List returns the recipient's feed, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	recipientID := strings.TrimSpace(filter.RecipientID)
	if recipientID == "" {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", errors.New("recipient id is required"))
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultNotificationPageSize
	}
	if pageSize > maxNotificationPageSize {
		pageSize = maxNotificationPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
	}
	startAfter, err := decodeCreatedAtCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("recipientId", "==", recipientID)
		if filter.UnreadOnly {
			query = query.Where("isRead", "==", false)
		}
		if len(filter.Types) > 0 {
			types := make([]string, 0, len(filter.Types))
			for _, t := range filter.Types {
				types = append(types, string(t))
			}
			query = query.Where("type", "in", types)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			query = query.StartAfter(startAfter...)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	page := domain.CursorPage[domain.Notification]{}
	for _, doc := range docs {
		page.Items = append(page.Items, toDomainNotification(doc.ID, doc.Data))
	}

	if len(page.Items) > pageSize {
		page.Items = page.Items[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// MarkRead flips the read flag on one row.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) error {
	if strings.TrimSpace(notificationID) == "" {
		return pfirestore.WrapError("notifications.update", errors.New("notification id is required"))
	}

	_, err := r.base.Update(ctx, notificationID, []firestore.Update{
		{Path: "isRead", Value: true},
		{Path: "readAt", Value: readAt.UTC()},
	})
	return err
}

// MarkAllRead flips every unread row for the recipient and reports how many
// rows changed.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, pfirestore.WrapError("notifications.update", errors.New("recipient id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(notificationCollection).Query.
		Where("recipientId", "==", recipientID).
		Where("isRead", "==", false).
		Documents(ctx)
	defer iter.Stop()

	count := 0
	bulk := client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return count, pfirestore.WrapError("notifications.update", err)
		}
		if _, err := bulk.Update(snap.Ref, []firestore.Update{
			{Path: "isRead", Value: true},
			{Path: "readAt", Value: readAt.UTC()},
		}); err != nil {
			return count, pfirestore.WrapError("notifications.update", err)
		}
		count++
	}
	bulk.End()
	return count, nil
}

// CountUnread reports the recipient's unread rows.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, pfirestore.WrapError("notifications.count", errors.New("recipient id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(notificationCollection).Query.
		Where("recipientId", "==", recipientID).
		Where("isRead", "==", false).
		Select().
		Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, pfirestore.WrapError("notifications.count", err)
		}
		count++
	}
	return count, nil
}
