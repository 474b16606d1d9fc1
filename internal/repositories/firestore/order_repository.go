package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/craftfolio/api/internal/domain"
	pfirestore "github.com/craftfolio/api/internal/platform/firestore"
	"github.com/craftfolio/api/internal/platform/pagination"
	"github.com/craftfolio/api/internal/repositories"
)

const (
	orderCollection      = "orders"
	defaultOrderPageSize = 50
	maxOrderPageSize     = 1000
)

type orderDocument struct {
	OrderNumber    string     `firestore:"orderNumber"`
	ClientID       string     `firestore:"clientId"`
	ServiceRef     *string    `firestore:"serviceRef,omitempty"`
	PricingTierRef *string    `firestore:"pricingTierRef,omitempty"`
	ProductRef     *string    `firestore:"productRef,omitempty"`
	TotalAmount    int64      `firestore:"totalAmount"`
	Currency       string     `firestore:"currency"`
	Status         string     `firestore:"status"`
	PaymentStatus  string     `firestore:"paymentStatus"`
	Notes          string     `firestore:"notes,omitempty"`
	DueDate        *time.Time `firestore:"dueDate,omitempty"`
	CreatedBy      *string    `firestore:"createdBy,omitempty"`
	UpdatedBy      *string    `firestore:"updatedBy,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		OrderNumber:    order.OrderNumber,
		ClientID:       order.ClientID,
		ServiceRef:     order.ServiceRef,
		PricingTierRef: order.PricingTierRef,
		ProductRef:     order.ProductRef,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Notes:          order.Notes,
		DueDate:        order.DueDate,
		CreatedBy:      order.Audit.CreatedBy,
		UpdatedBy:      order.Audit.UpdatedBy,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:             id,
		OrderNumber:    doc.OrderNumber,
		ClientID:       doc.ClientID,
		ServiceRef:     doc.ServiceRef,
		PricingTierRef: doc.PricingTierRef,
		ProductRef:     doc.ProductRef,
		TotalAmount:    doc.TotalAmount,
		Currency:       doc.Currency,
		Status:         domain.OrderStatus(doc.Status),
		PaymentStatus:  domain.PaymentStatus(doc.PaymentStatus),
		Notes:          doc.Notes,
		DueDate:        doc.DueDate,
		Audit: domain.OrderAudit{
			CreatedBy: doc.CreatedBy,
			UpdatedBy: doc.UpdatedBy,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// OrderRepository persists order headers in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert writes a new order. An existing document under the same id surfaces
// as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.insert", errors.New("order id is required"))
	}

	doc := fromDomainOrder(order)
	if tx := txFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}

	_, err := r.base.Create(ctx, order.ID, doc)
	return err
}

// Update overwrites the stored order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return pfirestore.WrapError("orders.update", errors.New("order id is required"))
	}

	doc := fromDomainOrder(order)
	if tx := txFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}

	_, err := r.base.Set(ctx, order.ID, doc)
	return err
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return pfirestore.WrapError("orders.delete", errors.New("order id is required"))
	}

	if tx := txFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("orders.delete", tx.Delete(ref))
	}

	_, err := r.base.Delete(ctx, orderID)
	return err
}

// FindByID loads one order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, pfirestore.WrapError("orders.get", errors.New("order id is required"))
	}

	if tx := txFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		return toDomainOrder(snap.Ref.ID, doc), nil
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// List returns orders matching the filter, newest first, with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}
	startAfter, err := decodeCreatedAtCursor(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if clientID := strings.TrimSpace(filter.ClientID); clientID != "" {
			query = query.Where("clientId", "==", clientID)
		}
		if len(filter.Status) > 0 {
			query = query.Where("status", "in", statusStrings(filter.Status))
		}
		if len(filter.PaymentStatus) > 0 {
			query = query.Where("paymentStatus", "in", paymentStatusStrings(filter.PaymentStatus))
		}
		if filter.CreatedRange.From != nil {
			query = query.Where("createdAt", ">=", filter.CreatedRange.From.UTC())
		}
		if filter.CreatedRange.To != nil {
			query = query.Where("createdAt", "<=", filter.CreatedRange.To.UTC())
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) > 0 {
			query = query.StartAfter(startAfter...)
		}
		// Fetch one extra row to detect whether another page exists.
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for _, doc := range docs {
		page.Items = append(page.Items, toDomainOrder(doc.ID, doc.Data))
	}

	if len(page.Items) > pageSize {
		page.Items = page.Items[:pageSize]
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		page.NextPageToken = token
	}
	return page, nil
}

// decodeCreatedAtCursor rebuilds the typed StartAfter values from the decoded
// token, where the timestamp arrives as its JSON string form.
func decodeCreatedAtCursor(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, errors.New("malformed page token")
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, errors.New("malformed page token")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, errors.New("malformed page token")
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, errors.New("malformed page token")
	}
	return []any{createdAt, id}, nil
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func paymentStatusStrings(statuses []domain.PaymentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
