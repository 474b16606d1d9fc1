package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/craftfolio/api/internal/domain"
	pfirestore "github.com/craftfolio/api/internal/platform/firestore"
)

const (
	paymentCollection = "payments"

	// paymentTxnCollection holds one sentinel document per (order,
	// transaction id) pair. Creating the sentinel alongside the ledger entry
	// turns transaction id reuse into a storage-level conflict even when two
	// submissions race.
	paymentTxnCollection = "payment_txns"
)

type paymentDocument struct {
	OrderID       string    `firestore:"orderId"`
	Amount        int64     `firestore:"amount"`
	Currency      string    `firestore:"currency"`
	Method        string    `firestore:"method"`
	TransactionID string    `firestore:"transactionId"`
	Status        string    `firestore:"status"`
	Notes         string    `firestore:"notes,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type paymentTxnDocument struct {
	OrderID       string    `firestore:"orderId"`
	PaymentID     string    `firestore:"paymentId"`
	TransactionID string    `firestore:"transactionId"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func fromDomainPayment(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		Notes:         payment.Notes,
		CreatedAt:     payment.CreatedAt.UTC(),
	}
}

func toDomainPayment(id string, doc paymentDocument) domain.Payment {
	return domain.Payment{
		ID:            id,
		OrderID:       doc.OrderID,
		Amount:        doc.Amount,
		Currency:      doc.Currency,
		Method:        doc.Method,
		TransactionID: doc.TransactionID,
		Status:        domain.PaymentEntryStatus(doc.Status),
		Notes:         doc.Notes,
		CreatedAt:     doc.CreatedAt,
	}
}

// paymentTxnID derives the sentinel document id. Transaction ids are free
// text, so the pair is hashed into a safe document name.
func paymentTxnID(orderID, transactionID string) string {
	sum := sha256.Sum256([]byte(orderID + "/" + transactionID))
	return hex.EncodeToString(sum[:16])
}

// PaymentRepository persists the append-only payment ledger.
type PaymentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentDocument]
	txns     *pfirestore.BaseRepository[paymentTxnDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection),
		txns:     pfirestore.NewBaseRepository[paymentTxnDocument](provider, paymentTxnCollection),
	}, nil
}

// Insert appends one ledger entry. The entry and its transaction id sentinel
// are created together; a reused transaction id on the same order fails the
// sentinel create with a conflict.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if strings.TrimSpace(payment.ID) == "" {
		return pfirestore.WrapError("payments.insert", errors.New("payment id is required"))
	}
	if strings.TrimSpace(payment.OrderID) == "" {
		return pfirestore.WrapError("payments.insert", errors.New("order id is required"))
	}
	if strings.TrimSpace(payment.TransactionID) == "" {
		return pfirestore.WrapError("payments.insert", errors.New("transaction id is required"))
	}

	doc := fromDomainPayment(payment)
	sentinel := paymentTxnDocument{
		OrderID:       payment.OrderID,
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		CreatedAt:     doc.CreatedAt,
	}
	sentinelID := paymentTxnID(payment.OrderID, payment.TransactionID)

	write := func(ctx context.Context, tx *firestore.Transaction) error {
		paymentRef, err := r.base.DocumentRef(ctx, payment.ID)
		if err != nil {
			return err
		}
		sentinelRef, err := r.txns.DocumentRef(ctx, sentinelID)
		if err != nil {
			return err
		}
		if err := tx.Create(sentinelRef, sentinel); err != nil {
			return pfirestore.WrapError("payments.insert", err)
		}
		if err := tx.Create(paymentRef, doc); err != nil {
			return pfirestore.WrapError("payments.insert", err)
		}
		return nil
	}

	if tx := txFromContext(ctx); tx != nil {
		return write(ctx, tx)
	}
	return r.provider.RunTransaction(ctx, write)
}

// UpdateStatus changes the status of one ledger entry.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, orderID, paymentID string, status domain.PaymentEntryStatus) error {
	if strings.TrimSpace(paymentID) == "" {
		return pfirestore.WrapError("payments.update", errors.New("payment id is required"))
	}

	doc, err := r.base.Get(ctx, paymentID)
	if err != nil {
		return err
	}
	if doc.Data.OrderID != orderID {
		return pfirestore.NotFoundError("payments.update", fmt.Errorf("payment %s does not belong to order %s", paymentID, orderID))
	}

	_, err = r.base.Update(ctx, paymentID, []firestore.Update{
		{Path: "status", Value: string(status)},
	})
	return err
}

// List returns the full ledger for the order, oldest entry first. Inside a
// transaction the read joins it, which is what allows callers to recompute
// balances against an uncommitted view.
func (r *PaymentRepository) List(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, pfirestore.WrapError("payments.list", errors.New("order id is required"))
	}

	query, err := r.paymentQuery(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var iter *firestore.DocumentIterator
	if tx := txFromContext(ctx); tx != nil {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var payments []domain.Payment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("payments.list", err)
		}
		var doc paymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("payments.list", err)
		}
		payments = append(payments, toDomainPayment(snap.Ref.ID, doc))
	}
	return payments, nil
}

// FindByTransactionID resolves one ledger entry by its transaction reference.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, orderID, transactionID string) (domain.Payment, error) {
	sentinelID := paymentTxnID(orderID, strings.TrimSpace(transactionID))

	sentinel, err := r.txns.Get(ctx, sentinelID)
	if err != nil {
		return domain.Payment{}, err
	}

	doc, err := r.base.Get(ctx, sentinel.Data.PaymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return toDomainPayment(doc.ID, doc.Data), nil
}

// DeleteByOrder removes the order's ledger entries and their sentinels.
func (r *PaymentRepository) DeleteByOrder(ctx context.Context, orderID string) error {
	payments, err := r.List(ctx, orderID)
	if err != nil {
		return err
	}

	tx := txFromContext(ctx)
	for _, payment := range payments {
		paymentRef, err := r.base.DocumentRef(ctx, payment.ID)
		if err != nil {
			return err
		}
		sentinelRef, err := r.txns.DocumentRef(ctx, paymentTxnID(orderID, payment.TransactionID))
		if err != nil {
			return err
		}

		if tx != nil {
			if err := tx.Delete(paymentRef); err != nil {
				return pfirestore.WrapError("payments.delete", err)
			}
			if err := tx.Delete(sentinelRef); err != nil {
				return pfirestore.WrapError("payments.delete", err)
			}
			continue
		}

		if _, err := paymentRef.Delete(ctx); err != nil {
			return pfirestore.WrapError("payments.delete", err)
		}
		if _, err := sentinelRef.Delete(ctx); err != nil {
			return pfirestore.WrapError("payments.delete", err)
		}
	}
	return nil
}

func (r *PaymentRepository) paymentQuery(ctx context.Context, orderID string) (firestore.Query, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return firestore.Query{}, err
	}
	query := client.Collection(paymentCollection).Query.
		Where("orderId", "==", orderID).
		OrderBy("createdAt", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)
	return query, nil
}
