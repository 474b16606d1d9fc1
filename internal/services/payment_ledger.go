package services

import (
	"fmt"
	"strings"

	domain "github.com/craftfolio/api/internal/domain"
)

// paymentMethodAliases normalises the free-text methods seen in practice to a
// stable vocabulary.
var paymentMethodAliases = map[string]string{
	"mpesa":         "mpesa",
	"m-pesa":        "mpesa",
	"card":          "card",
	"credit_card":   "card",
	"debit_card":    "card",
	"bank":          "bank_transfer",
	"bank_transfer": "bank_transfer",
	"wire":          "bank_transfer",
	"cash":          "cash",
	"paypal":        "paypal",
	"cheque":        "cheque",
	"check":         "cheque",
}

func normalizePaymentMethod(method string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(method))
	if key == "" {
		return "", fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	if normalized, ok := paymentMethodAliases[key]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, method)
}

// paidTotal sums the completed positive entries against the order balance.
// Failed and pending attempts never count; refund entries are negative rows
// with their own status and are excluded from the balance a new payment is
// checked against.
func paidTotal(payments []domain.Payment) int64 {
	var sum int64
	for _, entry := range payments {
		if entry.Status == domain.PaymentEntryPaid {
			sum += entry.Amount
		}
	}
	return sum
}

func hasRefundEntry(payments []domain.Payment) bool {
	for _, entry := range payments {
		if entry.Status == domain.PaymentEntryRefunded {
			return true
		}
	}
	return false
}

func hasFailedEntry(payments []domain.Payment) bool {
	for _, entry := range payments {
		if entry.Status == domain.PaymentEntryFailed {
			return true
		}
	}
	return false
}

// derivePaymentStatus recomputes the order's payment status from the full
// ledger. refunded dominates once a refund entry exists; otherwise the status
// follows the completed sum, with failed marking a zero balance that has at
// least one failed attempt.
func derivePaymentStatus(order domain.Order, payments []domain.Payment) domain.PaymentStatus {
	if hasRefundEntry(payments) {
		return domain.PaymentStatusRefunded
	}

	sum := paidTotal(payments)
	switch {
	case sum >= order.TotalAmount && order.TotalAmount > 0:
		return domain.PaymentStatusPaid
	case sum > 0:
		return domain.PaymentStatusPartial
	case hasFailedEntry(payments):
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

// applyPaymentStatus is the single writer of order.PaymentStatus. Every
// ledger mutation must funnel through here so the stored value can never
// drift from the ledger. Reports whether the stored value changed.
func applyPaymentStatus(order *domain.Order, payments []domain.Payment) bool {
	derived := derivePaymentStatus(*order, payments)
	if order.PaymentStatus == derived {
		return false
	}
	order.PaymentStatus = derived
	return true
}

// validateLedgerAmount applies the shared checks for a new positive ledger
// entry: same-currency, positive amount, and no overpayment beyond the
// remaining balance.
func validateLedgerAmount(order domain.Order, amount int64, currency string, existing []domain.Payment) error {
	if amount <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", ErrOrderInvalidInput)
	}
	if !strings.EqualFold(strings.TrimSpace(currency), order.Currency) {
		return fmt.Errorf("%w: payment currency %q does not match order currency %q", ErrCurrencyMismatch, currency, order.Currency)
	}
	if remaining := order.TotalAmount - paidTotal(existing); amount > remaining {
		return fmt.Errorf("%w: amount %d exceeds remaining balance %d", ErrAmountExceedsBalance, amount, remaining)
	}
	return nil
}

func duplicateTransaction(existing []domain.Payment, transactionID string) bool {
	for _, entry := range existing {
		if entry.TransactionID == transactionID {
			return true
		}
	}
	return false
}
