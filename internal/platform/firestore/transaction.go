package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txDefaultAttempts = 5
	txDefaultTimeout  = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

type txSettings struct {
	attempts int
	timeout  time.Duration
}

// TxOption customises transaction retries and deadlines.
type TxOption func(*txSettings)

// WithTxAttempts sets the retry budget for contended transactions.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxTimeout caps the transaction duration.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// RunTransaction executes fn transactionally on the client, applying the
// default retry budget and deadline unless the caller tightens them.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := txSettings{attempts: txDefaultAttempts, timeout: txDefaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	// Only tighten the deadline; an already stricter caller deadline wins.
	if settings.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > settings.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, settings.timeout)
			defer cancel()
		}
	}

	var txOpts []firestore.TransactionOption
	if settings.attempts > 0 {
		txOpts = append(txOpts, firestore.MaxAttempts(settings.attempts))
	}

	err := client.RunTransaction(ctx, fn, txOpts...)
	return WrapError("transaction", err)
}
