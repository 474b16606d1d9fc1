package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/craftfolio/api/internal/domain"
)

// orderStateTransitions is the directed legal-transition graph for order
// lifecycle status. refunded never appears as a target here: it is entered
// only through the payment ledger's refund path.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusInProgress, domain.OrderStatusCancelled},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
	domain.OrderStatusRefunded:   {},
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func allowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	next := orderStateTransitions[current]
	return slices.Clone(next)
}

func isTerminalStatus(status domain.OrderStatus) bool {
	next, ok := orderStateTransitions[status]
	return ok && len(next) == 0
}

func isValidOrderStatus(status domain.OrderStatus) bool {
	_, ok := orderStateTransitions[status]
	return ok
}

// applyTransition mutates the order in place when the move is legal. The
// order is left untouched on error.
func applyTransition(order *domain.Order, target domain.OrderStatus, actor string, now time.Time) error {
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, target)
	}
	order.Status = target
	order.UpdatedAt = now
	if actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}
	return nil
}

// enterRefunded is the ledger-only entry path into the refunded status. It
// bypasses the transition table and must only be called after the ledger has
// verified the order is fully paid.
func enterRefunded(order *domain.Order, actor string, now time.Time) {
	order.Status = domain.OrderStatusRefunded
	order.UpdatedAt = now
	if actor != "" {
		order.Audit.UpdatedBy = valuePtr(actor)
	}
}
