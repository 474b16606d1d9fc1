package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/craftfolio/api/internal/authz"
	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"
	eventIDPrefix   = "evt_"

	orderStatsPageSize = 1000
)

var (
	// ErrForbidden signals an authorization denial. It carries no detail about
	// the resource or which transitions would have been legal.
	ErrForbidden = errors.New("authorization: forbidden")
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates duplicates or concurrent update conflicts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrInvalidTransition indicates a status change not present in the legal graph.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrDuplicateTransaction indicates a transaction id reused within one order.
	ErrDuplicateTransaction = errors.New("payment: duplicate transaction id")
	// ErrAmountExceedsBalance indicates an overpayment attempt.
	ErrAmountExceedsBalance = errors.New("payment: amount exceeds order balance")
	// ErrCurrencyMismatch indicates a payment in a different currency than the order.
	ErrCurrencyMismatch = errors.New("payment: currency mismatch")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Payments   repositories.PaymentRepository
	Users      repositories.UserRepository
	Counters   repositories.CounterRepository
	Resolver   *authz.Resolver
	UnitOfWork repositories.UnitOfWork

	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Sanitize    func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	users      repositories.UserRepository
	counters   repositories.CounterRepository
	resolver   *authz.Resolver
	unitOfWork repositories.UnitOfWork

	clock    func() time.Time
	newID    func() string
	events   OrderEventPublisher
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)

	// locks serializes mutating calls per order so ledger recomputation and
	// status transitions on the same order never interleave.
	locks keyedMutex
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	resolver := deps.Resolver
	if resolver == nil {
		resolver = authz.NewResolver()
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		users:      deps.Users,
		counters:   deps.Counters,
		resolver:   resolver,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	clientID := strings.TrimSpace(cmd.ClientID)
	if clientID == "" {
		return Order{}, fmt.Errorf("%w: client id is required", ErrOrderInvalidInput)
	}

	if err := s.authorize(ctx, cmd.Actor, authz.ActionCreate, authz.Resource{
		Kind:    "order",
		OwnerID: clientID,
	}); err != nil {
		return Order{}, err
	}

	refs := 0
	for _, ref := range []*string{cmd.ServiceRef, cmd.PricingTierRef, cmd.ProductRef} {
		if ref != nil && strings.TrimSpace(*ref) != "" {
			refs++
		}
	}
	if refs != 1 {
		return Order{}, fmt.Errorf("%w: exactly one of service, pricing tier, or product reference is required", ErrOrderInvalidInput)
	}
	if cmd.TotalAmount <= 0 {
		return Order{}, fmt.Errorf("%w: total amount must be positive", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		return Order{}, fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order := Order{
		ID:             orderIDPrefix + s.newID(),
		ClientID:       clientID,
		ServiceRef:     trimRef(cmd.ServiceRef),
		PricingTierRef: trimRef(cmd.PricingTierRef),
		ProductRef:     trimRef(cmd.ProductRef),
		TotalAmount:    cmd.TotalAmount,
		Currency:       currency,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		Notes:          s.sanitize(cmd.Notes),
		DueDate:        cmd.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cmd.Actor != nil {
		order.Audit.CreatedBy = valuePtr(cmd.Actor.ID)
		order.Audit.UpdatedBy = valuePtr(cmd.Actor.ID)
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		ID:          eventIDPrefix + s.newID(),
		Type:        EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ClientID:    order.ClientID,
		ActorID:     actorID(cmd.Actor),
		NewStatus:   string(order.Status),
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor *Principal, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	decision := s.resolver.Authorize(actor, authz.ActionRead, s.orderResource(ctx, order))
	if !decision.Allowed {
		s.logDenial(ctx, actor, authz.ActionRead, order.ID, decision.Reason)
		return Order{}, ErrForbidden
	}

	if opts.IncludePayments {
		payments, err := s.payments.List(ctx, orderID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		order.Payments = payments
	}

	maskOrderFields(&order, decision.HiddenFields)
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor *Principal, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if actor == nil || actor.ID == "" {
		return domain.CursorPage[Order]{}, ErrForbidden
	}

	// Clients only ever see their own orders regardless of the requested filter.
	if !actor.Superuser && actor.Role == domain.RoleClient {
		filter.ClientID = actor.ID
	}

	decision := s.resolver.Authorize(actor, authz.ActionRead, authz.Resource{
		Kind:    "order",
		OwnerID: filterOwner(filter, actor),
	})
	if !decision.Allowed {
		s.logDenial(ctx, actor, authz.ActionRead, "", decision.Reason)
		return domain.CursorPage[Order]{}, ErrForbidden
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}

	if len(decision.HiddenFields) > 0 {
		for i := range page.Items {
			maskOrderFields(&page.Items[i], decision.HiddenFields)
		}
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Authorization runs before any transition validation so a denial never
	// leaks which transitions would have been legal.
	if err := s.authorize(ctx, cmd.Actor, authz.ActionTransition, s.orderResource(ctx, order)); err != nil {
		return Order{}, err
	}

	if !isValidOrderStatus(cmd.TargetStatus) || cmd.TargetStatus == domain.OrderStatusRefunded {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, cmd.TargetStatus)
	}

	now := s.now()
	prev := order.Status
	if err := applyTransition(&order, cmd.TargetStatus, actorID(cmd.Actor), now); err != nil {
		return Order{}, err
	}
	if reason := s.sanitize(cmd.Reason); reason != "" {
		order.Notes = appendNote(order.Notes, reason)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishStatusChanged(ctx, order, prev, actorID(cmd.Actor), now)
	return order, nil
}

func (s *orderService) SubmitPayment(ctx context.Context, cmd SubmitPaymentCommand) (Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		return Payment{}, fmt.Errorf("%w: transaction id is required", ErrOrderInvalidInput)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if err := s.authorize(ctx, cmd.Actor, authz.ActionRecordPayment, s.orderResource(ctx, order)); err != nil {
		return Payment{}, err
	}

	method, err := normalizePaymentMethod(cmd.Method)
	if err != nil {
		return Payment{}, err
	}

	now := s.now()
	entry := Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       order.ID,
		Amount:        cmd.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Method:        method,
		TransactionID: transactionID,
		Status:        domain.PaymentEntryPaid,
		Notes:         s.sanitize(cmd.Notes),
		CreatedAt:     now,
	}
	if cmd.Failed {
		entry.Status = domain.PaymentEntryFailed
	}

	prevStatus := order.Status
	statusAdvanced := false

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		// The balance is always recomputed from a fresh read of the full
		// ledger inside the transaction, never from a cached aggregate.
		existing, err := s.payments.List(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if duplicateTransaction(existing, transactionID) {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, transactionID)
		}
		if !cmd.Failed {
			if err := validateLedgerAmount(order, cmd.Amount, entry.Currency, existing); err != nil {
				return err
			}
		} else if cmd.Amount <= 0 {
			return fmt.Errorf("%w: payment amount must be positive", ErrOrderInvalidInput)
		}

		if err := s.payments.Insert(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}

		ledger := append(append([]Payment(nil), existing...), entry)
		applyPaymentStatus(&order, ledger)
		order.UpdatedAt = now

		// A fully paid order still sitting in pending auto-confirms.
		if order.PaymentStatus == domain.PaymentStatusPaid && order.Status == domain.OrderStatusPending {
			if err := applyTransition(&order, domain.OrderStatusConfirmed, actorID(cmd.Actor), now); err != nil {
				return err
			}
			statusAdvanced = true
		}

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		ID:          eventIDPrefix + s.newID(),
		Type:        EventPaymentRecorded,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ClientID:    order.ClientID,
		ActorID:     actorID(cmd.Actor),
		PaymentID:   entry.ID,
		Amount:      entry.Amount,
		Currency:    entry.Currency,
		OccurredAt:  now,
	})
	if statusAdvanced {
		s.publishStatusChanged(ctx, order, prevStatus, actorID(cmd.Actor), now)
	}

	return entry, nil
}

func (s *orderService) Refund(ctx context.Context, cmd RefundCommand) (Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderInvalidInput)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if err := s.authorize(ctx, cmd.Actor, authz.ActionRefund, s.orderResource(ctx, order)); err != nil {
		return Payment{}, err
	}

	now := s.now()
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		transactionID = "refund_" + s.newID()
	}

	entry := Payment{
		ID:            paymentIDPrefix + s.newID(),
		OrderID:       order.ID,
		Amount:        -cmd.Amount,
		Currency:      order.Currency,
		Method:        "refund",
		TransactionID: transactionID,
		Status:        domain.PaymentEntryRefunded,
		Notes:         s.sanitize(cmd.Notes),
		CreatedAt:     now,
	}

	prevStatus := order.Status

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.payments.List(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if derivePaymentStatus(order, existing) != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: refund requires a fully paid order", ErrOrderInvalidInput)
		}
		if duplicateTransaction(existing, transactionID) {
			return fmt.Errorf("%w: %s", ErrDuplicateTransaction, transactionID)
		}
		if cmd.Amount > paidTotal(existing) {
			return fmt.Errorf("%w: refund %d exceeds paid total %d", ErrAmountExceedsBalance, cmd.Amount, paidTotal(existing))
		}

		if err := s.payments.Insert(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}

		// Status and payment status flip to refunded as one atomic pair
		// within this transaction: both change or neither does.
		ledger := append(append([]Payment(nil), existing...), entry)
		applyPaymentStatus(&order, ledger)
		enterRefunded(&order, actorID(cmd.Actor), now)

		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		ID:          eventIDPrefix + s.newID(),
		Type:        EventPaymentRecorded,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ClientID:    order.ClientID,
		ActorID:     actorID(cmd.Actor),
		PaymentID:   entry.ID,
		Amount:      entry.Amount,
		Currency:    entry.Currency,
		OccurredAt:  now,
	})
	s.publishStatusChanged(ctx, order, prevStatus, actorID(cmd.Actor), now)

	return entry, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	if err := s.authorize(ctx, cmd.Actor, authz.ActionDelete, s.orderResource(ctx, order)); err != nil {
		return err
	}

	payments, err := s.payments.List(ctx, order.ID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	for _, entry := range payments {
		if entry.Status == domain.PaymentEntryPaid {
			return fmt.Errorf("%w: orders with completed payments cannot be deleted", ErrOrderConflict)
		}
	}

	return s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.payments.DeleteByOrder(txCtx, order.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Delete(txCtx, order.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
}

func (s *orderService) BulkUpdateStatus(ctx context.Context, cmd BulkStatusCommand) (BulkStatusResult, error) {
	if err := s.authorize(ctx, cmd.Actor, authz.ActionBulkUpdate, authz.Resource{Kind: "order"}); err != nil {
		return BulkStatusResult{}, err
	}
	if len(cmd.OrderIDs) == 0 {
		return BulkStatusResult{}, fmt.Errorf("%w: at least one order id is required", ErrOrderInvalidInput)
	}
	if !isValidOrderStatus(cmd.TargetStatus) || cmd.TargetStatus == domain.OrderStatusRefunded {
		return BulkStatusResult{}, fmt.Errorf("%w: %q is not a valid bulk target", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	note := s.sanitize(cmd.Note)
	result := BulkStatusResult{}

	// Best effort per order: one rejection never rolls back the orders
	// already updated.
	for _, rawID := range cmd.OrderIDs {
		orderID := strings.TrimSpace(rawID)
		if orderID == "" {
			continue
		}

		if err := s.bulkUpdateOne(ctx, orderID, cmd.TargetStatus, note, actorID(cmd.Actor)); err != nil {
			result.Rejected = append(result.Rejected, BulkRejection{
				OrderID: orderID,
				Reason:  bulkRejectionReason(err),
			})
			continue
		}
		result.Updated = append(result.Updated, orderID)
	}

	return result, nil
}

func (s *orderService) bulkUpdateOne(ctx context.Context, orderID string, target OrderStatus, note, actor string) error {
	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.Status
	if err := applyTransition(&order, target, actor, now); err != nil {
		return err
	}
	if note != "" {
		order.Notes = appendNote(order.Notes, note)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishStatusChanged(ctx, order, prev, actor, now)
	return nil
}

func (s *orderService) OrderStats(ctx context.Context, actor *Principal) (OrderStats, error) {
	if err := s.authorize(ctx, actor, authz.ActionRead, authz.Resource{Kind: "order_stats"}); err != nil {
		return OrderStats{}, err
	}

	stats := OrderStats{
		CountsByStatus:    make(map[OrderStatus]int),
		RevenueByCurrency: make(map[string]int64),
	}

	filter := OrderListFilter{Pagination: Pagination{PageSize: orderStatsPageSize}}
	for {
		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return OrderStats{}, s.mapRepositoryError(err)
		}
		for _, order := range page.Items {
			stats.TotalOrders++
			stats.CountsByStatus[order.Status]++
			if order.PaymentStatus == domain.PaymentStatusPaid {
				stats.RevenueByCurrency[order.Currency] += order.TotalAmount
			}
		}
		if page.NextPageToken == "" {
			break
		}
		filter.Pagination.PageToken = page.NextPageToken
	}

	return stats, nil
}

func (s *orderService) Timeline(ctx context.Context, actor *Principal, orderID string) ([]TimelineEntry, error) {
	order, err := s.GetOrder(ctx, actor, orderID, OrderReadOptions{IncludePayments: true})
	if err != nil {
		return nil, err
	}

	entries := []TimelineEntry{{
		Kind:       "order_created",
		OccurredAt: order.CreatedAt,
		Label:      fmt.Sprintf("Order %s created", order.OrderNumber),
		Amount:     order.TotalAmount,
	}}

	for _, payment := range order.Payments {
		entry := TimelineEntry{
			OccurredAt: payment.CreatedAt,
			Amount:     payment.Amount,
			PaymentID:  payment.ID,
		}
		switch payment.Status {
		case domain.PaymentEntryRefunded:
			entry.Kind = "refund"
			entry.Label = "Refund issued"
		case domain.PaymentEntryFailed:
			entry.Kind = "payment_failed"
			entry.Label = "Payment attempt failed"
		default:
			entry.Kind = "payment"
			entry.Label = fmt.Sprintf("Payment received via %s", payment.Method)
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})
	return entries, nil
}

// orderResource builds the authorization resource for an order, resolving the
// owner's role when available so the cross-cutting developer/admin rule can
// apply. A failed lookup leaves the role empty rather than blocking the call.
func (s *orderService) orderResource(ctx context.Context, order Order) authz.Resource {
	resource := authz.Resource{
		Kind:    "order",
		ID:      order.ID,
		OwnerID: order.ClientID,
	}
	if s.users != nil {
		if owner, err := s.users.FindByID(ctx, order.ClientID); err == nil {
			resource.OwnerRole = owner.Role
		}
	}
	return resource
}

func (s *orderService) authorize(ctx context.Context, actor *Principal, action authz.Action, resource authz.Resource) error {
	decision := s.resolver.Authorize(actor, action, resource)
	if decision.Allowed {
		return nil
	}
	s.logDenial(ctx, actor, action, resource.ID, decision.Reason)
	return ErrForbidden
}

func (s *orderService) logDenial(ctx context.Context, actor *Principal, action authz.Action, resourceID, reason string) {
	s.logger(ctx, "order.authorize.denied", map[string]any{
		"actor":    actorID(actor),
		"action":   string(action),
		"resource": resourceID,
		"reason":   reason,
	})
}

func (s *orderService) publishStatusChanged(ctx context.Context, order Order, prev OrderStatus, actor string, now time.Time) {
	s.publishEvent(ctx, OrderEvent{
		ID:          eventIDPrefix + s.newID(),
		Type:        EventOrderStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ClientID:    order.ClientID,
		ActorID:     actor,
		OldStatus:   string(prev),
		NewStatus:   string(order.Status),
		OccurredAt:  now,
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  string(event.Type),
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("ORD-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func bulkRejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid transition"
	case errors.Is(err, ErrOrderNotFound):
		return "not found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "update failed"
	}
}

func maskOrderFields(order *Order, hidden []string) {
	for _, field := range hidden {
		switch field {
		case "notes":
			order.Notes = ""
		case "audit":
			order.Audit = OrderAudit{}
		}
	}
}

func filterOwner(filter OrderListFilter, actor *Principal) string {
	if filter.ClientID != "" {
		return filter.ClientID
	}
	if actor != nil && !actor.Superuser && actor.Role == domain.RoleClient {
		return actor.ID
	}
	return ""
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func trimRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func actorID(actor *Principal) string {
	if actor == nil {
		return ""
	}
	return actor.ID
}

func valuePtr[T any](v T) *T {
	return &v
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// keyedMutex hands out one mutex per key, serializing mutating calls per order.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entryLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &entryLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
