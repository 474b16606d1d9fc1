package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/platform/auth"
	"github.com/craftfolio/api/internal/platform/httpx"
	"github.com/craftfolio/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 16 * 1024

	paymentRateLimit  = 30
	paymentRateWindow = time.Minute
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusConfirmed:  {},
	domain.OrderStatusInProgress: {},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
	domain.OrderStatusRefunded:   {},
}

var validPaymentStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentStatusPending:  {},
	domain.PaymentStatusPartial:  {},
	domain.PaymentStatusPaid:     {},
	domain.PaymentStatusFailed:   {},
	domain.PaymentStatusRefunded: {},
}

type createOrderRequest struct {
	ClientID       string  `json:"client_id"`
	ServiceRef     *string `json:"service_ref"`
	PricingTierRef *string `json:"pricing_tier_ref"`
	ProductRef     *string `json:"product_ref"`
	TotalAmount    int64   `json:"total_amount"`
	Currency       string  `json:"currency"`
	Notes          string  `json:"notes"`
	DueDate        string  `json:"due_date"`
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type submitPaymentRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Notes         string `json:"notes"`
	Failed        bool   `json:"failed"`
}

type refundOrderRequest struct {
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
	Notes         string `json:"notes"`
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
	Note     string   `json:"note"`
}

// OrderHandlers exposes the order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:   authn,
		orders:  orders,
		limiter: newFixedWindowLimiter(paymentRateLimit, paymentRateWindow, nil),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/stats", h.orderStats)
	r.Post("/bulk-status", h.bulkUpdateStatus)
	r.Get("/{orderID}", h.getOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
	r.Post("/{orderID}/payments", h.submitPayment)
	r.Get("/{orderID}/timeline", h.orderTimeline)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	statusFilters, err := parseOrderStatusFilters(query["status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	paymentFilters, err := parsePaymentStatusFilters(query["payment_status"])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var createdRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		createdRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		createdRange.To = &ts
	}

	pageSize, err := parsePageSize(query.Get("page_size"), defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		ClientID:      strings.TrimSpace(query.Get("client_id")),
		Status:        statusFilters,
		PaymentStatus: paymentFilters,
		CreatedRange:  createdRange,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	page, err := h.orders.ListOrders(ctx, actor, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Actor:          actor,
		ClientID:       strings.TrimSpace(req.ClientID),
		ServiceRef:     req.ServiceRef,
		PricingTierRef: req.PricingTierRef,
		ProductRef:     req.ProductRef,
		TotalAmount:    req.TotalAmount,
		Currency:       strings.TrimSpace(req.Currency),
		Notes:          req.Notes,
	}
	if raw := strings.TrimSpace(req.DueDate); raw != "" {
		due, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "due_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DueDate = &due
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, actor, orderID, services.OrderReadOptions{
		IncludePayments: true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusTransitionCommand{
		Actor:        actor,
		OrderID:      orderID,
		TargetStatus: target,
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) submitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many payment submissions, retry later", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req submitPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	payment, err := h.orders.SubmitPayment(ctx, services.SubmitPaymentCommand{
		Actor:         actor,
		OrderID:       orderID,
		Amount:        req.Amount,
		Currency:      strings.TrimSpace(req.Currency),
		Method:        strings.TrimSpace(req.Method),
		TransactionID: strings.TrimSpace(req.TransactionID),
		Notes:         req.Notes,
		Failed:        req.Failed,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req refundOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	payment, err := h.orders.Refund(ctx, services.RefundCommand{
		Actor:         actor,
		OrderID:       orderID,
		Amount:        req.Amount,
		TransactionID: strings.TrimSpace(req.TransactionID),
		Notes:         req.Notes,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{Actor: actor, OrderID: orderID}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req bulkStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	result, err := h.orders.BulkUpdateStatus(ctx, services.BulkStatusCommand{
		Actor:        actor,
		OrderIDs:     req.OrderIDs,
		TargetStatus: target,
		Note:         req.Note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	rejected := make([]bulkRejectionPayload, 0, len(result.Rejected))
	for _, rej := range result.Rejected {
		rejected = append(rejected, bulkRejectionPayload{
			OrderID: rej.OrderID,
			Reason:  rej.Reason,
		})
	}
	updated := result.Updated
	if updated == nil {
		updated = []string{}
	}

	writeJSONResponse(w, http.StatusOK, bulkStatusResponse{
		Updated:  updated,
		Rejected: rejected,
	})
}

func (h *OrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := h.orders.OrderStats(ctx, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	counts := make(map[string]int, len(stats.CountsByStatus))
	for status, count := range stats.CountsByStatus {
		counts[string(status)] = count
	}
	revenue := make(map[string]int64, len(stats.RevenueByCurrency))
	for currency, total := range stats.RevenueByCurrency {
		revenue[currency] = total
	}

	writeJSONResponse(w, http.StatusOK, orderStatsResponse{
		TotalOrders:       stats.TotalOrders,
		CountsByStatus:    counts,
		RevenueByCurrency: revenue,
	})
}

func (h *OrderHandlers) orderTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := principalFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	entries, err := h.orders.Timeline(ctx, actor, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]timelineEntryPayload, 0, len(entries))
	for _, entry := range entries {
		items = append(items, timelineEntryPayload{
			Kind:       entry.Kind,
			OccurredAt: formatTime(entry.OccurredAt),
			Label:      entry.Label,
			Amount:     entry.Amount,
			PaymentID:  entry.PaymentID,
		})
	}

	writeJSONResponse(w, http.StatusOK, timelineResponse{Entries: items})
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	ClientID      string `json:"client_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	TotalAmount   int64  `json:"total_amount"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	OrderNumber    string             `json:"order_number"`
	ClientID       string             `json:"client_id"`
	ServiceRef     *string            `json:"service_ref,omitempty"`
	PricingTierRef *string            `json:"pricing_tier_ref,omitempty"`
	ProductRef     *string            `json:"product_ref,omitempty"`
	TotalAmount    int64              `json:"total_amount"`
	Currency       string             `json:"currency"`
	Status         string             `json:"status"`
	PaymentStatus  string             `json:"payment_status"`
	Notes          string             `json:"notes,omitempty"`
	DueDate        string             `json:"due_date,omitempty"`
	Audit          *orderAuditPayload `json:"audit,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
	Payments       []paymentPayload   `json:"payments,omitempty"`
}

type orderAuditPayload struct {
	CreatedBy *string `json:"created_by,omitempty"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type bulkStatusResponse struct {
	Updated  []string               `json:"updated"`
	Rejected []bulkRejectionPayload `json:"rejected"`
}

type bulkRejectionPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type orderStatsResponse struct {
	TotalOrders       int              `json:"total_orders"`
	CountsByStatus    map[string]int   `json:"counts_by_status"`
	RevenueByCurrency map[string]int64 `json:"revenue_by_currency"`
}

type timelineResponse struct {
	Entries []timelineEntryPayload `json:"entries"`
}

type timelineEntryPayload struct {
	Kind       string `json:"kind"`
	OccurredAt string `json:"occurred_at"`
	Label      string `json:"label,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	PaymentID  string `json:"payment_id,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		ClientID:      order.ClientID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      strings.ToUpper(order.Currency),
		TotalAmount:   order.TotalAmount,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		ClientID:       order.ClientID,
		ServiceRef:     order.ServiceRef,
		PricingTierRef: order.PricingTierRef,
		ProductRef:     order.ProductRef,
		TotalAmount:    order.TotalAmount,
		Currency:       strings.ToUpper(order.Currency),
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Notes:          order.Notes,
		DueDate:        formatTimePtr(order.DueDate),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}

	if order.Audit.CreatedBy != nil || order.Audit.UpdatedBy != nil {
		payload.Audit = &orderAuditPayload{
			CreatedBy: order.Audit.CreatedBy,
			UpdatedBy: order.Audit.UpdatedBy,
		}
	}

	if len(order.Payments) > 0 {
		payments := make([]paymentPayload, 0, len(order.Payments))
		for _, payment := range order.Payments {
			payments = append(payments, buildPaymentPayload(payment))
		}
		payload.Payments = payments
	}

	return payload
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Currency:      strings.ToUpper(payment.Currency),
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		Notes:         payment.Notes,
		CreatedAt:     formatTime(payment.CreatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDuplicateTransaction):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_transaction", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrAmountExceedsBalance):
		httpx.WriteError(ctx, w, httpx.NewError("amount_exceeds_balance", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCurrencyMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("currency_mismatch", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

func parseOrderStatusFilters(values []string) ([]domain.OrderStatus, error) {
	parts := parseFilterValues(values)
	if len(parts) == 0 {
		return nil, nil
	}
	statuses := make([]domain.OrderStatus, 0, len(parts))
	for _, part := range parts {
		status, ok := parseOrderStatus(part)
		if !ok {
			return nil, errors.New("status filter contains an unknown order status")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parsePaymentStatusFilters(values []string) ([]domain.PaymentStatus, error) {
	parts := parseFilterValues(values)
	if len(parts) == 0 {
		return nil, nil
	}
	statuses := make([]domain.PaymentStatus, 0, len(parts))
	for _, part := range parts {
		status := domain.PaymentStatus(part)
		if _, ok := validPaymentStatuses[status]; !ok {
			return nil, errors.New("payment_status filter contains an unknown payment status")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
