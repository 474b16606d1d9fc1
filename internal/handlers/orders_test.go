package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/craftfolio/api/internal/domain"
	"github.com/craftfolio/api/internal/platform/auth"
	"github.com/craftfolio/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, *services.Principal, string, services.OrderReadOptions) (services.Order, error)
	listFn       func(context.Context, *services.Principal, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	paymentFn    func(context.Context, services.SubmitPaymentCommand) (services.Payment, error)
	refundFn     func(context.Context, services.RefundCommand) (services.Payment, error)
	deleteFn     func(context.Context, services.DeleteOrderCommand) error
	bulkFn       func(context.Context, services.BulkStatusCommand) (services.BulkStatusResult, error)
	statsFn      func(context.Context, *services.Principal) (services.OrderStats, error)
	timelineFn   func(context.Context, *services.Principal, string) ([]services.TimelineEntry, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor *services.Principal, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor *services.Principal, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SubmitPayment(ctx context.Context, cmd services.SubmitPaymentCommand) (services.Payment, error) {
	if s.paymentFn != nil {
		return s.paymentFn(ctx, cmd)
	}
	return services.Payment{}, errors.New("not implemented")
}

func (s *stubOrderService) Refund(ctx context.Context, cmd services.RefundCommand) (services.Payment, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return services.Payment{}, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) BulkUpdateStatus(ctx context.Context, cmd services.BulkStatusCommand) (services.BulkStatusResult, error) {
	if s.bulkFn != nil {
		return s.bulkFn(ctx, cmd)
	}
	return services.BulkStatusResult{}, errors.New("not implemented")
}

func (s *stubOrderService) OrderStats(ctx context.Context, actor *services.Principal) (services.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, actor)
	}
	return services.OrderStats{}, errors.New("not implemented")
}

func (s *stubOrderService) Timeline(ctx context.Context, actor *services.Principal, orderID string) ([]services.TimelineEntry, error) {
	if s.timelineFn != nil {
		return s.timelineFn(ctx, actor, orderID)
	}
	return nil, errors.New("not implemented")
}

func newOrderRouter(service services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func asStaff(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{ID: "usr_admin", Role: domain.RoleAdmin}))
}

func asClient(req *http.Request) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{ID: "usr_client", Role: domain.RoleClient}))
}

func TestOrderHandlersListOrdersSuccess(t *testing.T) {
	now := time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)
	fromExpected := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	toExpected := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var capturedFilter services.OrderListFilter
	var capturedActor *services.Principal
	service := &stubOrderService{
		listFn: func(ctx context.Context, actor *services.Principal, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			capturedActor = actor
			capturedFilter = filter
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{
						ID:            "ord_123",
						OrderNumber:   "ORD-2026-000123",
						ClientID:      "usr_client",
						Status:        domain.OrderStatusConfirmed,
						PaymentStatus: domain.PaymentStatusPartial,
						Currency:      "kes",
						TotalAmount:   150000,
						CreatedAt:     now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newOrderRouter(service)
	req := asStaff(httptest.NewRequest(http.MethodGet, "/orders?status=confirmed,in_progress&payment_status=partial&page_size=10&page_token=tok123&created_after=2026-04-01T00:00:00Z&created_before=2026-05-01T00:00:00Z", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedActor == nil || capturedActor.ID != "usr_admin" {
		t.Fatalf("expected actor usr_admin, got %#v", capturedActor)
	}
	if capturedFilter.Pagination.PageSize != 10 || capturedFilter.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", capturedFilter.Pagination)
	}
	if len(capturedFilter.Status) != 2 || capturedFilter.Status[0] != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status filters: %#v", capturedFilter.Status)
	}
	if len(capturedFilter.PaymentStatus) != 1 || capturedFilter.PaymentStatus[0] != domain.PaymentStatusPartial {
		t.Fatalf("unexpected payment status filters: %#v", capturedFilter.PaymentStatus)
	}
	if capturedFilter.CreatedRange.From == nil || !capturedFilter.CreatedRange.From.Equal(fromExpected) {
		t.Fatalf("unexpected created_after: %#v", capturedFilter.CreatedRange.From)
	}
	if capturedFilter.CreatedRange.To == nil || !capturedFilter.CreatedRange.To.Equal(toExpected) {
		t.Fatalf("unexpected created_before: %#v", capturedFilter.CreatedRange.To)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Items))
	}
	order := resp.Items[0]
	if order.ID != "ord_123" || order.OrderNumber != "ORD-2026-000123" {
		t.Fatalf("unexpected order summary: %#v", order)
	}
	if order.Currency != "KES" {
		t.Fatalf("expected currency uppercased, got %s", order.Currency)
	}
	if order.TotalAmount != 150000 {
		t.Fatalf("expected total 150000, got %d", order.TotalAmount)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersRejectsInvalidParams(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	cases := map[string]string{
		"bad page size":      "/orders?page_size=abc",
		"bad created_after":  "/orders?created_after=not-a-date",
		"bad status filter":  "/orders?status=unknown",
		"bad payment filter": "/orders?payment_status=mystery",
	}

	for name, target := range cases {
		req := asStaff(httptest.NewRequest(http.MethodGet, target, nil))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestOrderHandlersListOrdersRequiresIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "ord_1",
				OrderNumber:   "ORD-2026-000001",
				ClientID:      cmd.ClientID,
				TotalAmount:   cmd.TotalAmount,
				Currency:      "KES",
				Status:        domain.OrderStatusPending,
				PaymentStatus: domain.PaymentStatusPending,
				CreatedAt:     time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	router := newOrderRouter(service)
	body := []byte(`{"client_id":"usr_client","total_amount":150000,"currency":"kes","notes":"rush","due_date":"2026-05-01T00:00:00Z"}`)
	req := asClient(httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Actor == nil || captured.Actor.ID != "usr_client" {
		t.Fatalf("expected actor usr_client, got %#v", captured.Actor)
	}
	if captured.ClientID != "usr_client" || captured.TotalAmount != 150000 || captured.Currency != "kes" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.DueDate == nil || !captured.DueDate.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due date: %#v", captured.DueDate)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.ID != "ord_1" || resp.Order.Status != "pending" {
		t.Fatalf("unexpected order payload: %#v", resp.Order)
	}
}

func TestOrderHandlersCreateOrderRejectsBadBodies(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	cases := map[string]string{
		"invalid json": `{"client_id":`,
		"bad due date": `{"client_id":"usr_client","total_amount":1,"currency":"kes","due_date":"tomorrow"}`,
	}
	for name, body := range cases {
		req := asClient(httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader([]byte(body))))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rr.Code)
		}
	}

	req := asClient(httptest.NewRequest(http.MethodPost, "/orders", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{name: "forbidden", err: services.ErrForbidden, expected: http.StatusForbidden, code: "forbidden"},
		{name: "not found", err: services.ErrOrderNotFound, expected: http.StatusNotFound, code: "order_not_found"},
		{name: "internal", err: errors.New("boom"), expected: http.StatusInternalServerError, code: "order_error"},
	}

	for _, tc := range cases {
		service := &stubOrderService{
			getFn: func(ctx context.Context, actor *services.Principal, orderID string, opts services.OrderReadOptions) (services.Order, error) {
				return services.Order{}, tc.err
			},
		}
		router := newOrderRouter(service)
		req := asClient(httptest.NewRequest(http.MethodGet, "/orders/ord_404", nil))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, rr.Code)
		}
		var payload map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: failed to parse body: %v", tc.name, err)
		}
		if payload["error"] != tc.code {
			t.Fatalf("%s: expected code %s, got %v", tc.name, tc.code, payload["error"])
		}
	}
}

func TestOrderHandlersGetOrderIncludesPayments(t *testing.T) {
	service := &stubOrderService{
		getFn: func(ctx context.Context, actor *services.Principal, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			if !opts.IncludePayments {
				t.Fatalf("expected payments to be requested")
			}
			return services.Order{
				ID:       orderID,
				ClientID: "usr_client",
				Currency: "KES",
				Status:   domain.OrderStatusConfirmed,
				Payments: []services.Payment{
					{ID: "pay_1", OrderID: orderID, Amount: 400, Currency: "KES", Status: domain.PaymentEntryPaid},
				},
			}, nil
		},
	}
	router := newOrderRouter(service)
	req := asClient(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Order.Payments) != 1 || resp.Order.Payments[0].ID != "pay_1" {
		t.Fatalf("unexpected payments: %#v", resp.Order.Payments)
	}
}

func TestOrderHandlersTransition(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}
	router := newOrderRouter(service)

	body := []byte(`{"status":"confirmed","reason":"deposit received"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1:transition", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Reason != "deposit received" {
		t.Fatalf("unexpected reason: %q", captured.Reason)
	}
}

func TestOrderHandlersTransitionRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})

	body := []byte(`{"status":"shipped"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1:transition", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionConflict(t *testing.T) {
	service := &stubOrderService{
		transitionFn: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrInvalidTransition
		},
	}
	router := newOrderRouter(service)

	body := []byte(`{"status":"completed"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1:transition", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse body: %v", err)
	}
	if payload["error"] != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %v", payload["error"])
	}
}

func TestOrderHandlersSubmitPayment(t *testing.T) {
	var captured services.SubmitPaymentCommand
	service := &stubOrderService{
		paymentFn: func(ctx context.Context, cmd services.SubmitPaymentCommand) (services.Payment, error) {
			captured = cmd
			return services.Payment{
				ID:            "pay_1",
				OrderID:       cmd.OrderID,
				Amount:        cmd.Amount,
				Currency:      "KES",
				Method:        "mpesa",
				TransactionID: cmd.TransactionID,
				Status:        domain.PaymentEntryPaid,
				CreatedAt:     time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newOrderRouter(service)

	body := []byte(`{"amount":400,"currency":"kes","method":"M-Pesa","transaction_id":"MPESA123"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1/payments", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Amount != 400 || captured.TransactionID != "MPESA123" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	var resp paymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Payment.ID != "pay_1" || resp.Payment.Status != "paid" {
		t.Fatalf("unexpected payment payload: %#v", resp.Payment)
	}
}

func TestOrderHandlersSubmitPaymentErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected int
		code     string
	}{
		{name: "duplicate", err: services.ErrDuplicateTransaction, expected: http.StatusConflict, code: "duplicate_transaction"},
		{name: "overpay", err: services.ErrAmountExceedsBalance, expected: http.StatusUnprocessableEntity, code: "amount_exceeds_balance"},
		{name: "currency", err: services.ErrCurrencyMismatch, expected: http.StatusUnprocessableEntity, code: "currency_mismatch"},
		{name: "forbidden", err: services.ErrForbidden, expected: http.StatusForbidden, code: "forbidden"},
	}

	for _, tc := range cases {
		service := &stubOrderService{
			paymentFn: func(ctx context.Context, cmd services.SubmitPaymentCommand) (services.Payment, error) {
				return services.Payment{}, tc.err
			},
		}
		router := newOrderRouter(service)
		body := []byte(`{"amount":400,"currency":"kes","method":"cash","transaction_id":"TX1"}`)
		req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1/payments", bytes.NewReader(body)))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, rr.Code)
		}
		var payload map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s: failed to parse body: %v", tc.name, err)
		}
		if payload["error"] != tc.code {
			t.Fatalf("%s: expected code %s, got %v", tc.name, tc.code, payload["error"])
		}
	}
}

func TestOrderHandlersSubmitPaymentRateLimited(t *testing.T) {
	service := &stubOrderService{
		paymentFn: func(ctx context.Context, cmd services.SubmitPaymentCommand) (services.Payment, error) {
			return services.Payment{ID: "pay_1", OrderID: cmd.OrderID}, nil
		},
	}
	handler := NewOrderHandlers(nil, service)
	handler.limiter = newFixedWindowLimiter(1, time.Minute, nil)

	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)

	body := `{"amount":400,"currency":"kes","method":"cash","transaction_id":"TX1"}`
	first := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1/payments", bytes.NewReader([]byte(body))))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first request: expected 201, got %d", rr.Code)
	}

	second := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1/payments", bytes.NewReader([]byte(body))))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, second)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
}

func TestOrderHandlersRefund(t *testing.T) {
	var captured services.RefundCommand
	service := &stubOrderService{
		refundFn: func(ctx context.Context, cmd services.RefundCommand) (services.Payment, error) {
			captured = cmd
			return services.Payment{
				ID:      "pay_refund",
				OrderID: cmd.OrderID,
				Amount:  -cmd.Amount,
				Status:  domain.PaymentEntryRefunded,
			}, nil
		},
	}
	router := newOrderRouter(service)

	body := []byte(`{"amount":1000,"transaction_id":"RF1","notes":"client dispute"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/ord_1:refund", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Amount != 1000 || captured.TransactionID != "RF1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
	var resp paymentResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Payment.Amount != -1000 || resp.Payment.Status != "refunded" {
		t.Fatalf("unexpected refund payload: %#v", resp.Payment)
	}
}

func TestOrderHandlersDeleteOrder(t *testing.T) {
	var captured services.DeleteOrderCommand
	service := &stubOrderService{
		deleteFn: func(ctx context.Context, cmd services.DeleteOrderCommand) error {
			captured = cmd
			return nil
		},
	}
	router := newOrderRouter(service)

	req := asStaff(httptest.NewRequest(http.MethodDelete, "/orders/ord_1", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestOrderHandlersDeleteOrderConflict(t *testing.T) {
	service := &stubOrderService{
		deleteFn: func(ctx context.Context, cmd services.DeleteOrderCommand) error {
			return services.ErrOrderConflict
		},
	}
	router := newOrderRouter(service)

	req := asStaff(httptest.NewRequest(http.MethodDelete, "/orders/ord_1", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestOrderHandlersBulkUpdateStatus(t *testing.T) {
	var captured services.BulkStatusCommand
	service := &stubOrderService{
		bulkFn: func(ctx context.Context, cmd services.BulkStatusCommand) (services.BulkStatusResult, error) {
			captured = cmd
			return services.BulkStatusResult{
				Updated: []string{"ord_a", "ord_c"},
				Rejected: []services.BulkRejection{
					{OrderID: "ord_b", Reason: "invalid transition"},
				},
			}, nil
		},
	}
	router := newOrderRouter(service)

	body := []byte(`{"order_ids":["ord_a","ord_b","ord_c"],"status":"confirmed","note":"batch intake"}`)
	req := asStaff(httptest.NewRequest(http.MethodPost, "/orders/bulk-status", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.OrderIDs) != 3 || captured.TargetStatus != domain.OrderStatusConfirmed || captured.Note != "batch intake" {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp bulkStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Updated) != 2 || len(resp.Rejected) != 1 {
		t.Fatalf("unexpected result: %#v", resp)
	}
	if resp.Rejected[0].OrderID != "ord_b" || resp.Rejected[0].Reason != "invalid transition" {
		t.Fatalf("unexpected rejection: %#v", resp.Rejected[0])
	}
}

func TestOrderHandlersOrderStats(t *testing.T) {
	service := &stubOrderService{
		statsFn: func(ctx context.Context, actor *services.Principal) (services.OrderStats, error) {
			return services.OrderStats{
				TotalOrders: 3,
				CountsByStatus: map[services.OrderStatus]int{
					domain.OrderStatusPending:   1,
					domain.OrderStatusConfirmed: 2,
				},
				RevenueByCurrency: map[string]int64{"KES": 250000},
			}, nil
		},
	}
	router := newOrderRouter(service)

	req := asStaff(httptest.NewRequest(http.MethodGet, "/orders/stats", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp orderStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.TotalOrders != 3 || resp.CountsByStatus["confirmed"] != 2 || resp.RevenueByCurrency["KES"] != 250000 {
		t.Fatalf("unexpected stats payload: %#v", resp)
	}
}

func TestOrderHandlersTimeline(t *testing.T) {
	occurred := time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		timelineFn: func(ctx context.Context, actor *services.Principal, orderID string) ([]services.TimelineEntry, error) {
			return []services.TimelineEntry{
				{Kind: "order_created", OccurredAt: occurred, Label: "order created"},
				{Kind: "payment", OccurredAt: occurred.Add(time.Hour), Label: "payment recorded", Amount: 400, PaymentID: "pay_1"},
			}, nil
		},
	}
	router := newOrderRouter(service)

	req := asClient(httptest.NewRequest(http.MethodGet, "/orders/ord_1/timeline", nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp timelineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Kind != "order_created" || resp.Entries[1].PaymentID != "pay_1" {
		t.Fatalf("unexpected entries: %#v", resp.Entries)
	}
}
