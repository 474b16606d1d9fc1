package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)

func postOrders(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, postOrders(`{"n":1}`, ""))
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler invoked twice without a key, got %d", calls)
	}
}

func TestMiddlewareIgnoresSafeMethods(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Idempotency-Key", "get-key")
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected GET requests to bypass the guard, got %d calls", calls)
	}
}

func TestMiddlewareReplaysRecordedResponse(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	var calls int
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, postOrders(`{"amount":500}`, "abc-123"))
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if rr1.Code != http.StatusCreated {
		t.Fatalf("unexpected first response status %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, postOrders(`{"amount":500}`, "abc-123"))
	if calls != 1 {
		t.Fatalf("expected replay without a second handler call, got %d", calls)
	}
	if rr2.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", rr2.Code)
	}
	if rr2.Header().Get(replayHeader) != "true" {
		t.Fatal("expected replay marker header")
	}
	if got := rr2.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected replayed content-type, got %q", got)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("replayed body %q differs from original %q", rr2.Body.String(), rr1.Body.String())
	}
}

func TestMiddlewareRejectsKeyReuse(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, postOrders(`{"amount":500}`, "same-key"))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, postOrders(`{"amount":900}`, "same-key"))
	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", rr2.Code)
	}
	assertErrorCode(t, rr2.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewareReportsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))
	handler := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is held")
	}))

	req := postOrders(`{"amount":500}`, "held-key")
	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("bufferBody: %v", err)
	}
	requester := requesterID(req.Context())
	fingerprint := fingerprintRequest(req, body, requester)
	if _, err := store.Reserve(req.Context(), "held-key|"+requester, fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for in-flight key, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareAbandonsKeyWhenPersistFails(t *testing.T) {
	store := &flakyStore{failComplete: true}
	mw := Middleware(store, WithClock(func() time.Time { return fixedTime }))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postOrders(`{"amount":500}`, "fail-key"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when persistence fails, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_unavailable")
	if !store.abandoned {
		t.Fatal("expected the reservation to be abandoned")
	}
}

type flakyStore struct {
	failComplete bool
	abandoned    bool
}

func (s *flakyStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Begin, error) {
	return Begin{Outcome: OutcomeProceed}, nil
}

func (s *flakyStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failComplete {
		return errors.New("complete failed")
	}
	return nil
}

func (s *flakyStore) Abandon(context.Context, string, string) error {
	s.abandoned = true
	return nil
}

func (s *flakyStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
