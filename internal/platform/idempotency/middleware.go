package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/craftfolio/api/internal/platform/auth"
	"github.com/craftfolio/api/internal/platform/httpx"
)

const (
	defaultKeyHeader = "Idempotency-Key"
	replayHeader     = "X-Idempotency-Replay"

	anonymousRequester = "anonymous"
)

// Logger is the printf-style sink used for persistence failures.
type Logger interface {
	Printf(format string, args ...any)
}

type clockFunc func() time.Time

type guard struct {
	store     Store
	keyHeader string
	ttl       time.Duration
	methods   map[string]struct{}
	clock     clockFunc
	logger    Logger
}

// MiddlewareOption customises the middleware.
type MiddlewareOption func(*guard)

// WithHeader overrides the request header carrying the idempotency key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.keyHeader = name
		}
	}
}

// WithTTL sets how long recorded responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods restricts which HTTP methods the guard applies to.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		if len(methods) == 0 {
			return
		}
		g.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				g.methods[m] = struct{}{}
			}
		}
	}
}

// WithLogger attaches a logger for store failures.
func WithLogger(logger Logger) MiddlewareOption {
	return func(g *guard) {
		g.logger = logger
	}
}

// WithClock overrides the time source for tests.
func WithClock(clock clockFunc) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func mutatingMethods() map[string]struct{} {
	return map[string]struct{}{
		http.MethodPost:   {},
		http.MethodPut:    {},
		http.MethodPatch:  {},
		http.MethodDelete: {},
	}
}

// Middleware wraps mutating requests with idempotency-key handling. Requests
// that carry no key pass through untouched; supplying the key is how clients
// opt in to replay protection.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	g := &guard{
		store:     store,
		keyHeader: defaultKeyHeader,
		ttl:       DefaultTTL,
		methods:   mutatingMethods(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.ttl <= 0 {
		g.ttl = DefaultTTL
	}
	if len(g.methods) == 0 {
		g.methods = mutatingMethods()
	}
	if g.clock == nil {
		g.clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := g.methods[r.Method]; !guarded {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(g.keyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			g.handle(w, r, next, key)
		})
	}
}

func (g *guard) handle(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	ctx := r.Context()

	body, err := bufferBody(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return
	}

	requester := requesterID(ctx)
	scoped := key + "|" + requester
	fingerprint := fingerprintRequest(r, body, requester)
	now := g.clock().UTC()

	begin, err := g.store.Reserve(ctx, scoped, fingerprint, now, g.ttl)
	if err != nil {
		g.storeError(ctx, w, err)
		return
	}

	switch begin.Outcome {
	case OutcomeReplay:
		replayResponse(w, begin.Record)
		return
	case OutcomeInFlight:
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still processing", http.StatusConflict))
		return
	}

	buffered := newBufferedResponse(w)
	next.ServeHTTP(buffered, r)

	captured := Response{
		Status:  buffered.StatusCode(),
		Headers: buffered.HeaderSnapshot(),
		Body:    buffered.BodyBytes(),
	}
	if err := g.store.Complete(ctx, scoped, fingerprint, captured, g.clock().UTC(), g.ttl); err != nil {
		g.logf("idempotency: persist response for key %s failed: %v", key, err)
		if abandonErr := g.store.Abandon(ctx, scoped, fingerprint); abandonErr != nil {
			g.logf("idempotency: abandon key %s failed: %v", key, abandonErr)
		}
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to persist idempotency state", http.StatusInternalServerError))
		return
	}

	if err := buffered.Flush(); err != nil {
		g.logf("idempotency: flush response for key %s failed: %v", key, err)
	}
}

func (g *guard) storeError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, ErrKeyReused) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key was already used for a different request", http.StatusConflict))
		return
	}
	g.logf("idempotency: store error: %v", err)
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusInternalServerError))
}

func (g *guard) logf(format string, args ...any) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if err := r.Body.Close(); err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.ID != "" {
		return identity.ID
	}
	return anonymousRequester
}

// The fingerprint binds the key to the exact request so a reused key with a
// different method, path, body, or caller is rejected instead of replayed.
func fingerprintRequest(r *http.Request, body []byte, requester string) string {
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Host,
		r.Header.Get("Content-Type"),
		requester,
	}
	if len(body) > 0 {
		parts = append(parts, hashHex(body))
	}
	return hashHex([]byte(strings.Join(parts, "\x1f")))
}

func replayResponse(w http.ResponseWriter, record Record) {
	dst := w.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range headerFromStored(record.ResponseHeaders) {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	dst.Set(replayHeader, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// bufferedResponse defers writing to the client until the idempotency record
// is safely persisted.
type bufferedResponse struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse(parent http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{parent: parent, header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if status > 0 && b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(data []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(data)
}

func (b *bufferedResponse) StatusCode() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedResponse) BodyBytes() []byte {
	if b.body.Len() == 0 {
		return nil
	}
	return b.body.Bytes()
}

func (b *bufferedResponse) HeaderSnapshot() http.Header {
	snapshot := make(http.Header, len(b.header))
	for name, values := range b.header {
		snapshot[name] = append([]string(nil), values...)
	}
	return snapshot
}

func (b *bufferedResponse) Flush() error {
	dst := b.parent.Header()
	for name := range dst {
		dst.Del(name)
	}
	for name, values := range b.header {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
	b.parent.WriteHeader(b.StatusCode())
	if b.body.Len() == 0 {
		return nil
	}
	_, err := b.parent.Write(b.body.Bytes())
	return err
}
