// Package idempotency deduplicates mutating API requests keyed by a
// client-supplied Idempotency-Key header. The first request for a key runs
// normally and its response is recorded; retries with the same key and an
// identical request replay the stored response instead of re-executing the
// handler.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a recorded response remains replayable.
const DefaultTTL = 24 * time.Hour

// ErrKeyReused reports an idempotency key presented with a request that does
// not match the one originally recorded under it.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// State tracks the progress of the request recorded under a key.
type State string

const (
	// StateInFlight marks a key whose first request is still executing.
	StateInFlight State = "in_flight"
	// StateRecorded marks a key whose response has been captured for replay.
	StateRecorded State = "recorded"
)

// Outcome classifies what a Begin call found for the key.
type Outcome int

const (
	// OutcomeProceed means the key is fresh and the handler should run.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a recorded response exists and should be returned.
	OutcomeReplay
	// OutcomeInFlight means a concurrent request holds the key.
	OutcomeInFlight
)

// Record is the persisted snapshot for one idempotency key.
type Record struct {
	Key             string
	Fingerprint     string
	State           State
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is the captured handler output stored for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Begin reports the record found for the key along with how to proceed.
type Begin struct {
	Outcome Outcome
	Record  Record
}

// Store persists idempotency records. Implementations must treat Reserve as
// an atomic check-and-claim so concurrent retries cannot both proceed.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Begin, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func recordExpired(rec Record, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt)
}

func docKey(key string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Hop-by-hop and volatile headers are not meaningful on replay.
var skipHeaders = map[string]struct{}{
	"Content-Length":      {},
	"Date":                {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func storableHeaders(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}
	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if _, skip := skipHeaders[canonical]; skip {
			continue
		}
		kept[canonical] = append([]string(nil), values...)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func headerFromStored(values map[string][]string) http.Header {
	header := make(http.Header, len(values))
	for name, vals := range values {
		header[name] = append([]string(nil), vals...)
	}
	return header
}
