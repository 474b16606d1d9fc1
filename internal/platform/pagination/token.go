// Package pagination implements the opaque cursor tokens used by list
// endpoints. Tokens wrap Firestore query cursors so clients never see the
// underlying document ordering values.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPageToken indicates a page token that could not be decoded.
var ErrInvalidPageToken = errors.New("pagination: invalid pageToken")

// Cursor carries the Firestore cursor values for resuming a query.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// IsZero reports whether the cursor holds no resume position.
func (c Cursor) IsZero() bool {
	return len(c.StartAfter) == 0 && len(c.StartAt) == 0
}

// EncodeToken serialises the cursor into a base64 URL-safe page token. A zero
// cursor encodes to the empty string, meaning no further pages.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.IsZero() {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a page token produced by EncodeToken. Empty input yields
// a zero cursor rather than an error so callers can pass the raw query value.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
