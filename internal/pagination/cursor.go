// Package pagination provides keyset cursors for listing endpoints.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limits applied by ParseLimit.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalidCursor is returned by Decode for malformed cursors.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the (timestamp, id) key of the last row on a page.
type Cursor struct {
	At time.Time
	ID string
}

// Encode returns an opaque cursor string for the key (at, id).
func Encode(at time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", at.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Returns nil for empty input.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		At: time.Unix(0, nanos).UTC(),
		ID: id,
	}, nil
}

// ParseLimit reads a page size query value. Empty or non-positive values give
// DefaultLimit; values above MaxLimit are capped.
func ParseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ComputePage takes items fetched with limit+1, the requested limit and a key
// extractor. It returns the trimmed items, the next cursor and has_more.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	at, id := key(items[len(items)-1])
	return items, Encode(at, id), true
}
