// Package pagination implements keyset pages ordered newest first on
// (created_at, id).
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is the page request as received from a caller.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting to DefaultLimit.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Keyset scopes a query to the page after cursor. It fetches one extra row
// so Trim can tell whether another page exists.
func Keyset(cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if cursor != nil {
			q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return q.Order("created_at DESC, id DESC").Limit(NormalizeLimit(limit) + 1)
	}
}

// Trim cuts a Keyset result down to limit rows and returns the cursor for
// the next page, or nil on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	n := NormalizeLimit(limit)
	if len(rows) <= n {
		return rows, nil
	}
	next := key(rows[n-1])
	return rows[:n], &next
}

// Encode renders c as an opaque URL-safe token.
func (c Cursor) Encode() string {
	payload := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// EncodeCursor is Encode for optional cursors; nil yields "".
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	return c.Encode()
}

// ParseCursor decodes a token produced by Encode. An empty token is the
// first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: createdAt, ID: parsedID}, nil
}
