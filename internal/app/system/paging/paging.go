// internal/app/system/paging/paging.go
package paging

import (
	"errors"
	"strconv"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultLimit is the page size when the caller does not ask for one.
const DefaultLimit = 100

// MaxLimit caps the page size a caller may ask for.
const MaxLimit = 500

// ErrBadLimit is returned by ParseLimit for anything but a positive integer.
var ErrBadLimit = errors.New("limit must be a positive integer")

// ParseLimit reads a "limit" query value. Blank means DefaultLimit; larger
// values are clamped to MaxLimit.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrBadLimit
	}
	return min(n, MaxLimit), nil
}

// LimitPlusOne returns limit+1 as int64 for look-ahead pagination
// (fetch one extra document to detect a next page).
func LimitPlusOne(limit int) int64 { return int64(limit + 1) }

// Trim cuts a look-ahead fetch back to limit rows and reports whether a
// next page exists. A limit of zero or less leaves rows untouched.
func Trim[T any](rows *[]T, limit int) bool {
	if limit <= 0 || len(*rows) <= limit {
		return false
	}
	*rows = (*rows)[:limit]
	return true
}

// Cursor is a keyset position in a list sorted by (time desc, _id desc).
// The next page holds rows strictly older than the cursor.
type Cursor struct {
	At time.Time
	ID primitive.ObjectID
}

// cursorTime is fixed-width so encoded keys compare in time order.
const cursorTime = "2006-01-02T15:04:05.000000000Z"

// Encode returns the opaque string form of c.
func (c Cursor) Encode() string {
	return wafflemongo.EncodeCursor(c.At.UTC().Format(cursorTime), c.ID)
}

// Decode parses a string produced by Cursor.Encode.
func Decode(s string) (Cursor, bool) {
	c, ok := wafflemongo.DecodeCursor(strings.TrimSpace(s))
	if !ok {
		return Cursor{}, false
	}
	at, err := time.Parse(cursorTime, c.CI)
	if err != nil || c.ID.IsZero() {
		return Cursor{}, false
	}
	return Cursor{At: at, ID: c.ID}, true
}

// After reports whether a row at (at, id) sorts after c in newest-first
// order, that is, belongs on a later page.
func (c Cursor) After(at time.Time, id primitive.ObjectID) bool {
	if !at.Equal(c.At) {
		return at.Before(c.At)
	}
	return id.Hex() < c.ID.Hex()
}
