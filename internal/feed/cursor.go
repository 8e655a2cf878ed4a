package feed

import (
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"
)

// cursor addresses a page by index. Pages are rebuilt from the start of
// the ranking on every request, so the cursor also pins the page size the
// index refers to.
type cursor struct {
	Page     int `json:"p"`
	PageSize int `json:"n"`
}

func encodeCursor(c cursor) string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeCursor parses an opaque cursor. The empty string is the first page.
func decodeCursor(s string, pageSize int) (cursor, error) {
	if s == "" {
		return cursor{PageSize: pageSize}, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	if c.Page < 0 {
		return cursor{}, fmt.Errorf("%w: malformed cursor", ErrInvalidInput)
	}
	if c.PageSize != pageSize {
		return cursor{}, fmt.Errorf("%w: cursor was issued for page size %d", ErrInvalidInput, c.PageSize)
	}
	return c, nil
}
