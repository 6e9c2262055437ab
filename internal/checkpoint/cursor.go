package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/javainthinking/skillspick/internal/domain"
)

// EncodeCursor serializes a typed cursor payload for storage.
func EncodeCursor[T any](v T) (*string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cursor: %w", err)
	}
	s := string(data)
	return &s, nil
}

// DecodeCursor reads the typed cursor payload of cp. ok is false when cp is
// nil or carries no cursor.
func DecodeCursor[T any](cp *domain.Checkpoint) (v T, ok bool, err error) {
	if cp == nil || cp.Cursor == nil || *cp.Cursor == "" {
		return v, false, nil
	}
	if err = json.Unmarshal([]byte(*cp.Cursor), &v); err != nil {
		return v, false, fmt.Errorf("decode cursor %s/%s: %w", cp.SourceKind, cp.SourceName, err)
	}
	return v, true, nil
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
