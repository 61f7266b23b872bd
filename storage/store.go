package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store represents a key-value store whose values are byte streams.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores what it reads from r under key, reading incrementally. The
	// size is the declared length of the value, or -1 if unknown. If r
	// returns an error other than io.EOF, the write must be abandoned and
	// key must keep its previous value, if any.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get should return ErrNotFound if the key is not in the store. A nil
	// body and nil error mean the value is empty. Otherwise the caller must
	// close body; size is -1 if the length is not known.
	Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error)
}

var (
	// ErrNotFound indicates a key is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey indicates a key that cannot be stored verbatim as a file
	// name or object name.
	ErrInvalidKey = errors.New("invalid key")
)

// CheckKey returns ErrInvalidKey unless key is a single, non-hidden path
// segment.
func CheckKey(key string) error {
	if key == "" || key[0] == '.' || strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("%.40q: %w", key, ErrInvalidKey)
	}
	return nil
}
