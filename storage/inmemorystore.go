package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// InMemoryStore is a Store implementation powered by a map, to be used for
// testing. Unlike the other implementations it holds whole values in memory.
type InMemoryStore struct {
	sync.Mutex
	m map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		m: make(map[string][]byte),
	}
}

func (s *InMemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	// Grown as data arrives; the declared size is not to be trusted.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return fmt.Errorf("%.40q: %w", key, err)
	}
	s.Lock()
	s.m[key] = buf.Bytes()
	s.Unlock()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error) {
	if err := CheckKey(key); err != nil {
		return nil, 0, err
	}
	s.Lock()
	value, ok := s.m[key]
	s.Unlock()
	if !ok {
		return nil, 0, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	if len(value) == 0 {
		return nil, 0, nil
	}
	return io.NopCloser(bytes.NewReader(value)), int64(len(value)), nil
}
