package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nicolagi/meow/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A store double that fails every write, after consuming some of the stream.
type refusingStore struct {
	storage.Store
	after int64
}

func (s refusingStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, _ = io.CopyN(io.Discard, r, s.after)
	return errors.New("disk full")
}

func get(t *testing.T, store storage.Store, key string) (string, error) {
	t.Helper()
	body, _, err := store.Get(context.Background(), key)
	if err != nil {
		return "", err
	}
	return string(readAll(t, body)), nil
}

func TestPaired(t *testing.T) {
	ctx := context.Background()

	t.Run("puts reach both stores", func(t *testing.T) {
		fast, slow := storage.NewInMemoryStore(), storage.NewInMemoryStore()
		paired := storage.NewPaired(fast, slow)
		require.Nil(t, paired.Put(ctx, "able", strings.NewReader("hello"), 5))
		v, err := get(t, fast, "able")
		require.Nil(t, err)
		assert.Equal(t, "hello", v)
		v, err = get(t, slow, "able")
		require.Nil(t, err)
		assert.Equal(t, "hello", v)
	})
	t.Run("slow store failures fail the put", func(t *testing.T) {
		fast := storage.NewInMemoryStore()
		paired := storage.NewPaired(fast, refusingStore{after: 3})
		err := paired.Put(ctx, "able", strings.NewReader("hello"), 5)
		assert.NotNil(t, err)
		_, err = get(t, fast, "able")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("fast store failures are ignored", func(t *testing.T) {
		slow := storage.NewInMemoryStore()
		paired := storage.NewPaired(refusingStore{after: 1}, slow)
		value := randomBytes(1 << 20)
		require.Nil(t, paired.Put(ctx, "able", bytes.NewReader(value), -1))
		body, _, err := slow.Get(ctx, "able")
		require.Nil(t, err)
		assert.Equal(t, value, readAll(t, body))
	})
	t.Run("gets propagate from slow to fast", func(t *testing.T) {
		fast, slow := storage.NewInMemoryStore(), storage.NewInMemoryStore()
		require.Nil(t, slow.Put(ctx, "able", strings.NewReader("hello"), 5))
		paired := storage.NewPaired(fast, slow)
		_, err := get(t, fast, "able")
		require.True(t, errors.Is(err, storage.ErrNotFound))
		v, err := get(t, paired, "able")
		require.Nil(t, err)
		assert.Equal(t, "hello", v)
		v, err = get(t, fast, "able")
		require.Nil(t, err)
		assert.Equal(t, "hello", v)
	})
	t.Run("partial reads are not propagated", func(t *testing.T) {
		fast, slow := storage.NewInMemoryStore(), storage.NewInMemoryStore()
		require.Nil(t, slow.Put(ctx, "able", strings.NewReader("hello"), 5))
		paired := storage.NewPaired(fast, slow)
		body, size, err := paired.Get(ctx, "able")
		require.Nil(t, err)
		assert.EqualValues(t, 5, size)
		buf := make([]byte, 2)
		_, err = io.ReadFull(body, buf)
		require.Nil(t, err)
		require.Nil(t, body.Close())
		_, err = get(t, fast, "able")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("missing from both", func(t *testing.T) {
		paired := storage.NewPaired(storage.NewInMemoryStore(), storage.NewInMemoryStore())
		_, err := get(t, paired, "able")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
}
