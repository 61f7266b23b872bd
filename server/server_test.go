package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/nicolagi/meow/server"
	"github.com/nicolagi/meow/storage"
	"github.com/nicolagi/meow/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.Nil(t, err)
	return u
}

func newDisposableServer(t *testing.T, opts ...server.Option) *httptest.Server {
	t.Helper()
	opts = append([]server.Option{
		server.WithBaseURL(mustParse(t, "https://example.test")),
		server.WithStore(storage.NewInMemoryStore()),
	}, opts...)
	srv, err := server.New(opts...)
	require.Nil(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, body io.Reader) (int, string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/", "application/octet-stream", body)
	require.Nil(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	require.Nil(t, err)
	return resp.StatusCode, string(b)
}

func get(t *testing.T, ts *httptest.Server, p string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + p)
	require.Nil(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	require.Nil(t, err)
	return resp, string(b)
}

// A store whose writes always fail.
type failingStore struct {
	storage.Store
}

func (failingStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	return errors.New("bucket is gone")
}

func TestServer(t *testing.T) {
	t.Run("paste with two-word keys on disk, then retrieve it", func(t *testing.T) {
		dir := t.TempDir()
		ts := newDisposableServer(t,
			server.WithKeyLength(2),
			server.WithStore(storage.NewDiskStore(dir)),
		)
		status, body := post(t, ts, strings.NewReader("hello"))
		require.Equal(t, http.StatusOK, status)
		assert.Regexp(t, regexp.MustCompile(`^https://example\.test/\w+-\w+\n$`), body)

		id := path.Base(strings.TrimSpace(body))
		stored, err := os.ReadFile(filepath.Join(dir, id))
		require.Nil(t, err)
		assert.Equal(t, "hello", string(stored))

		resp, got := get(t, ts, "/"+id)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, 5, resp.ContentLength)
		assert.Equal(t, "hello", got)
	})
	t.Run("unknown identifier", func(t *testing.T) {
		ts := newDisposableServer(t)
		resp, _ := get(t, ts, "/does-not-exist")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	t.Run("nested path", func(t *testing.T) {
		ts := newDisposableServer(t, server.WithStore(storage.NewDiskStore(t.TempDir())))
		resp, _ := get(t, ts, "/a/b")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	t.Run("usage banner", func(t *testing.T) {
		ts := newDisposableServer(t)
		resp, body := get(t, ts, "/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "meow - paste bin\nusage: curl --data-binary @<file> https://example.test\n", body)
	})
	t.Run("empty paste has no content", func(t *testing.T) {
		ts := newDisposableServer(t)
		status, body := post(t, ts, strings.NewReader(""))
		require.Equal(t, http.StatusOK, status)
		resp, got := get(t, ts, mustParse(t, strings.TrimSpace(body)).Path)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "", got)
	})
	t.Run("chunked upload is returned with its exact length", func(t *testing.T) {
		ts := newDisposableServer(t, server.WithChunkSize(3))
		value := strings.Repeat("meow ", 1000)
		// Not a known-length reader, so the client uses chunked encoding.
		status, body := post(t, ts, io.MultiReader(strings.NewReader(value)))
		require.Equal(t, http.StatusOK, status)
		resp, got := get(t, ts, mustParse(t, strings.TrimSpace(body)).Path)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, len(value), resp.ContentLength)
		assert.Equal(t, value, got)
	})
	t.Run("store failure", func(t *testing.T) {
		ts := newDisposableServer(t, server.WithStore(failingStore{}))
		status, body := post(t, ts, strings.NewReader("hello"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "", body)
	})
	t.Run("identifiers are fresh", func(t *testing.T) {
		ts := newDisposableServer(t)
		_, first := post(t, ts, strings.NewReader("one"))
		_, second := post(t, ts, strings.NewReader("two"))
		assert.NotEqual(t, first, second)
	})
	t.Run("other methods", func(t *testing.T) {
		ts := newDisposableServer(t)
		for _, p := range []string{"/", "/able-baker-charlie"} {
			req, err := http.NewRequest(http.MethodDelete, ts.URL+p, nil)
			require.Nil(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.Nil(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("Allow"))
		}
	})
}

func TestNew(t *testing.T) {
	base := mustParse(t, "https://example.test/")
	store := storage.NewInMemoryStore()
	t.Run("key length beyond the word list", func(t *testing.T) {
		list, err := words.New([]string{"ant", "bee"})
		require.Nil(t, err)
		_, err = server.New(server.WithBaseURL(base), server.WithStore(store), server.WithWordList(list), server.WithKeyLength(3))
		assert.True(t, errors.Is(err, words.ErrLength))
	})
	t.Run("relative base url", func(t *testing.T) {
		_, err := server.New(server.WithBaseURL(mustParse(t, "/pastes/")), server.WithStore(store))
		assert.NotNil(t, err)
	})
	t.Run("no store", func(t *testing.T) {
		_, err := server.New(server.WithBaseURL(base))
		assert.NotNil(t, err)
	})
	t.Run("defaults", func(t *testing.T) {
		srv, err := server.New(server.WithBaseURL(base), server.WithStore(store))
		require.Nil(t, err)
		ts := httptest.NewServer(srv)
		defer ts.Close()
		status, body := post(t, ts, strings.NewReader("x"))
		require.Equal(t, http.StatusOK, status)
		id := path.Base(strings.TrimSpace(body))
		assert.Len(t, strings.Split(id, words.Separator), server.DefaultKeyLength)
	})
}

func TestServeWithoutListen(t *testing.T) {
	srv, err := server.New(
		server.WithBaseURL(mustParse(t, "https://example.test/")),
		server.WithStore(storage.NewInMemoryStore()),
	)
	require.Nil(t, err)
	assert.NotNil(t, srv.Serve())
}

func TestServerLifecycle(t *testing.T) {
	srv, err := server.New(
		server.WithAddress("localhost:0"),
		server.WithBaseURL(mustParse(t, "https://example.test/p/")),
		server.WithStore(storage.NewInMemoryStore()),
	)
	require.Nil(t, err)
	addr, err := srv.Listen()
	require.Nil(t, err)
	served := make(chan error)
	go func() {
		served <- srv.Serve()
	}()

	resp, err := http.Post("http://"+addr+"/", "text/plain", strings.NewReader("hi"))
	require.Nil(t, err)
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Nil(t, err)
	assert.Regexp(t, `^https://example\.test/p/\w+-\w+-\w+\n$`, string(b))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Nil(t, srv.Shutdown(ctx))
	assert.Nil(t, <-served)
}
