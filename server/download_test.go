package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nicolagi/meow/storage"
	"github.com/stretchr/testify/assert"
)

// A store double answering every Get the same way.
type stubStore struct {
	body io.ReadCloser
	size int64
	err  error
}

func (s stubStore) Put(context.Context, string, io.Reader, int64) error {
	return s.err
}

func (s stubStore) Get(context.Context, string) (io.ReadCloser, int64, error) {
	return s.body, s.size, s.err
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestFetch(t *testing.T) {
	testCases := []struct {
		name       string
		store      stubStore
		outcome    outcome
		wantStatus int
		wantLength string
		wantBody   string
	}{
		{
			name:       "missing key",
			store:      stubStore{err: fmt.Errorf("able: %w", storage.ErrNotFound)},
			outcome:    notFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed key",
			store:      stubStore{err: fmt.Errorf("a/b: %w", storage.ErrInvalidKey)},
			outcome:    notFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "no body",
			store:      stubStore{},
			outcome:    empty,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "known length",
			store:      stubStore{body: io.NopCloser(strings.NewReader("hello")), size: 5},
			outcome:    found,
			wantStatus: http.StatusOK,
			wantLength: "5",
			wantBody:   "hello",
		},
		{
			name:       "unknown length",
			store:      stubStore{body: io.NopCloser(strings.NewReader("hello")), size: -1},
			outcome:    found,
			wantStatus: http.StatusOK,
			wantBody:   "hello",
		},
		{
			name:       "store failure",
			store:      stubStore{err: errors.New("access denied")},
			outcome:    failed,
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := fetch(context.Background(), tc.store, "able")
			assert.Equal(t, tc.outcome, d.outcome)
			rec := httptest.NewRecorder()
			n, err := d.respond(rec)
			assert.Nil(t, err)
			assert.EqualValues(t, len(tc.wantBody), n)
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantLength, rec.Header().Get("Content-Length"))
			assert.Equal(t, tc.wantBody, rec.Body.String())
		})
	}
}

type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func (w *brokenWriter) WriteHeader(int) {}

func TestRespondClosesBodyWhenClientGoesAway(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(strings.Repeat("x", 1<<20))}
	d := fetch(context.Background(), stubStore{body: body, size: 1 << 20}, "able")
	n, err := d.respond(&brokenWriter{header: make(http.Header)})
	assert.NotNil(t, err)
	assert.EqualValues(t, 0, n)
	assert.True(t, body.closed)
}
