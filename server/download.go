package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/nicolagi/meow/storage"
)

type outcome int

const (
	notFound outcome = iota
	empty
	found
	failed
)

func (o outcome) status() int {
	switch o {
	case notFound:
		return http.StatusNotFound
	case empty:
		return http.StatusNoContent
	case found:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// A download is the result of looking up a key: the decision between the
// outcomes is made from what the store reports, never from the data.
type download struct {
	outcome outcome
	body    io.ReadCloser
	size    int64
	err     error
}

func fetch(ctx context.Context, store storage.Store, key string) download {
	body, size, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
		return download{outcome: notFound, err: err}
	case err != nil:
		return download{outcome: failed, err: err}
	case body == nil:
		return download{outcome: empty}
	}
	return download{outcome: found, body: body, size: size}
}

// respond writes the download to w, returning the number of body bytes
// written. The error is only about the transfer; the status has been sent
// by then.
func (d download) respond(w http.ResponseWriter) (int64, error) {
	if d.outcome != found {
		w.WriteHeader(d.outcome.status())
		return 0, nil
	}
	defer func() {
		_ = d.body.Close()
	}()
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("X-Content-Type-Options", "nosniff")
	if d.size >= 0 {
		// Exact length rather than chunked framing.
		h.Set("Content-Length", strconv.FormatInt(d.size, 10))
	}
	w.WriteHeader(http.StatusOK)
	return io.Copy(w, d.body)
}
