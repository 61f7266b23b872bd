package storage

import (
	"context"
	"errors"
	"io"

	log "github.com/sirupsen/logrus"
)

var errIncomplete = errors.New("closed before end of value")

// Paired implements Store wrapping a pair of stores, one fast, one slow. The
// slow store is authoritative: a put succeeds only if the slow store accepts
// the value, and the fast store receives a copy of the same stream on the
// side. Gets are served from the fast store if possible, otherwise from the
// slow store, in which case the value is propagated to the fast store as the
// caller reads it, for next time.
//
// Failures of the fast store are logged and otherwise ignored.
type Paired struct {
	fast Store
	slow Store
}

var _ Store = Paired{}

func NewPaired(fast, slow Store) Paired {
	return Paired{
		fast: fast,
		slow: slow,
	}
}

func (s Paired) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	pr, pw := io.Pipe()
	done := s.propagate(ctx, key, pr, size, "Could not propagate to fast")
	tee := &sideWriter{w: pw}
	err := s.slow.Put(ctx, key, io.TeeReader(r, tee), size)
	if err != nil {
		_ = pw.CloseWithError(err)
	} else {
		_ = pw.Close()
	}
	<-done
	return err
}

func (s Paired) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	body, size, err := s.fast.Get(ctx, key)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return body, size, err
	}
	body, size, err = s.slow.Get(ctx, key)
	if err != nil || body == nil {
		return body, size, err
	}
	pr, pw := io.Pipe()
	// A fresh context: the copy must not outlive the caller's reads, and it
	// is aborted through the pipe when the caller closes early.
	done := s.propagate(context.Background(), key, pr, size, "Could not propagate from slow to fast")
	return &teeBody{
		body: body,
		tee:  &sideWriter{w: pw},
		pw:   pw,
		done: done,
	}, size, nil
}

// propagate copies the stream read from pr into the fast store, in the
// background. The returned channel is closed once the copy is over.
func (s Paired) propagate(ctx context.Context, key string, pr *io.PipeReader, size int64, failure string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger := log.WithField("key", key)
		if err := s.fast.Put(ctx, key, pr, size); err != nil {
			logger.WithField("err", err).Debug(failure)
		} else {
			logger.Debug("Propagated")
		}
		// Unblock the writer side if the fast store gave up early.
		_ = pr.Close()
	}()
	return done
}

// sideWriter forwards writes to w until the first failure, after which it
// drops them. It never fails, so the main stream is not affected by the
// fate of the copy.
type sideWriter struct {
	w      io.Writer
	failed bool
}

func (s *sideWriter) Write(p []byte) (int, error) {
	if !s.failed {
		if _, err := s.w.Write(p); err != nil {
			s.failed = true
		}
	}
	return len(p), nil
}

type teeBody struct {
	body io.ReadCloser
	tee  *sideWriter
	pw   *io.PipeWriter
	done <-chan struct{}
	eof  bool
}

func (b *teeBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 {
		_, _ = b.tee.Write(p[:n])
	}
	if err == io.EOF {
		b.eof = true
	}
	return n, err
}

// Close ends the copy to the fast store, which keeps the value only if the
// whole of it was read.
func (b *teeBody) Close() error {
	if b.eof {
		_ = b.pw.Close()
	} else {
		_ = b.pw.CloseWithError(errIncomplete)
	}
	err := b.body.Close()
	<-b.done
	return err
}
