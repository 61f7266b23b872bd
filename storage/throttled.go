package storage

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Throttled wraps a Store, limiting the rate of calls to it. Callers wait for
// their turn rather than being rejected, so a backend with a request quota
// doesn't have to push back.
type Throttled struct {
	delegate Store
	limiter  *rate.Limiter
}

func NewThrottled(delegate Store, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		delegate: delegate,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *Throttled) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.delegate.Put(ctx, key, r, size)
}

func (s *Throttled) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	return s.delegate.Get(ctx, key)
}
