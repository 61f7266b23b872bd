package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nicolagi/meow/storage"
)

var (
	// ErrShortBody indicates the request body ended before its declared
	// length.
	ErrShortBody = errors.New("body shorter than declared")

	// ErrLongBody indicates the request body went past its declared length.
	ErrLongBody = errors.New("body longer than declared")

	errStoppedEarly = errors.New("store returned before the end of the body")
)

// UploadError is returned when a paste could not be stored, either because
// reading the request body failed or because the store failed.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// relay streams body into store under key. It returns only after it is
// done reading body.
func relay(ctx context.Context, store storage.Store, key string, body io.Reader, size int64, chunkSize, depth int) error {
	p := newPipe(ctx, body, size, chunkSize, depth)
	go p.produce()
	err := store.Put(ctx, key, p, size)
	p.stop()
	if err != nil {
		return &UploadError{Key: key, Err: err}
	}
	// A store that returns success despite a failed read would have
	// stored a truncated value.
	if p.failed != nil {
		return &UploadError{Key: key, Err: p.failed}
	}
	// Same for a store that stopped reading before the end of the body.
	switch {
	case p.end == nil:
		return &UploadError{Key: key, Err: errStoppedEarly}
	case p.end != io.EOF:
		return &UploadError{Key: key, Err: p.end}
	}
	return nil
}

type chunk struct {
	data []byte
	err  error
}

// A pipe hands chunks read from src by the producer goroutine over to the
// store, which consumes them through Read. The producer ends the stream with
// a chunk carrying io.EOF or the read error.
type pipe struct {
	ctx       context.Context
	src       io.Reader
	size      int64
	chunkSize int

	chunks chan chunk
	done   chan struct{}
	exited chan struct{}

	// How the body ended, io.EOF if cleanly. Set by the producer, read only
	// after it exited; nil if it was stopped before the end.
	end error

	// Only accessed by the consumer.
	pending []byte
	err     error
	failed  error
}

func newPipe(ctx context.Context, src io.Reader, size int64, chunkSize, depth int) *pipe {
	return &pipe{
		ctx:       ctx,
		src:       src,
		size:      size,
		chunkSize: chunkSize,
		chunks:    make(chan chunk, depth),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

func (p *pipe) produce() {
	defer close(p.exited)
	var total int64
	for {
		buf := make([]byte, p.chunkSize)
		n, err := p.src.Read(buf)
		total += int64(n)
		if p.size >= 0 && total > p.size {
			p.finish(fmt.Errorf("%w: more than %d bytes", ErrLongBody, p.size))
			return
		}
		if n > 0 && !p.send(chunk{data: buf[:n]}) {
			return
		}
		if err == io.EOF {
			if p.size >= 0 && total < p.size {
				err = fmt.Errorf("%w: %d of %d bytes", ErrShortBody, total, p.size)
			}
			p.finish(err)
			return
		}
		if err != nil {
			p.finish(fmt.Errorf("reading body: %w", err))
			return
		}
	}
}

// finish records how the body ended and passes that on to the consumer.
func (p *pipe) finish(err error) {
	p.end = err
	p.send(chunk{err: err})
}

func (p *pipe) send(c chunk) bool {
	select {
	case p.chunks <- c:
		return true
	case <-p.done:
		return false
	}
}

func (p *pipe) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		select {
		case c := <-p.chunks:
			p.pending, p.err = c.data, c.err
		case <-p.ctx.Done():
			p.err = p.ctx.Err()
		}
		if p.err != nil && p.err != io.EOF {
			p.failed = p.err
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Stops the producer and waits for it to exit. If the producer is blocked
// reading src, that takes until src yields more data or fails.
func (p *pipe) stop() {
	close(p.done)
	<-p.exited
}
