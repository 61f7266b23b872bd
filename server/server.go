// Package server implements the paste HTTP gateway. A POST to "/" stores
// the request body under a freshly generated identifier and responds with
// the URL to retrieve it; a GET to "/<identifier>" streams the value back.
// Bodies are streamed in both directions, never held in memory as a whole.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nicolagi/meow/storage"
	"github.com/nicolagi/meow/words"
)

const (
	DefaultKeyLength  = 3
	DefaultChunkSize  = 32 << 10
	DefaultQueueDepth = 4
)

var errNotListening = errors.New("serve called before listen")

type Option func(*options)

type options struct {
	address    string
	baseURL    *url.URL
	store      storage.Store
	words      *words.List
	keyLength  int
	chunkSize  int
	queueDepth int
}

func WithAddress(value string) Option {
	return func(o *options) {
		o.address = value
	}
}

// WithBaseURL sets the URL identifiers are resolved against to form
// retrieval URLs.
func WithBaseURL(value *url.URL) Option {
	return func(o *options) {
		o.baseURL = value
	}
}

func WithStore(value storage.Store) Option {
	return func(o *options) {
		o.store = value
	}
}

func WithWordList(value *words.List) Option {
	return func(o *options) {
		o.words = value
	}
}

func WithKeyLength(value int) Option {
	return func(o *options) {
		o.keyLength = value
	}
}

// WithChunkSize sets the largest piece of a request body handed to the
// store at once.
func WithChunkSize(value int) Option {
	return func(o *options) {
		o.chunkSize = value
	}
}

// WithQueueDepth sets how many chunks may wait for the store while the
// request body is being read.
func WithQueueDepth(value int) Option {
	return func(o *options) {
		o.queueDepth = value
	}
}

type Server struct {
	opts options
	ln   net.Listener
	srv  *http.Server
}

// New returns a server, or an error if the options are inconsistent, e.g.,
// identifiers longer than the word list.
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	s.opts.address = ":8080"
	s.opts.words = words.English()
	s.opts.keyLength = DefaultKeyLength
	s.opts.chunkSize = DefaultChunkSize
	s.opts.queueDepth = DefaultQueueDepth
	for _, o := range opts {
		o(&s.opts)
	}
	if s.opts.store == nil {
		return nil, errors.New("no store")
	}
	if s.opts.baseURL == nil || !s.opts.baseURL.IsAbs() || s.opts.baseURL.Host == "" {
		return nil, fmt.Errorf("base url %v: must be an absolute URL", s.opts.baseURL)
	}
	if err := s.opts.words.Check(s.opts.keyLength); err != nil {
		return nil, err
	}
	if s.opts.chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d: must be positive", s.opts.chunkSize)
	}
	if s.opts.queueDepth < 0 {
		return nil, fmt.Errorf("queue depth %d: must not be negative", s.opts.queueDepth)
	}
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: time.Minute,
	}
	return s, nil
}

func (s *Server) Listen() (addr string, err error) {
	s.ln, err = net.Listen("tcp", s.opts.address)
	if err != nil {
		return
	}
	addr = s.ln.Addr().String()
	return
}

// Serve serves HTTP requests on the listener set up by Listen. It returns
// nil some time after Shutdown is called.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errNotListening
	}
	if err := s.srv.Serve(s.ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests to
// complete, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) urlFor(key string) string {
	return s.opts.baseURL.ResolveReference(&url.URL{Path: key}).String()
}
