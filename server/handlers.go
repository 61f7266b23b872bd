package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithFields(log.Fields{
		"req":    uuid.NewString(),
		"method": r.Method,
		"remote": r.RemoteAddr,
	})
	if r.URL.Path == "/" {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			s.index(w)
		case http.MethodPost:
			s.paste(w, r, logger)
		default:
			methodNotAllowed(w, logger, "GET, HEAD, POST")
		}
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.retrieve(w, r, logger, strings.TrimPrefix(r.URL.Path, "/"))
	default:
		methodNotAllowed(w, logger, "GET, HEAD")
	}
}

func methodNotAllowed(w http.ResponseWriter, logger *log.Entry, allowed string) {
	logger.Warn("Bad request")
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (s *Server) index(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "meow - paste bin\nusage: curl --data-binary @<file> %s\n", s.opts.baseURL)
}

func (s *Server) paste(w http.ResponseWriter, r *http.Request, logger *log.Entry) {
	key, err := s.opts.words.Generate(s.opts.keyLength)
	if err != nil {
		logger.WithField("err", err).Error("Could not generate key")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	// As declared by the request framing, -1 if unknown.
	size := r.ContentLength
	logger = logger.WithFields(log.Fields{
		"op":   "paste",
		"key":  key,
		"size": size,
	})
	if err := relay(r.Context(), s.opts.store, key, r.Body, size, s.opts.chunkSize, s.opts.queueDepth); err != nil {
		logger.WithField("err", err).Error()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	logger.Debug("Success")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := fmt.Fprintf(w, "%s\n", s.urlFor(key)); err != nil {
		logger.WithField("err", err).Error("Failed writing response")
	}
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, logger *log.Entry, key string) {
	logger = logger.WithFields(log.Fields{
		"op":  "retrieve",
		"key": key,
	})
	d := fetch(r.Context(), s.opts.store, key)
	switch d.outcome {
	case notFound:
		logger.WithField("err", d.err).Debug("Not found")
	case failed:
		logger.WithField("err", d.err).Error()
	}
	n, err := d.respond(w)
	if err != nil && r.Method != http.MethodHead {
		// The client went away, or the store failed mid-stream.
		logger.WithFields(log.Fields{
			"err":     err,
			"written": n,
		}).Warn("Failed writing response")
		return
	}
	if d.outcome == found {
		logger.WithField("written", n).Debug("Success")
	}
}
