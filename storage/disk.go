package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// DiskStore implements Store, keeping one file per key directly under a
// directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Put(ctx context.Context, key string, r io.Reader, size int64) (err error) {
	if err := CheckKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	valpath := s.pathFor(key)
	// The leading dot keeps in-flight files out of reach of Get.
	f, err := os.CreateTemp(s.dir, "."+key+".*")
	if os.IsNotExist(err) {
		if err = os.MkdirAll(s.dir, 0700); err != nil {
			return fmt.Errorf("could not make dir for %q: %w", valpath, err)
		}
		f, err = os.CreateTemp(s.dir, "."+key+".*")
	}
	if err != nil {
		return fmt.Errorf("could not create file for %q: %w", valpath, err)
	}
	tmppath := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			if rerr := os.Remove(tmppath); rerr != nil && !os.IsNotExist(rerr) {
				log.WithFields(log.Fields{
					"path": tmppath,
					"err":  rerr,
				}).Warn("Could not remove partial file")
			}
		}
	}()
	if _, err = io.Copy(&reservingWriter{f: f, size: size}, r); err != nil {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = os.Rename(tmppath, valpath); err != nil {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	return nil
}

func (s *DiskStore) Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error) {
	if err := CheckKey(key); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.pathFor(key))
	if os.IsNotExist(err) {
		return nil, 0, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, 0, nil
	}
	return f, info.Size(), nil
}

// Disk space is reserved at most this far ahead of the data written, so a
// declared size the client never sends reserves next to nothing.
const reserveWindow = 4 << 20

// reservingWriter writes to f, reserving space in windows as data arrives,
// never past the declared size (-1 if unknown).
type reservingWriter struct {
	f        *os.File
	size     int64
	written  int64
	reserved int64
}

func (w *reservingWriter) Write(p []byte) (int, error) {
	end := w.written + int64(len(p))
	if w.size > 0 && end > w.reserved && w.reserved < w.size {
		length := end - w.reserved
		if length < reserveWindow {
			length = reserveWindow
		}
		if w.reserved+length > w.size {
			length = w.size - w.reserved
		}
		if err := preallocate(w.f, w.reserved, length); err != nil {
			return 0, fmt.Errorf("could not reserve %d bytes: %w", length, err)
		}
		w.reserved += length
	}
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

func (s *DiskStore) pathFor(key string) string {
	return filepath.Join(s.dir, key)
}
