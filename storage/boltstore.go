package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultBoltChunkSize is the size of the records a value is split into.
const DefaultBoltChunkSize = 1 << 20

var (
	blobsBucket  = []byte("blobs")
	chunksBucket = []byte("chunks")

	errChunksGone = errors.New("value replaced while reading")
)

// BoltStore is an implementation of Store whose backend is a Bolt database.
// Values are split into chunks, each written in its own transaction, so that
// no value is ever held in memory as a whole. The blobs bucket maps keys to a
// 16-byte chunk set id followed by the 8-byte value length; the chunks bucket
// holds one nested bucket per chunk set, keyed by sequence number.
type BoltStore struct {
	db        *bolt.DB
	chunkSize int
}

type BoltOption func(*BoltStore)

func WithBoltChunkSize(value int) BoltOption {
	return func(s *BoltStore) {
		s.chunkSize = value
	}
}

func NewBoltStore(db *bolt.DB, opts ...BoltOption) (*BoltStore, error) {
	s := &BoltStore{db: db, chunkSize: DefaultBoltChunkSize}
	for _, o := range opts {
		o(s)
	}
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{blobsBucket, chunksBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
			}
		}
		return nil
	})
	return s, err
}

func (s *BoltStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	id := uuid.New()
	var (
		seq   uint64
		total int64
	)
	buf := make([]byte, s.chunkSize)
	for {
		n, rerr := fill(r, buf)
		if rerr != nil && rerr != io.EOF {
			s.discard(id)
			return fmt.Errorf("%.40q: %w", key, rerr)
		}
		if n > 0 {
			err := s.db.Update(func(tx *bolt.Tx) error {
				chunks, err := tx.Bucket(chunksBucket).CreateBucketIfNotExists(id[:])
				if err != nil {
					return err
				}
				return chunks.Put(seqKey(seq), buf[:n])
			})
			if err != nil {
				s.discard(id)
				return fmt.Errorf("could not put chunk %d of %.40q: %w", seq, key, err)
			}
			seq++
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if err := ctx.Err(); err != nil {
			s.discard(id)
			return err
		}
	}
	record := make([]byte, len(id)+8)
	copy(record, id[:])
	binary.BigEndian.PutUint64(record[len(id):], uint64(total))
	err := s.db.Update(func(tx *bolt.Tx) error {
		blobs := tx.Bucket(blobsBucket)
		if prev := blobs.Get([]byte(key)); prev != nil {
			err := tx.Bucket(chunksBucket).DeleteBucket(prev[:len(id)])
			if err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		return blobs.Put([]byte(key), record)
	})
	if err != nil {
		s.discard(id)
		return fmt.Errorf("could not put %.40q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) discard(id uuid.UUID) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(chunksBucket).DeleteBucket(id[:])
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		log.WithFields(log.Fields{
			"chunks": id.String(),
			"err":    err,
		}).Warn("Could not discard chunks")
	}
}

func (s *BoltStore) Get(ctx context.Context, key string) (body io.ReadCloser, size int64, err error) {
	if err := CheckKey(key); err != nil {
		return nil, 0, err
	}
	var id uuid.UUID
	err = s.db.View(func(tx *bolt.Tx) error {
		record := tx.Bucket(blobsBucket).Get([]byte(key))
		if record == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		copy(id[:], record)
		size = int64(binary.BigEndian.Uint64(record[len(id):]))
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if size == 0 {
		return nil, 0, nil
	}
	return &boltReader{db: s.db, id: id}, size, nil
}

// Reads one chunk per read transaction, so a slow reader never pins a
// transaction.
type boltReader struct {
	db      *bolt.DB
	id      uuid.UUID
	seq     uint64
	pending []byte
	err     error
}

func (r *boltReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.err = r.db.View(func(tx *bolt.Tx) error {
			chunks := tx.Bucket(chunksBucket).Bucket(r.id[:])
			if chunks == nil {
				return errChunksGone
			}
			chunk := chunks.Get(seqKey(r.seq))
			if chunk == nil {
				return io.EOF
			}
			r.pending = append([]byte(nil), chunk...)
			return nil
		})
		r.seq++
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *boltReader) Close() error {
	r.pending = nil
	r.err = errors.New("read after close")
	return nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Like io.ReadFull, but returns the error from r as is.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
