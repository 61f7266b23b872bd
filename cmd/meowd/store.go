package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/meow/storage"
	log "github.com/sirupsen/logrus"
)

// newStore builds the storage backend selected by the configuration. The
// returned cleanup function releases whatever the backend holds open.
func newStore(ctx context.Context, c *config) (store storage.Store, cleanup func(), err error) {
	cleanup = func() {}
	switch c.Storage.Type {
	case "disk":
		dir := os.ExpandEnv(c.Storage.Root)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("could not ensure directory %q exists: %w", dir, err)
		}
		log.Infof("Will use a disk-based backend storing data at %s", dir)
		store = storage.NewDiskStore(dir)
	case "bolt":
		pathname := os.ExpandEnv(c.Storage.Path)
		if err := os.MkdirAll(filepath.Dir(pathname), 0700); err != nil {
			return nil, nil, err
		}
		db, err := bolt.Open(pathname, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("could not open %q: %w", pathname, err)
		}
		if store, err = storage.NewBoltStore(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Infof("Will use a Bolt backend at %s", pathname)
		cleanup = func() {
			if err := db.Close(); err != nil {
				log.WithField("err", err).Warn("Could not close Bolt database")
			}
		}
	case "s3":
		store, err = storage.NewS3(storage.S3Config{
			Endpoint:        c.Storage.Endpoint,
			Region:          c.Storage.Region,
			Bucket:          c.Storage.Bucket,
			Profile:         c.Storage.Profile,
			AccessKeyID:     c.Storage.AccessKeyID,
			SecretAccessKey: c.Storage.SecretAccessKey,
			DisableSSL:      c.Storage.Endpoint != "" && !c.Storage.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Will use S3 bucket %s in %s", c.Storage.Bucket, c.Storage.Region)
	case "minio":
		host, secure := c.minioEndpoint()
		m, err := storage.NewMinio(host, c.Storage.Region, c.Storage.AccessKeyID, c.Storage.SecretAccessKey, c.Storage.Bucket, secure)
		if err != nil {
			return nil, nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		log.Infof("Will use bucket %s at %s", c.Storage.Bucket, host)
		store = m
	case "memory":
		log.Warn("Will keep pastes in memory, they will be lost on exit")
		store = storage.NewInMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Cache != "" {
		dir := os.ExpandEnv(c.Storage.Cache)
		if err := os.MkdirAll(dir, 0700); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("could not ensure directory %q exists: %w", dir, err)
		}
		log.Infof("Will cache values at %s", dir)
		store = storage.NewPaired(storage.NewDiskStore(dir), store)
	}
	if c.RateLimit > 0 {
		log.WithFields(log.Fields{
			"rate":  c.RateLimit,
			"burst": c.RateBurst,
		}).Info("Throttling backend requests")
		store = storage.NewThrottled(store, c.RateLimit, c.RateBurst)
	}
	return store, cleanup, nil
}
