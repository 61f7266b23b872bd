package storage

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Reserves length bytes at offset off without changing the file size, so a
// value shorter than declared doesn't leave trailing zeros. Only running out
// of space is an error; file systems without fallocate support are fine.
func preallocate(f *os.File, off, length int64) error {
	if length <= 0 {
		return nil
	}
	err := unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_KEEP_SIZE, off, length)
	if errors.Is(err, unix.ENOSPC) {
		return err
	}
	if err != nil {
		log.WithFields(log.Fields{
			"path": f.Name(),
			"err":  err,
		}).Debug("Could not preallocate")
	}
	return nil
}
