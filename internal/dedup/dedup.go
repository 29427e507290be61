// Package dedup implements the dupcheck handling option of C3: a persistent
// fingerprint store, backed by a single bbolt database under
// {work_dir}/files/store/, that lets the handling engine recognise and
// silently drop a file it has already forwarded.
package dedup

import (
	"crypto/sha1"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/afdist/afd/internal/afderr"
)

var bucketName = []byte("fingerprints")

// Store is the dupcheck fingerprint database of one working directory: a
// single bbolt bucket shared by every watched directory (the original AFD
// keeps one CRC file per watched directory under files/crc/; here all
// fingerprints live in one bucket).
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the fingerprint database for workDir.
func Open(workDir string) (*Store, error) {
	dir := filepath.Join(workDir, "files", "store")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, afderr.New(afderr.Filesystem, dir, err)
	}
	path := filepath.Join(dir, "dupcheck.db")
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, afderr.New(afderr.Filesystem, path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprint hashes the full contents of a file, the unit the "dupcheck"
// option compares — a SHA-1 of the full content, not name or mtime, to survive
// renaming and restamping along the pipeline.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", afderr.New(afderr.Filesystem, path, err)
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", afderr.New(afderr.Filesystem, path, err)
	}
	return string(h.Sum(nil)), nil
}

// Seen reports whether fingerprint has been recorded before timeout elapsed
// relative to now, per the dupcheck option's age-bounded lookup.
func (s *Store) Seen(fingerprint string, now time.Time, timeout time.Duration) (bool, error) {
	var seen bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(fingerprint))
		if v == nil {
			return nil
		}
		storedAt := time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		if timeout <= 0 || now.Sub(storedAt) < timeout {
			seen = true
		}
		return nil
	})
	return seen, err
}

// Record stores fingerprint with timestamp now, overwriting any prior entry
// (a fresh arrival always refreshes the dupcheck window).
func (s *Store) Record(fingerprint string, now time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, uint64(now.Unix()))
		return b.Put([]byte(fingerprint), v)
	})
}

// CheckAndRecord is the dupcheck option's single entry point: it reports
// whether path's content was already seen within timeout, and if not,
// records it now so a subsequent duplicate is caught.
func (s *Store) CheckAndRecord(path string, now time.Time, timeout time.Duration) (duplicate bool, err error) {
	fp, err := Fingerprint(path)
	if err != nil {
		return false, err
	}
	seen, err := s.Seen(fp, now, timeout)
	if err != nil {
		return false, afderr.New(afderr.Filesystem, path, err)
	}
	if seen {
		return true, nil
	}
	if err := s.Record(fp, now); err != nil {
		return false, afderr.New(afderr.Filesystem, path, err)
	}
	return false, nil
}
