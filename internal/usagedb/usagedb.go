// Package usagedb persists the usage table across restarts in a bbolt file.
package usagedb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

const (
	// DBFile is the database file name inside the state directory.
	DBFile        = "launchd.usage"
	bucketName    = "usage"
	dbPermissions = 0600
	valueSize     = 16 // launch count, last launch unix nanos
)

// DB stores UsageStats keyed by stable key.
type DB struct {
	mu sync.Mutex
	db *bbolt.DB
}

// Open creates or opens the usage database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, DBFile), dbPermissions, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Load returns every stored record. Malformed values are skipped.
func (d *DB) Load() (map[string]catalog.UsageStats, error) {
	stats := make(map[string]catalog.UsageStats)
	err := d.view(func(b *bbolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			if s, ok := decode(v); ok {
				stats[string(k)] = s
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Put stores the stats for one key.
func (d *DB) Put(key string, s catalog.UsageStats) error {
	return d.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}
		return b.Put([]byte(key), encode(s))
	})
}

// Replace makes the stored table equal to stats.
func (d *DB) Replace(stats map[string]catalog.UsageStats) error {
	return d.update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketName)) != nil {
			if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		for k, s := range stats {
			if err := b.Put([]byte(k), encode(s)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database. Calling it more than once is safe.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *DB) handle() (*bbolt.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, bbolt.ErrDatabaseNotOpen
	}
	return d.db, nil
}

func (d *DB) view(fn func(*bbolt.Bucket) error) error {
	db, err := d.handle()
	if err != nil {
		return err
	}
	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

func (d *DB) update(fn func(*bbolt.Tx) error) error {
	db, err := d.handle()
	if err != nil {
		return err
	}
	return db.Update(fn)
}

func encode(s catalog.UsageStats) []byte {
	buf := make([]byte, valueSize)
	binary.BigEndian.PutUint64(buf[:8], s.LaunchCount)
	var nanos int64
	if !s.LastLaunchedAt.IsZero() {
		nanos = s.LastLaunchedAt.UnixNano()
	}
	binary.BigEndian.PutUint64(buf[8:], uint64(nanos))
	return buf
}

func decode(v []byte) (catalog.UsageStats, bool) {
	if len(v) != valueSize {
		return catalog.UsageStats{}, false
	}
	s := catalog.UsageStats{LaunchCount: binary.BigEndian.Uint64(v[:8])}
	if nanos := int64(binary.BigEndian.Uint64(v[8:])); nanos != 0 {
		s.LastLaunchedAt = time.Unix(0, nanos)
	}
	return s, true
}
