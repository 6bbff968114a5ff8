package qstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultBoltBucket is the bucket used when none is given.
const DefaultBoltBucket = "preferences"

// BoltDataStore implements DataStore using a single bbolt bucket.
// Each Set runs in its own transaction.
type BoltDataStore struct {
	db     *bbolt.DB
	bucket []byte
}

var _ DataStore = (*BoltDataStore)(nil)

// NewBoltDataStore opens or creates the database at path and ensures the bucket exists.
func NewBoltDataStore(path, bucket string) (*BoltDataStore, error) {
	if bucket == "" {
		bucket = DefaultBoltBucket
	}
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &BoltDataStore{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return s, nil
}

func (s *BoltDataStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		value = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return value, nil
}

func (s *BoltDataStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, s.mapErr(err))
	}
	return nil
}

func (s *BoltDataStore) Delete(key string) error {
	if key == "" {
		return nil
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, s.mapErr(err))
	}
	return nil
}

// Keys walks the bucket from prefix; bbolt keeps keys in byte order.
func (s *BoltDataStore) Keys(prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	return keys, nil
}

func (s *BoltDataStore) Path() string {
	return s.db.Path()
}

func (s *BoltDataStore) Close() error {
	return s.db.Close()
}

func (s *BoltDataStore) mapErr(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
