package qcustody

import (
	"bytes"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
)

var bucketKeys = []byte("keys")

// Sealer protects private key bytes at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Unseal(sealed []byte) ([]byte, error)
}

// sealedKey is the persisted record for one alias.
type sealedKey struct {
	Created time.Time `cbor:"1,keyasint"`
	Bits    int       `cbor:"2,keyasint"`
	Sealed  []byte    `cbor:"3,keyasint"`
}

// SealedCustodian keeps sealed PKCS#8 keys in a bbolt database.
// On Windows keys are sealed with DPAPI; elsewhere with a key-encryption key
// file next to the database.
type SealedCustodian struct {
	db     *bbolt.DB
	sealer Sealer
	now    func() time.Time
}

var _ Custodian = (*SealedCustodian)(nil)

// OpenSealed opens or creates a sealed custodian in dir using the platform sealer.
func OpenSealed(dir string) (*SealedCustodian, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create custody directory: %w", err)
	}
	s, err := platformSealer(dir)
	if err != nil {
		return nil, err
	}
	return NewSealedCustodian(filepath.Join(dir, "custody.db"), s)
}

// NewSealedCustodian opens the database at path and seals keys with s.
func NewSealedCustodian(path string, s Sealer) (*SealedCustodian, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKeys)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &SealedCustodian{db: db, sealer: s, now: time.Now}, nil
}

// Close closes the key database.
func (c *SealedCustodian) Close() error {
	return c.db.Close()
}

// Path returns the key database location.
func (c *SealedCustodian) Path() string {
	return c.db.Path()
}

func (c *SealedCustodian) Lookup(alias string) (KeyHandle, error) {
	key, err := c.load(alias)
	if err != nil {
		return nil, err
	}
	return c.handle(alias, &key.PublicKey), nil
}

func (c *SealedCustodian) Generate(alias string, policy Policy) (KeyHandle, error) {
	key, err := generateKey(policy)
	if err != nil {
		return nil, err
	}
	der, err := marshalKeyDER(key)
	if err != nil {
		return nil, err
	}
	defer zeroize(der)

	sealed, err := c.sealer.Seal(der)
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	rec, err := cbor.Marshal(sealedKey{
		Created: c.now().UTC(),
		Bits:    key.N.BitLen(),
		Sealed:  sealed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal key record: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		if b.Get([]byte(alias)) != nil {
			return ErrKeyExists
		}
		return b.Put([]byte(alias), rec)
	})
	if err != nil {
		if errors.Is(err, ErrKeyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("store key: %w", err)
	}
	return c.handle(alias, &key.PublicKey), nil
}

func (c *SealedCustodian) Delete(alias string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKeys).Delete([]byte(alias))
	})
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// Keys lists the aliases held in the database.
func (c *SealedCustodian) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKeys).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Created returns when the key for alias was generated.
func (c *SealedCustodian) Created(alias string) (time.Time, error) {
	rec, err := c.record(alias)
	if err != nil {
		return time.Time{}, err
	}
	return rec.Created, nil
}

func (c *SealedCustodian) record(alias string) (sealedKey, error) {
	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketKeys).Get([]byte(alias))
		if v == nil {
			return ErrKeyNotFound
		}
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return sealedKey{}, err
	}
	var rec sealedKey
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return sealedKey{}, fmt.Errorf("%w: %s: decode record: %v", ErrKeyInvalidated, alias, err)
	}
	return rec, nil
}

func (c *SealedCustodian) load(alias string) (*rsa.PrivateKey, error) {
	rec, err := c.record(alias)
	if err != nil {
		return nil, err
	}
	der, err := c.sealer.Unseal(rec.Sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: unseal: %v", ErrKeyInvalidated, alias, err)
	}
	defer zeroize(der)

	key, err := parseKeyDER(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyInvalidated, alias, err)
	}
	return key, nil
}

func (c *SealedCustodian) handle(alias string, pub *rsa.PublicKey) KeyHandle {
	return &keyHandle{
		alias: alias,
		pub:   pub,
		load: func() (*rsa.PrivateKey, error) {
			key, err := c.load(alias)
			if errors.Is(err, ErrKeyNotFound) {
				return nil, fmt.Errorf("%w: %s removed", ErrKeyInvalidated, alias)
			}
			return key, err
		},
	}
}
