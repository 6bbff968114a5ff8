// Package qstore provides persistent key-value preference stores.
// Values are opaque bytes; callers are responsible for encrypting
// anything sensitive before it reaches a store.
package qstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get when no value exists for the key.
	ErrNotFound = errors.New("qstore: key not found")

	// ErrInvalidKey is returned for keys that cannot be stored safely.
	ErrInvalidKey = errors.New("qstore: invalid key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("qstore: store closed")

	// ErrUnsupported is returned for a store kind unavailable on this platform.
	ErrUnsupported = errors.New("qstore: not supported on this platform")
)

// DataStore provides simple key-value storage.
// Platform-specific implementations can use files, a bbolt database, or the
// Windows registry. Every Set replaces the value atomically: a concurrent or
// later reader observes either the old value or the new one.
type DataStore interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(key string) ([]byte, error)

	// Set stores a value by key.
	Set(key string, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys returns the sorted keys that start with prefix.
	Keys(prefix string) ([]string, error)

	// Path returns the storage location for display purposes.
	Path() string

	// Close releases any resources held by the store.
	Close() error
}

// ValidateKey checks that key is usable as a file name, a config file key,
// and a registry value name.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > 255 {
		return fmt.Errorf("%w: %d bytes long", ErrInvalidKey, len(key))
	}
	if key[0] == '.' || key[0] == '#' {
		return fmt.Errorf("%w: %q starts with %q", ErrInvalidKey, key, key[0])
	}
	if i := strings.IndexFunc(key, func(r rune) bool {
		switch r {
		case '/', '\\', '=', ':', '{', '}':
			return true
		}
		return r <= 0x20 || r >= 0x7f
	}); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, key[i])
	}
	return nil
}
