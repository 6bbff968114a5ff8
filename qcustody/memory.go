package qcustody

import (
	"crypto/rsa"
	"fmt"
	"sync"
)

// MemoryCustodian keeps keys in process memory. It is used by tests and by
// hosts that accept keys which do not survive a restart.
type MemoryCustodian struct {
	mu        sync.RWMutex
	keys      map[string]*memoryKey
	generated int
}

type memoryKey struct {
	key         *rsa.PrivateKey
	invalidated bool
}

var _ Custodian = (*MemoryCustodian)(nil)

// NewMemoryCustodian returns an empty in-memory custodian.
func NewMemoryCustodian() *MemoryCustodian {
	return &MemoryCustodian{keys: make(map[string]*memoryKey)}
}

func (c *MemoryCustodian) Lookup(alias string) (KeyHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mk, ok := c.keys[alias]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if mk.invalidated {
		return nil, fmt.Errorf("%w: %s", ErrKeyInvalidated, alias)
	}
	return c.handle(alias, mk), nil
}

func (c *MemoryCustodian) Generate(alias string, policy Policy) (KeyHandle, error) {
	key, err := generateKey(policy)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[alias]; ok {
		return nil, ErrKeyExists
	}
	mk := &memoryKey{key: key}
	c.keys[alias] = mk
	c.generated++
	return c.handle(alias, mk), nil
}

func (c *MemoryCustodian) Delete(alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.keys, alias)
	return nil
}

// Invalidate marks the key for alias permanently unusable, the way an OS
// keystore invalidates keys after a lock screen reset.
func (c *MemoryCustodian) Invalidate(alias string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	mk, ok := c.keys[alias]
	if ok {
		mk.invalidated = true
	}
	return ok
}

// Has reports whether a key, valid or not, exists for alias.
func (c *MemoryCustodian) Has(alias string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.keys[alias]
	return ok
}

// Generated returns how many keys were created.
func (c *MemoryCustodian) Generated() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.generated
}

func (c *MemoryCustodian) handle(alias string, mk *memoryKey) KeyHandle {
	return &keyHandle{
		alias: alias,
		pub:   &mk.key.PublicKey,
		load: func() (*rsa.PrivateKey, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()

			cur, ok := c.keys[alias]
			if !ok || cur != mk || mk.invalidated {
				return nil, fmt.Errorf("%w: %s", ErrKeyInvalidated, alias)
			}
			return mk.key, nil
		},
	}
}
