package qcustody

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"

	"github.com/99designs/keyring"
)

// KeyringConfig selects and configures an OS credential store.
type KeyringConfig struct {
	ServiceName string

	// Backend restricts the keyring to one backend, such as "keychain",
	// "secret-service", "wincred", or "file". Empty lets the library choose.
	Backend string

	// FileDir and FilePassword configure the "file" backend.
	FileDir      string
	FilePassword string
}

// KeyringCustodian stores PEM encoded PKCS#8 keys in an OS keyring.
type KeyringCustodian struct {
	ring keyring.Keyring
}

var _ Custodian = (*KeyringCustodian)(nil)

// OpenKeyring opens the configured keyring backend.
func OpenKeyring(cfg KeyringConfig) (*KeyringCustodian, error) {
	kc := keyring.Config{
		ServiceName:              cfg.ServiceName,
		KeychainTrustApplication: true,
		FileDir:                  cfg.FileDir,
	}
	if cfg.Backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(cfg.Backend)}
	}
	if cfg.FilePassword != "" {
		kc.FilePasswordFunc = keyring.FixedStringPrompt(cfg.FilePassword)
	}
	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return NewKeyringCustodian(ring), nil
}

// NewKeyringCustodian wraps an already opened keyring.
func NewKeyringCustodian(ring keyring.Keyring) *KeyringCustodian {
	return &KeyringCustodian{ring: ring}
}

func (c *KeyringCustodian) Lookup(alias string) (KeyHandle, error) {
	key, err := c.load(alias)
	if err != nil {
		return nil, err
	}
	return c.handle(alias, &key.PublicKey), nil
}

func (c *KeyringCustodian) Generate(alias string, policy Policy) (KeyHandle, error) {
	_, err := c.ring.Get(alias)
	switch {
	case err == nil:
		return nil, ErrKeyExists
	case !errors.Is(err, keyring.ErrKeyNotFound):
		return nil, fmt.Errorf("get key from keyring: %w", err)
	}

	key, err := generateKey(policy)
	if err != nil {
		return nil, err
	}
	// The keyring may keep Data, so it is not zeroized after Set.
	data, err := marshalKeyPEM(key)
	if err != nil {
		return nil, err
	}
	err = c.ring.Set(keyring.Item{
		Key:         alias,
		Data:        data,
		Label:       alias,
		Description: "qcred credential key",
	})
	if err != nil {
		return nil, fmt.Errorf("store key in keyring: %w", err)
	}
	return c.handle(alias, &key.PublicKey), nil
}

func (c *KeyringCustodian) Delete(alias string) error {
	err := c.ring.Remove(alias)
	// The file backend reports a missing item as a path error.
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove key from keyring: %w", err)
	}
	return nil
}

// Keys lists the aliases held in the keyring.
func (c *KeyringCustodian) Keys() ([]string, error) {
	keys, err := c.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys from keyring: %w", err)
	}
	return keys, nil
}

func (c *KeyringCustodian) load(alias string) (*rsa.PrivateKey, error) {
	item, err := c.ring.Get(alias)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key from keyring: %w", err)
	}
	key, err := parseKeyPEM(item.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyInvalidated, alias, err)
	}
	return key, nil
}

func (c *KeyringCustodian) handle(alias string, pub *rsa.PublicKey) KeyHandle {
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
