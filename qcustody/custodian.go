// Package qcustody defines the secure key custodian capability and its
// implementations. A custodian creates, locates, and deletes per-alias RSA key
// pairs. Private key material never leaves a custodian; callers get a
// KeyHandle that can decrypt but not export.
package qcustody

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Lookup when no key exists for the alias.
	ErrKeyNotFound = errors.New("qcustody: key not found")

	// ErrKeyInvalidated is returned when a key exists but can no longer be used,
	// for example after the OS credential store was reset.
	ErrKeyInvalidated = errors.New("qcustody: key permanently invalidated")

	// ErrKeyExists is returned by Generate when the alias already has a key.
	ErrKeyExists = errors.New("qcustody: key already exists")

	// ErrPolicyUnsupported is returned for a key policy the custodian cannot honor.
	ErrPolicyUnsupported = errors.New("qcustody: key policy not supported")
)

// DefaultBits is the RSA modulus size used when a Policy does not set one.
const DefaultBits = 2048

// minBits is the smallest modulus crypto/rsa will generate by default.
const minBits = 1024

// Policy describes how a key is generated.
type Policy struct {
	Bits int

	// RequireUserAuth gates every key use behind user authentication.
	// No current custodian supports it.
	RequireUserAuth bool
}

// DefaultPolicy is RSA 2048 with no user authentication.
var DefaultPolicy = Policy{Bits: DefaultBits}

func (p Policy) bits() int {
	if p.Bits == 0 {
		return DefaultBits
	}
	return p.Bits
}

func (p Policy) validate() error {
	if p.RequireUserAuth {
		return fmt.Errorf("%w: user authentication", ErrPolicyUnsupported)
	}
	if b := p.bits(); b < minBits || b%8 != 0 {
		return fmt.Errorf("%w: %d bit key", ErrPolicyUnsupported, b)
	}
	return nil
}

// KeyHandle is an opaque reference to a custodian-held key pair.
type KeyHandle interface {
	// Alias is the custodian alias the key is stored under.
	Alias() string

	// Public returns the public half of the key pair.
	Public() *rsa.PublicKey

	// Decrypt performs RSA-OAEP-SHA256 decryption with the private key.
	// It returns ErrKeyInvalidated if the key is no longer usable.
	Decrypt(ciphertext, label []byte) ([]byte, error)
}

// Custodian stores key pairs by alias.
// Implementations are safe for concurrent use.
type Custodian interface {
	// Lookup returns the key for alias, ErrKeyNotFound if none exists, or
	// ErrKeyInvalidated if it exists but is unusable.
	Lookup(alias string) (KeyHandle, error)

	// Generate creates a key pair for alias. It returns ErrKeyExists if the
	// alias already has one.
	Generate(alias string, policy Policy) (KeyHandle, error)

	// Delete removes the key for alias. Deleting a missing key is not an error.
	Delete(alias string) error
}

// MaxPlaintext reports the largest message RSA-OAEP-SHA256 can encrypt directly under pub.
func MaxPlaintext(pub *rsa.PublicKey) int {
	n := pub.Size() - 2*sha256.Size - 2
	if n < 0 {
		return 0
	}
	return n
}

// EncryptOAEP encrypts msg to pub with RSA-OAEP-SHA256 and the given label.
func EncryptOAEP(pub *rsa.PublicKey, msg, label []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, msg, label)
}
