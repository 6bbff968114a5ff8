package qcustody

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const pemTypePrivateKey = "PRIVATE KEY"

// keyHandle resolves the private key on every use, so a key removed or
// corrupted behind the custodian's back surfaces as ErrKeyInvalidated.
type keyHandle struct {
	alias string
	pub   *rsa.PublicKey
	load  func() (*rsa.PrivateKey, error)
}

var _ KeyHandle = (*keyHandle)(nil)

func (h *keyHandle) Alias() string          { return h.alias }
func (h *keyHandle) Public() *rsa.PublicKey { return h.pub }

func (h *keyHandle) Decrypt(ciphertext, label []byte) ([]byte, error) {
	key, err := h.load()
	if err != nil {
		return nil, err
	}
	if !key.PublicKey.Equal(h.pub) {
		return nil, fmt.Errorf("%w: key for %s was replaced", ErrKeyInvalidated, h.alias)
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, key, ciphertext, label)
	if err != nil {
		return nil, fmt.Errorf("oaep decrypt: %w", err)
	}
	return pt, nil
}

func generateKey(policy Policy) (*rsa.PrivateKey, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, policy.bits())
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

func marshalKeyDER(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return der, nil
}

func parseKeyDER(der []byte) (*rsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}

func marshalKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := marshalKeyDER(key)
	if err != nil {
		return nil, err
	}
	defer zeroize(der)
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: der}), nil
}

func parseKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("decode PEM block")
	}
	if block.Type != pemTypePrivateKey {
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	return parseKeyDER(block.Bytes)
}

// zeroize overwrites a byte slice with zeros.
func zeroize(b []byte) {
	clear(b)
}
