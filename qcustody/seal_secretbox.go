package qcustody

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	kekSize   = 32
	nonceSize = 24
)

// SecretboxSealer seals with nacl/secretbox under a fixed key-encryption key.
type SecretboxSealer struct {
	kek [kekSize]byte
}

var _ Sealer = (*SecretboxSealer)(nil)

// NewSecretboxSealer returns a sealer using kek.
func NewSecretboxSealer(kek [kekSize]byte) *SecretboxSealer {
	return &SecretboxSealer{kek: kek}
}

// Seal returns nonce (24 bytes) + ciphertext.
func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.kek), nil
}

func (s *SecretboxSealer) Unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed data too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.kek)
	if !ok {
		return nil, errors.New("unseal failed")
	}
	return plaintext, nil
}

// kekReadAttempts bounds how long a reader waits for a concurrent creator
// to finish writing the key file.
const (
	kekReadAttempts = 20
	kekReadDelay    = 10 * time.Millisecond
)

// readKEK reads the key file, retrying while it is shorter than a key.
// A new file is visible empty until its creator has written it.
func readKEK(path string) ([]byte, error) {
	var data []byte
	var err error
	for range kekReadAttempts {
		data, err = os.ReadFile(path)
		if err != nil || len(data) >= kekSize {
			return data, err
		}
		zeroize(data)
		time.Sleep(kekReadDelay)
	}
	return data, err
}

// LoadOrCreateKEK reads a key-encryption key from path, creating it with
// mode 0600 if it does not exist.
func LoadOrCreateKEK(path string) ([kekSize]byte, error) {
	var kek [kekSize]byte

	data, err := readKEK(path)
	switch {
	case err == nil:
		defer zeroize(data)
		if len(data) != kekSize {
			return kek, fmt.Errorf("key file %s: length is %d, but should be %d", path, len(data), kekSize)
		}
		copy(kek[:], data)
		return kek, nil
	case !errors.Is(err, fs.ErrNotExist):
		return kek, fmt.Errorf("read key file: %w", err)
	}

	if _, err := rand.Read(kek[:]); err != nil {
		return kek, fmt.Errorf("generate key: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		// Lost a race with another process; use its key.
		return LoadOrCreateKEK(path)
	}
	if err != nil {
		return kek, fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(kek[:]); err != nil {
		f.Close()
		os.Remove(path)
		return kek, fmt.Errorf("write key file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return kek, fmt.Errorf("sync key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return kek, fmt.Errorf("close key file: %w", err)
	}
	return kek, nil
}
