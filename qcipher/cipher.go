// Package qcipher encrypts credential bytes to a custodian key.
//
// Secrets that fit under the RSA-OAEP limit of the key are encrypted
// directly. Larger secrets are sealed with AES-256-GCM under a random key
// which is then wrapped with RSA-OAEP. The key alias is bound to both as the
// OAEP label and the GCM additional data.
package qcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log/slog"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
)

const symmetricKeySize = 32

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
}

// Service is stateless and safe for concurrent use.
type Service struct {
	log *slog.Logger
}

func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{log: opts.Logger}
}

// SchemeFor reports the scheme Encrypt uses for a secret of size n under pub.
func SchemeFor(pub *rsa.PublicKey, n int) qdef.Scheme {
	if n <= qcustody.MaxPlaintext(pub) {
		return qdef.SchemeDirect
	}
	return qdef.SchemeHybrid
}

// Encrypt produces a fresh blob for plaintext under key.
func (s *Service) Encrypt(key qcustody.KeyHandle, plaintext []byte) (qdef.EncryptedBlob, error) {
	const op = "qcipher.encrypt"
	alias := key.Alias()
	label := []byte(alias)
	pub := key.Public()

	if SchemeFor(pub, len(plaintext)) == qdef.SchemeDirect {
		ct, err := qcustody.EncryptOAEP(pub, plaintext, label)
		if err != nil {
			return qdef.EncryptedBlob{}, qdef.Wrap(qdef.KindEncryptionFailure, op, alias, err)
		}
		s.log.Debug("encrypted", "alias", alias, "scheme", qdef.SchemeDirect)
		return qdef.EncryptedBlob{
			Version:    qdef.BlobVersion,
			Scheme:     qdef.SchemeDirect,
			Ciphertext: ct,
		}, nil
	}

	dek := make([]byte, symmetricKeySize)
	defer zeroize(dek)
	if _, err := rand.Read(dek); err != nil {
		return qdef.EncryptedBlob{}, qdef.Errorf(qdef.KindEncryptionFailure, op, alias, "generate key: %w", err)
	}
	nonce := make([]byte, qdef.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return qdef.EncryptedBlob{}, qdef.Errorf(qdef.KindEncryptionFailure, op, alias, "generate nonce: %w", err)
	}
	gcm, err := newGCM(dek)
	if err != nil {
		return qdef.EncryptedBlob{}, qdef.Wrap(qdef.KindEncryptionFailure, op, alias, err)
	}
	ct := gcm.Seal(nil, nonce, plaintext, label)

	wrapped, err := qcustody.EncryptOAEP(pub, dek, label)
	if err != nil {
		return qdef.EncryptedBlob{}, qdef.Errorf(qdef.KindEncryptionFailure, op, alias, "wrap key: %w", err)
	}
	s.log.Debug("encrypted", "alias", alias, "scheme", qdef.SchemeHybrid)
	return qdef.EncryptedBlob{
		Version:    qdef.BlobVersion,
		Scheme:     qdef.SchemeHybrid,
		WrappedKey: wrapped,
		Nonce:      nonce,
		Ciphertext: ct,
	}, nil
}

// Decrypt recovers the plaintext of blob with key. It never returns partial
// plaintext: any failure yields a nil slice and a DecryptionFailure.
func (s *Service) Decrypt(key qcustody.KeyHandle, blob qdef.EncryptedBlob) ([]byte, error) {
	const op = "qcipher.decrypt"
	alias := key.Alias()
	label := []byte(alias)

	if err := blob.Validate(); err != nil {
		return nil, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, err)
	}

	switch blob.Scheme {
	case qdef.SchemeDirect:
		pt, err := key.Decrypt(blob.Ciphertext, label)
		if err != nil {
			return nil, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, err)
		}
		return pt, nil
	case qdef.SchemeHybrid:
		dek, err := key.Decrypt(blob.WrappedKey, label)
		if err != nil {
			return nil, qdef.Errorf(qdef.KindDecryptionFailure, op, alias, "unwrap key: %w", err)
		}
		defer zeroize(dek)
		if len(dek) != symmetricKeySize {
			return nil, qdef.Errorf(qdef.KindDecryptionFailure, op, alias, "unwrapped key length is %d, but should be %d", len(dek), symmetricKeySize)
		}
		gcm, err := newGCM(dek)
		if err != nil {
			return nil, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, err)
		}
		pt, err := gcm.Open(nil, blob.Nonce, blob.Ciphertext, label)
		if err != nil {
			return nil, qdef.Errorf(qdef.KindDecryptionFailure, op, alias, "open: %w", err)
		}
		return pt, nil
	default:
		return nil, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, qdef.ErrUnknownScheme)
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// zeroize overwrites a byte slice with zeros.
func zeroize(b []byte) {
	clear(b)
}
