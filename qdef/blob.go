package qdef

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Scheme identifies how an EncryptedBlob was produced.
type Scheme uint8

const (
	// SchemeDirect encrypts the secret with RSA-OAEP-SHA256 under the key handle.
	SchemeDirect Scheme = 1

	// SchemeHybrid encrypts the secret with AES-256-GCM under a random key,
	// and wraps that key with RSA-OAEP-SHA256.
	SchemeHybrid Scheme = 2
)

func (s Scheme) String() string {
	switch s {
	case SchemeDirect:
		return "rsa-oaep-sha256"
	case SchemeHybrid:
		return "rsa-oaep-sha256+aes-256-gcm"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// BlobVersion is the current EncryptedBlob layout version.
const BlobVersion = 1

// Hybrid scheme field sizes.
const (
	NonceSize = 12
	TagSize   = 16
)

var (
	// ErrCorruptBlob is returned when stored bytes are not a well formed EncryptedBlob.
	ErrCorruptBlob = errors.New("qcred: corrupt encrypted blob")

	// ErrUnknownScheme is returned for a blob version or scheme tag this build does not know.
	ErrUnknownScheme = errors.New("qcred: unknown encryption scheme")
)

// EncryptedBlob is ciphertext plus the metadata needed to decrypt it.
// A blob is never modified after creation.
type EncryptedBlob struct {
	Version    uint8  `cbor:"1,keyasint"`
	Scheme     Scheme `cbor:"2,keyasint"`
	WrappedKey []byte `cbor:"3,keyasint,omitempty"` // Hybrid only.
	Nonce      []byte `cbor:"4,keyasint,omitempty"` // Hybrid only.
	Ciphertext []byte `cbor:"5,keyasint"`
}

var blobDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Validate checks the structural shape of the blob for its scheme.
func (b EncryptedBlob) Validate() error {
	if b.Version != BlobVersion {
		return fmt.Errorf("%w: version %d", ErrUnknownScheme, b.Version)
	}
	switch b.Scheme {
	case SchemeDirect:
		if len(b.Ciphertext) == 0 {
			return fmt.Errorf("%w: empty ciphertext", ErrCorruptBlob)
		}
		if len(b.WrappedKey) != 0 || len(b.Nonce) != 0 {
			return fmt.Errorf("%w: direct blob carries hybrid fields", ErrCorruptBlob)
		}
	case SchemeHybrid:
		if len(b.WrappedKey) == 0 {
			return fmt.Errorf("%w: missing wrapped key", ErrCorruptBlob)
		}
		if len(b.Nonce) != NonceSize {
			return fmt.Errorf("%w: nonce length is %d, but should be %d", ErrCorruptBlob, len(b.Nonce), NonceSize)
		}
		if len(b.Ciphertext) < TagSize {
			return fmt.Errorf("%w: data is too small to contain a tag, length = %d", ErrCorruptBlob, len(b.Ciphertext))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownScheme, b.Scheme)
	}
	return nil
}

// MarshalBlob encodes a blob for the preference store.
func MarshalBlob(b EncryptedBlob) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return cbor.Marshal(b)
}

// UnmarshalBlob decodes and validates stored bytes.
func UnmarshalBlob(data []byte) (EncryptedBlob, error) {
	if len(data) == 0 {
		return EncryptedBlob{}, fmt.Errorf("%w: empty value", ErrCorruptBlob)
	}
	var b EncryptedBlob
	if err := blobDecMode.Unmarshal(data, &b); err != nil {
		return EncryptedBlob{}, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	if err := b.Validate(); err != nil {
		return EncryptedBlob{}, err
	}
	return b, nil
}
