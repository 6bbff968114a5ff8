package qcipher_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kardianos/qcred/qcipher"
	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
)

func newKey(t *testing.T, c *qcustody.MemoryCustodian, alias string) qcustody.KeyHandle {
	t.Helper()
	h, err := c.Generate(alias, qcustody.DefaultPolicy)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestRoundTripSizes(t *testing.T) {
	c := qcustody.NewMemoryCustodian()
	key := newKey(t, c, "app.on3gg.me")
	s := qcipher.New(qcipher.Options{})

	tests := []struct {
		name   string
		size   int
		scheme qdef.Scheme
	}{
		{"empty", 0, qdef.SchemeDirect},
		{"short", 7, qdef.SchemeDirect},
		{"direct limit", 190, qdef.SchemeDirect},
		{"one past limit", 191, qdef.SchemeHybrid},
		{"large", 64 << 10, qdef.SchemeHybrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := bytes.Repeat([]byte{0xab}, tt.size)
			blob, err := s.Encrypt(key, pt)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if blob.Scheme != tt.scheme {
				t.Errorf("Scheme = %v, want %v", blob.Scheme, tt.scheme)
			}
			if got := qcipher.SchemeFor(key.Public(), tt.size); got != tt.scheme {
				t.Errorf("SchemeFor() = %v, want %v", got, tt.scheme)
			}
			if tt.size > 0 && bytes.Contains(blob.Ciphertext, pt) {
				t.Error("ciphertext contains plaintext")
			}

			got, err := s.Decrypt(key, blob)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, pt) {
				t.Errorf("Decrypt() returned %d bytes, want %d", len(got), len(pt))
			}
		})
	}
}

func TestEncryptIsFresh(t *testing.T) {
	c := qcustody.NewMemoryCustodian()
	key := newKey(t, c, "a")
	s := qcipher.New(qcipher.Options{})

	for _, size := range []int{10, 500} {
		b1, err := s.Encrypt(key, make([]byte, size))
		if err != nil {
			t.Fatal(err)
		}
		b2, err := s.Encrypt(key, make([]byte, size))
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(b1.Ciphertext, b2.Ciphertext) {
			t.Errorf("size %d: two encryptions produced identical ciphertext", size)
		}
	}
}

func TestDecryptFailures(t *testing.T) {
	c := qcustody.NewMemoryCustodian()
	key := newKey(t, c, "a")
	other := newKey(t, c, "b")
	s := qcipher.New(qcipher.Options{})

	direct, err := s.Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	hybrid, err := s.Encrypt(key, bytes.Repeat([]byte("x"), 300))
	if err != nil {
		t.Fatal(err)
	}

	tamper := func(b qdef.EncryptedBlob, fn func(*qdef.EncryptedBlob)) qdef.EncryptedBlob {
		b.Ciphertext = bytes.Clone(b.Ciphertext)
		b.WrappedKey = bytes.Clone(b.WrappedKey)
		b.Nonce = bytes.Clone(b.Nonce)
		fn(&b)
		return b
	}

	tests := []struct {
		name string
		key  qcustody.KeyHandle
		blob qdef.EncryptedBlob
	}{
		{"direct wrong key", other, direct},
		{"hybrid wrong key", other, hybrid},
		{"direct flipped bit", key, tamper(direct, func(b *qdef.EncryptedBlob) { b.Ciphertext[0] ^= 1 })},
		{"hybrid flipped ciphertext", key, tamper(hybrid, func(b *qdef.EncryptedBlob) { b.Ciphertext[0] ^= 1 })},
		{"hybrid flipped nonce", key, tamper(hybrid, func(b *qdef.EncryptedBlob) { b.Nonce[0] ^= 1 })},
		{"hybrid flipped wrapped key", key, tamper(hybrid, func(b *qdef.EncryptedBlob) { b.WrappedKey[0] ^= 1 })},
		{"unknown scheme", key, tamper(direct, func(b *qdef.EncryptedBlob) { b.Scheme = 9 })},
		{"unknown version", key, tamper(direct, func(b *qdef.EncryptedBlob) { b.Version = 2 })},
		{"short nonce", key, tamper(hybrid, func(b *qdef.EncryptedBlob) { b.Nonce = b.Nonce[:4] })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, err := s.Decrypt(tt.key, tt.blob)
			if !errors.Is(err, qdef.ErrDecryptionFailure) {
				t.Fatalf("Decrypt() error = %v, want ErrDecryptionFailure", err)
			}
			if pt != nil {
				t.Errorf("Decrypt() returned %d bytes on failure", len(pt))
			}
		})
	}
}

func TestAliasBinding(t *testing.T) {
	// Two handles on the same key pair but different aliases must not
	// decrypt each other's blobs.
	c := qcustody.NewMemoryCustodian()
	key := newKey(t, c, "a")
	s := qcipher.New(qcipher.Options{})

	blob, err := s.Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	moved := relabeled{KeyHandle: key, alias: "b"}
	if _, err := s.Decrypt(moved, blob); !errors.Is(err, qdef.ErrDecryptionFailure) {
		t.Errorf("Decrypt() under another alias error = %v, want ErrDecryptionFailure", err)
	}
}

type relabeled struct {
	qcustody.KeyHandle
	alias string
}

func (r relabeled) Alias() string { return r.alias }

func TestDecryptInvalidatedKey(t *testing.T) {
	c := qcustody.NewMemoryCustodian()
	key := newKey(t, c, "a")
	s := qcipher.New(qcipher.Options{})

	blob, err := s.Encrypt(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	c.Invalidate("a")
	pt, err := s.Decrypt(key, blob)
	if !errors.Is(err, qdef.ErrDecryptionFailure) || !errors.Is(err, qcustody.ErrKeyInvalidated) {
		t.Fatalf("Decrypt() error = %v, want DecryptionFailure wrapping ErrKeyInvalidated", err)
	}
	if pt != nil {
		t.Error("Decrypt() returned plaintext with invalidated key")
	}
}
