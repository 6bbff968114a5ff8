// Package qcred is a secure credential store. Secrets are encrypted with
// per-identity keys held by a host key custodian and the ciphertext is kept
// in a host preference store; plaintext never reaches durable storage.
//
// A host initializes the process once with Initialize, then uses Default or
// NewEntry. Programs that manage their own lifecycle construct a qgate.Gate
// and a Store directly.
package qcred

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kardianos/qcred/qblob"
	"github.com/kardianos/qcred/qcipher"
	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qkey"
	"github.com/kardianos/qcred/qlock"
)

// VendorName identifies this credential store implementation.
const VendorName = "qcred, host custodian with encrypted preferences"

// Options configures a Store.
type Options struct {
	Logger *slog.Logger

	// Preferences names the host preference store holding blobs.
	// Empty uses qblob.DefaultName.
	Preferences string

	// Policy for new keys. The zero value is qcustody.DefaultPolicy.
	Policy qcustody.Policy
}

// Store implements set, get, delete, and find over the gate's host context.
type Store struct {
	gate   *qgate.Gate
	keys   *qkey.Manager
	cipher *qcipher.Service
	blobs  *qblob.Store
	locks  qlock.Keyed
	log    *slog.Logger
	id     string
}

// New builds a Store on gate. The gate may be initialized before or after.
func New(gate *qgate.Gate, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		gate:   gate,
		keys:   qkey.New(gate, qkey.Options{Policy: opts.Policy, Logger: opts.Logger}),
		cipher: qcipher.New(qcipher.Options{Logger: opts.Logger}),
		blobs:  qblob.New(gate, qblob.Options{Name: opts.Preferences, Logger: opts.Logger}),
		log:    opts.Logger,
		id:     fmt.Sprintf("qcred store, created %s", time.Now().UTC().Format(time.RFC3339Nano)),
	}
}

// Vendor describes the implementation.
func (s *Store) Vendor() string {
	return VendorName
}

// ID distinguishes this store instance from others in the process.
func (s *Store) ID() string {
	return s.id
}

// Gate returns the gate the store runs on.
func (s *Store) Gate() *qgate.Gate {
	return s.gate
}

func (s *Store) alias(op string, id qdef.Identity) (string, error) {
	h, err := s.gate.RequireReady()
	if err != nil {
		return "", err
	}
	if err := id.Validate(); err != nil {
		return "", qdef.Wrap(qdef.KindInvalidArgument, op, "", err)
	}
	alias := id.Alias(h.AppID())
	if len(alias) > qdef.MaxAliasLen {
		return "", qdef.Wrap(qdef.KindInvalidArgument, op, "", qdef.ErrAliasTooLong)
	}
	return alias, nil
}

// SetPassword stores password for (service, account), replacing any prior value.
func (s *Store) SetPassword(service, account, password string) error {
	return s.setSecret("qcred.set_password", qdef.Identity{Service: service, Account: account}, []byte(password))
}

// SetSecret stores arbitrary bytes for (service, account).
func (s *Store) SetSecret(service, account string, secret []byte) error {
	return s.setSecret("qcred.set_secret", qdef.Identity{Service: service, Account: account}, secret)
}

func (s *Store) setSecret(op string, id qdef.Identity, secret []byte) error {
	alias, err := s.alias(op, id)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(alias)
	defer unlock()

	key, err := s.keys.EnsureKey(id)
	if err != nil {
		return err
	}
	blob, err := s.cipher.Encrypt(key, secret)
	if err != nil {
		return err
	}
	// Put replaces atomically; on failure the previous blob is untouched.
	if err := s.blobs.Put(alias, blob); err != nil {
		return err
	}
	s.log.Info("credential stored", "alias", alias, "scheme", blob.Scheme)
	return nil
}

// GetPassword returns the password for (service, account).
// It returns BadEncoding if the stored secret is not UTF-8.
func (s *Store) GetPassword(service, account string) (string, error) {
	const op = "qcred.get_password"
	id := qdef.Identity{Service: service, Account: account}
	secret, err := s.getSecret(op, id)
	if err != nil {
		return "", err
	}
	defer clear(secret)
	if !utf8.Valid(secret) {
		return "", qdef.Wrap(qdef.KindBadEncoding, op, id.Alias(s.appID()), nil)
	}
	return string(secret), nil
}

// GetSecret returns the stored bytes for (service, account).
func (s *Store) GetSecret(service, account string) ([]byte, error) {
	return s.getSecret("qcred.get_secret", qdef.Identity{Service: service, Account: account})
}

func (s *Store) getSecret(op string, id qdef.Identity) ([]byte, error) {
	alias, err := s.alias(op, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(alias)
	defer unlock()

	blob, err := s.blobs.Get(alias)
	if err != nil {
		return nil, err
	}
	key, err := s.keys.LocateKey(id)
	if err != nil {
		if errors.Is(err, qcustody.ErrKeyNotFound) {
			s.log.Warn("orphaned credential blob", "alias", alias)
			return nil, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, err)
		}
		return nil, err
	}
	return s.cipher.Decrypt(key, blob)
}

// DeletePassword removes the credential and its key. Deleting a credential
// that does not exist succeeds.
func (s *Store) DeletePassword(service, account string) error {
	const op = "qcred.delete_password"
	id := qdef.Identity{Service: service, Account: account}
	alias, err := s.alias(op, id)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(alias)
	defer unlock()

	// Blob first: a leftover key without a blob is harmless and reused by the next set.
	if err := s.blobs.Delete(alias); err != nil {
		return err
	}
	if err := s.keys.DeleteKey(id); err != nil {
		return err
	}
	s.log.Info("credential deleted", "alias", alias)
	return nil
}

// Exists reports whether a credential is stored for (service, account)
// without decrypting it.
func (s *Store) Exists(service, account string) (bool, error) {
	const op = "qcred.exists"
	id := qdef.Identity{Service: service, Account: account}
	alias, err := s.alias(op, id)
	if err != nil {
		return false, err
	}
	unlock := s.locks.RLock(alias)
	defer unlock()

	return s.blobs.Exists(alias)
}

// FindCredentials returns the sorted accounts that have a credential for service.
// Nothing is decrypted.
func (s *Store) FindCredentials(service string) ([]string, error) {
	const op = "qcred.find_credentials"
	h, err := s.gate.RequireReady()
	if err != nil {
		return nil, err
	}
	if service == "" {
		return nil, qdef.Wrap(qdef.KindInvalidArgument, op, "", qdef.ErrInvalidIdentity)
	}
	appID := h.AppID()
	aliases, err := s.blobs.List(qdef.ServicePrefix(appID, service))
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		a, id, err := qdef.ParseAlias(alias)
		if err != nil || a != strings.ToLower(appID) || id.Service != service {
			s.log.Warn("skipping foreign preference key", "key", alias)
			continue
		}
		accounts = append(accounts, id.Account)
	}
	sort.Strings(accounts)
	return accounts, nil
}

func (s *Store) appID() string {
	h, err := s.gate.RequireReady()
	if err != nil {
		return ""
	}
	return h.AppID()
}
