// Package qblob persists encrypted blobs in a host preference store.
package qblob

import (
	"errors"
	"log/slog"

	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qstore"
)

// DefaultName is the preference store used when Options.Name is empty.
const DefaultName = "qcred"

// Options configures a Store.
type Options struct {
	// Name of the host preference store.
	Name   string
	Logger *slog.Logger
}

// Store maps aliases to encrypted blobs. The preference store is borrowed
// from the gate handle on each call.
type Store struct {
	gate *qgate.Gate
	name string
	log  *slog.Logger
}

func New(gate *qgate.Gate, opts Options) *Store {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Store{gate: gate, name: opts.Name, log: opts.Logger}
}

func (s *Store) prefs(op, alias string) (qstore.DataStore, error) {
	h, err := s.gate.RequireReady()
	if err != nil {
		return nil, err
	}
	ds, err := h.Preferences(s.name)
	if err != nil {
		return nil, qdef.Wrap(qdef.KindStorageFailure, op, alias, err)
	}
	return ds, nil
}

// Put replaces the blob for alias atomically.
func (s *Store) Put(alias string, blob qdef.EncryptedBlob) error {
	const op = "qblob.put"
	data, err := qdef.MarshalBlob(blob)
	if err != nil {
		return qdef.Wrap(qdef.KindEncryptionFailure, op, alias, err)
	}
	ds, err := s.prefs(op, alias)
	if err != nil {
		return err
	}
	if err := ds.Set(alias, data); err != nil {
		return qdef.Wrap(qdef.KindStorageFailure, op, alias, err)
	}
	s.log.Debug("stored blob", "alias", alias, "scheme", blob.Scheme, "size", len(data))
	return nil
}

// Get returns the blob for alias, NotFound if absent, or DecryptionFailure if
// the stored bytes are not a valid blob.
func (s *Store) Get(alias string) (qdef.EncryptedBlob, error) {
	const op = "qblob.get"
	ds, err := s.prefs(op, alias)
	if err != nil {
		return qdef.EncryptedBlob{}, err
	}
	data, err := ds.Get(alias)
	switch {
	case errors.Is(err, qstore.ErrNotFound):
		return qdef.EncryptedBlob{}, qdef.Wrap(qdef.KindNotFound, op, alias, nil)
	case err != nil:
		return qdef.EncryptedBlob{}, qdef.Wrap(qdef.KindStorageFailure, op, alias, err)
	}
	blob, err := qdef.UnmarshalBlob(data)
	if err != nil {
		s.log.Warn("stored blob is corrupt", "alias", alias, "error", err)
		return qdef.EncryptedBlob{}, qdef.Wrap(qdef.KindDecryptionFailure, op, alias, err)
	}
	return blob, nil
}

// Exists reports whether a value is stored for alias without decoding it.
func (s *Store) Exists(alias string) (bool, error) {
	const op = "qblob.exists"
	ds, err := s.prefs(op, alias)
	if err != nil {
		return false, err
	}
	_, err = ds.Get(alias)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, qstore.ErrNotFound):
		return false, nil
	default:
		return false, qdef.Wrap(qdef.KindStorageFailure, op, alias, err)
	}
}

// Delete removes the blob for alias. A missing alias is not an error.
func (s *Store) Delete(alias string) error {
	const op = "qblob.delete"
	ds, err := s.prefs(op, alias)
	if err != nil {
		return err
	}
	if err := ds.Delete(alias); err != nil {
		return qdef.Wrap(qdef.KindStorageFailure, op, alias, err)
	}
	s.log.Debug("deleted blob", "alias", alias)
	return nil
}

// List returns the sorted aliases that start with prefix.
func (s *Store) List(prefix string) ([]string, error) {
	const op = "qblob.list"
	ds, err := s.prefs(op, "")
	if err != nil {
		return nil, err
	}
	keys, err := ds.Keys(prefix)
	if err != nil {
		return nil, qdef.Wrap(qdef.KindStorageFailure, op, "", err)
	}
	return keys, nil
}
