// Package qkey manages the per-identity key pairs held by the host custodian.
package qkey

import (
	"errors"
	"log/slog"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qlock"
)

// Options configures a Manager.
type Options struct {
	// Policy for new keys. The zero value is qcustody.DefaultPolicy.
	Policy qcustody.Policy
	Logger *slog.Logger
}

// Manager creates, locates, and deletes keys by identity.
// It holds no key state of its own; the custodian is the source of truth.
type Manager struct {
	gate   *qgate.Gate
	policy qcustody.Policy
	log    *slog.Logger
	locks  qlock.Keyed
}

func New(gate *qgate.Gate, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		gate:   gate,
		policy: opts.Policy,
		log:    opts.Logger,
	}
}

func (m *Manager) custodian(op string, id qdef.Identity) (qcustody.Custodian, string, error) {
	h, err := m.gate.RequireReady()
	if err != nil {
		return nil, "", err
	}
	if err := id.Validate(); err != nil {
		return nil, "", qdef.Wrap(qdef.KindInvalidArgument, op, "", err)
	}
	alias := id.Alias(h.AppID())
	c, err := h.Custodian()
	if err != nil {
		return nil, alias, qdef.Wrap(qdef.KindKeyUnavailable, op, alias, err)
	}
	return c, alias, nil
}

// EnsureKey returns the key for id, generating it under the manager policy
// if none exists. Concurrent calls for one identity create at most one key.
// An existing but invalidated key is reported, never replaced.
func (m *Manager) EnsureKey(id qdef.Identity) (qcustody.KeyHandle, error) {
	const op = "qkey.ensure"
	c, alias, err := m.custodian(op, id)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(alias)
	defer unlock()

	h, err := c.Lookup(alias)
	switch {
	case err == nil:
		return h, nil
	case !errors.Is(err, qcustody.ErrKeyNotFound):
		return nil, qdef.Wrap(qdef.KindKeyUnavailable, op, alias, err)
	}

	h, err = c.Generate(alias, m.policy)
	if errors.Is(err, qcustody.ErrKeyExists) {
		// Created by another process between Lookup and Generate.
		h, err = c.Lookup(alias)
	}
	if err != nil {
		return nil, qdef.Wrap(qdef.KindKeyUnavailable, op, alias, err)
	}
	m.log.Info("generated key", "alias", alias, "bits", h.Public().N.BitLen())
	return h, nil
}

// LocateKey returns the existing key for id. It never generates one.
func (m *Manager) LocateKey(id qdef.Identity) (qcustody.KeyHandle, error) {
	const op = "qkey.locate"
	c, alias, err := m.custodian(op, id)
	if err != nil {
		return nil, err
	}
	h, err := c.Lookup(alias)
	if err != nil {
		return nil, qdef.Wrap(qdef.KindKeyUnavailable, op, alias, err)
	}
	return h, nil
}

// DeleteKey removes the key for id. It is idempotent.
func (m *Manager) DeleteKey(id qdef.Identity) error {
	const op = "qkey.delete"
	c, alias, err := m.custodian(op, id)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock(alias)
	defer unlock()

	if err := c.Delete(alias); err != nil {
		return qdef.Wrap(qdef.KindKeyUnavailable, op, alias, err)
	}
	m.log.Debug("deleted key", "alias", alias)
	return nil
}
