// Package qmock provides in-memory test doubles for the host capabilities.
package qmock

import (
	"sync"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qstore"
)

// TestPolicy uses the smallest key size crypto/rsa generates, for fast tests.
var TestPolicy = qcustody.Policy{Bits: 1024}

// MemoryHost is a host handle backed by memory. Every preference store is a
// FailingDataStore over a MemoryDataStore so tests can inject faults.
type MemoryHost struct {
	App string

	// Keys is the custodian handed out by Custodian.
	Keys *qcustody.MemoryCustodian

	// FoldCase makes preference stores created after it is set ignore key case.
	FoldCase bool

	mu           sync.Mutex
	stores       map[string]*FailingDataStore
	prefErr      error
	custodianErr error
}

// NewMemoryHost returns a host for appID with an empty custodian.
func NewMemoryHost(appID string) *MemoryHost {
	return &MemoryHost{
		App:    appID,
		Keys:   qcustody.NewMemoryCustodian(),
		stores: make(map[string]*FailingDataStore),
	}
}

func (h *MemoryHost) AppID() string {
	return h.App
}

func (h *MemoryHost) Preferences(name string) (qstore.DataStore, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.prefErr != nil {
		return nil, h.prefErr
	}
	return h.store(name), nil
}

func (h *MemoryHost) Custodian() (qcustody.Custodian, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.custodianErr != nil {
		return nil, h.custodianErr
	}
	return h.Keys, nil
}

// Store returns the named preference store, creating it if needed.
func (h *MemoryHost) Store(name string) *FailingDataStore {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.store(name)
}

func (h *MemoryHost) store(name string) *FailingDataStore {
	s, ok := h.stores[name]
	if !ok {
		inner := NewMemoryDataStore(name)
		if h.FoldCase {
			inner = NewFoldingDataStore(name)
		}
		s = NewFailingDataStore(inner)
		h.stores[name] = s
	}
	return s
}

// FailPreferences makes Preferences return err; nil clears it.
func (h *MemoryHost) FailPreferences(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.prefErr = err
}

// FailCustodian makes Custodian return err; nil clears it.
func (h *MemoryHost) FailCustodian(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.custodianErr = err
}
