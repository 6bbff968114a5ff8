package qcred

import (
	"fmt"
	"sync"

	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
)

// InitVersion is the host handshake version this build accepts.
const InitVersion = 1

var (
	defaultGate  = qgate.New(nil)
	defaultOnce  sync.Once
	defaultStore *Store
)

// Initialize hands the process-wide default gate its host context.
// The handle is borrowed: the host keeps ownership and must keep it valid
// for the life of the process. Only the first successful call takes effect.
func Initialize(h qgate.Handle) error {
	return InitializeVersion(InitVersion, h)
}

// InitializeVersion is Initialize for hosts that pass their handshake version.
func InitializeVersion(version int, h qgate.Handle) error {
	if version != InitVersion {
		return qdef.Wrap(qdef.KindInvalidArgument, "qcred.initialize", "", fmt.Errorf("unsupported handshake version %d, want %d", version, InitVersion))
	}
	return defaultGate.Initialize(h)
}

// Default returns the store bound to the process-wide gate.
func Default() *Store {
	defaultOnce.Do(func() {
		defaultStore = New(defaultGate, Options{})
	})
	return defaultStore
}

// NewEntry returns a credential slot on the default store.
func NewEntry(service, account string) (*Entry, error) {
	return Default().Entry(service, account)
}
