// Package qgate holds the process-wide host context handle and reports
// whether the credential store may run.
package qgate

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qstate"
	"github.com/kardianos/qcred/qstore"
)

// ErrNilHandle is returned by Initialize when given no handle.
var ErrNilHandle = errors.New("qgate: nil context handle")

// Handle is the host context: the capabilities the host grants the store.
// The gate borrows it; the host keeps ownership and must keep it valid for
// the life of the process.
type Handle interface {
	// AppID names the owning application and namespaces every alias.
	AppID() string

	// Preferences opens the named persistent key-value store.
	Preferences(name string) (qstore.DataStore, error)

	// Custodian returns the secure key custodian.
	Custodian() (qcustody.Custodian, error)
}

// State of the gate.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

var transitions = []qstate.Transition[State]{
	{From: StateUninitialized, To: StateReady, Name: "initialize"},
}

type box struct {
	h Handle
}

// Gate records the host handle once and hands it out to every operation.
// Reads after initialization are a single atomic load.
type Gate struct {
	machine *qstate.Machine[State]
	handle  atomic.Pointer[box]
	log     *slog.Logger
}

// New returns an uninitialized gate. A nil logger discards output.
func New(logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Gate{log: logger}
	g.machine = qstate.New(StateUninitialized, transitions, func(from, to State, name string) {
		g.log.Info("gate state changed", "from", from, "to", to, "transition", name)
	})
	return g
}

// Initialize records h and moves the gate to Ready.
// The first successful call wins; later calls leave the original handle in
// place and return nil.
func (g *Gate) Initialize(h Handle) error {
	const op = "qgate.initialize"
	if h == nil {
		return qdef.Wrap(qdef.KindInvalidArgument, op, "", ErrNilHandle)
	}
	if err := qdef.ValidateAppID(h.AppID()); err != nil {
		return qdef.Wrap(qdef.KindInvalidArgument, op, "", err)
	}
	if !g.machine.CanTransitionTo(StateReady) {
		g.log.Debug("gate already initialized, keeping original handle")
		return nil
	}
	err := g.machine.Do(StateReady, func() error {
		g.handle.Store(&box{h: h})
		return nil
	})
	if errors.Is(err, qstate.ErrInvalidTransition) {
		// Lost a race with a concurrent Initialize.
		return nil
	}
	return err
}

// RequireReady returns the handle, or ErrNotInitialized before Initialize.
func (g *Gate) RequireReady() (Handle, error) {
	b := g.handle.Load()
	if b == nil {
		return nil, qdef.ErrNotInitialized
	}
	return b.h, nil
}

// State returns the current gate state.
func (g *Gate) State() State {
	return g.machine.Current()
}

// Ready reports whether Initialize has succeeded.
func (g *Gate) Ready() bool {
	return g.machine.Is(StateReady)
}
