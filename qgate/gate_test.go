package qgate_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qmock"
)

func TestGateRequiresInitialize(t *testing.T) {
	g := qgate.New(nil)
	if g.Ready() {
		t.Fatal("Ready() = true before Initialize")
	}
	if g.State() != qgate.StateUninitialized {
		t.Errorf("State() = %v, want uninitialized", g.State())
	}
	if _, err := g.RequireReady(); !errors.Is(err, qdef.ErrNotInitialized) {
		t.Fatalf("RequireReady() error = %v, want ErrNotInitialized", err)
	}

	h := qmock.NewMemoryHost("app")
	if err := g.Initialize(h); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	got, err := g.RequireReady()
	if err != nil {
		t.Fatalf("RequireReady() error = %v", err)
	}
	if got != h {
		t.Error("RequireReady() returned a different handle")
	}
	if g.State() != qgate.StateReady {
		t.Errorf("State() = %v, want ready", g.State())
	}
}

func TestGateFirstInitializeWins(t *testing.T) {
	g := qgate.New(nil)
	first := qmock.NewMemoryHost("first")
	second := qmock.NewMemoryHost("second")

	if err := g.Initialize(first); err != nil {
		t.Fatal(err)
	}
	if err := g.Initialize(second); err != nil {
		t.Fatalf("second Initialize() error = %v, want nil", err)
	}
	h, _ := g.RequireReady()
	if h.AppID() != "first" {
		t.Errorf("AppID() = %q, want %q", h.AppID(), "first")
	}
}

func TestGateRejectsBadHandle(t *testing.T) {
	tests := []struct {
		name    string
		handle  qgate.Handle
		wantErr error
	}{
		{"nil", nil, qgate.ErrNilHandle},
		{"empty app id", qmock.NewMemoryHost(""), qdef.ErrInvalidArgument},
		{"path app id", qmock.NewMemoryHost("../etc"), qdef.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := qgate.New(nil)
			err := g.Initialize(tt.handle)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Initialize() error = %v, want %v", err, tt.wantErr)
			}
			if g.Ready() {
				t.Error("Ready() = true after failed Initialize")
			}
		})
	}
}

func TestGateConcurrentInitialize(t *testing.T) {
	g := qgate.New(nil)
	hosts := make([]*qmock.MemoryHost, 16)
	for i := range hosts {
		hosts[i] = qmock.NewMemoryHost("app")
	}

	var wg sync.WaitGroup
	for _, h := range hosts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Initialize(h); err != nil {
				t.Errorf("Initialize() error = %v", err)
			}
			if _, err := g.RequireReady(); err != nil {
				t.Errorf("RequireReady() after Initialize error = %v", err)
			}
		}()
	}
	wg.Wait()

	h, err := g.RequireReady()
	if err != nil {
		t.Fatal(err)
	}
	var matches int
	for _, m := range hosts {
		if h == qgate.Handle(m) {
			matches++
		}
	}
	if matches != 1 {
		t.Errorf("handle matched %d hosts, want 1", matches)
	}
}
