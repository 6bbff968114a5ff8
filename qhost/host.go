package qhost

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qstore"
)

// Host is the production qgate.Handle.
type Host struct {
	cfg Config
	dir string
	log *slog.Logger

	custodian qcustody.Custodian

	mu     sync.Mutex
	stores map[string]qstore.DataStore
	closed bool
}

var _ qgate.Handle = (*Host)(nil)

// Open prepares the data directory and opens the custodian.
// Preference stores are opened lazily by name.
func Open(cfg Config, logger *slog.Logger) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dir := cfg.DataDir
	if dir == "" {
		dir = qstore.DefaultDir(cfg.AppID)
	}
	dir = os.ExpandEnv(dir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	h := &Host{
		cfg:    cfg,
		dir:    dir,
		log:    logger,
		stores: make(map[string]qstore.DataStore),
	}
	var err error
	switch cfg.Custodian {
	case CustodianSealed:
		h.custodian, err = qcustody.OpenSealed(filepath.Join(dir, "custody"))
	case CustodianKeyring:
		h.custodian, err = qcustody.OpenKeyring(qcustody.KeyringConfig{
			ServiceName:  cfg.AppID,
			Backend:      cfg.KeyringBackend,
			FileDir:      filepath.Join(dir, "keyring"),
			FilePassword: cfg.KeyringPassword,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open custodian: %w", err)
	}
	logger.Debug("host opened", "dir", dir, "preferences", cfg.Preferences, "custodian", cfg.Custodian)
	return h, nil
}

func (h *Host) AppID() string {
	return h.cfg.AppID
}

// Dir returns the resolved data directory.
func (h *Host) Dir() string {
	return h.dir
}

// Config returns the configuration the host was opened with.
func (h *Host) Config() Config {
	return h.cfg
}

func (h *Host) Custodian() (qcustody.Custodian, error) {
	return h.custodian, nil
}

// Preferences opens, or returns the already open, store for name.
func (h *Host) Preferences(name string) (qstore.DataStore, error) {
	if err := qdef.ValidateAppID(name); err != nil {
		return nil, fmt.Errorf("preferences name: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, qstore.ErrClosed
	}
	if s, ok := h.stores[name]; ok {
		return s, nil
	}
	s, err := h.openStore(name)
	if err != nil {
		return nil, fmt.Errorf("open preferences %s: %w", name, err)
	}
	h.stores[name] = s
	h.log.Debug("opened preferences", "name", name, "path", s.Path())
	return s, nil
}

func (h *Host) openStore(name string) (qstore.DataStore, error) {
	switch h.cfg.Preferences {
	case PreferencesConfig:
		return qstore.NewConfigDataStore(filepath.Join(h.dir, name+".conf"))
	case PreferencesFile:
		return qstore.NewFileDataStore(filepath.Join(h.dir, name))
	case PreferencesBolt:
		return qstore.NewBoltDataStore(filepath.Join(h.dir, name+".db"), qstore.DefaultBoltBucket)
	case PreferencesRegistry:
		s, err := qstore.NewRegistryDataStore(qstore.DefaultRegistryPath(h.cfg.AppID) + `\` + name)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown preferences kind %q", h.cfg.Preferences)
	}
}

// Close closes every open store and the custodian.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	for name, s := range h.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close preferences %s: %w", name, err))
		}
	}
	if c, ok := h.custodian.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close custodian: %w", err))
		}
	}
	return errors.Join(errs...)
}
