// Package qhost builds the production host handle: preference stores and a
// key custodian rooted in a per-application data directory.
package qhost

import (
	"fmt"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/kardianos/qcred/qdef"
)

// Preference store kinds.
const (
	PreferencesConfig   = "config"
	PreferencesFile     = "file"
	PreferencesBolt     = "bolt"
	PreferencesRegistry = "registry"
)

// Custodian kinds.
const (
	CustodianSealed  = "sealed"
	CustodianKeyring = "keyring"
)

var (
	preferenceKinds = []string{PreferencesConfig, PreferencesFile, PreferencesBolt, PreferencesRegistry}
	custodianKinds  = []string{CustodianSealed, CustodianKeyring}
)

// Config selects where a host keeps its data.
type Config struct {
	AppID string `env:"QCRED_APP_ID" envDefault:"qcred"`

	// DataDir defaults to a per-user directory for AppID.
	DataDir string `env:"QCRED_DATA_DIR"`

	Preferences     string `env:"QCRED_PREFERENCES"      envDefault:"config"`
	PreferencesName string `env:"QCRED_PREFERENCES_NAME" envDefault:"qcred"`

	Custodian       string `env:"QCRED_CUSTODIAN"         envDefault:"sealed"`
	KeyringBackend  string `env:"QCRED_KEYRING_BACKEND"`
	KeyringPassword string `env:"QCRED_KEYRING_PASSWORD"`
}

// ConfigFromEnv loads configuration from environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// configFromMap parses configuration from an explicit environment.
func configFromMap(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the app ID and store kinds.
func (c Config) Validate() error {
	if err := qdef.ValidateAppID(c.AppID); err != nil {
		return err
	}
	if !slices.Contains(preferenceKinds, c.Preferences) {
		return fmt.Errorf("unknown preferences kind %q (use one of %v)", c.Preferences, preferenceKinds)
	}
	if !slices.Contains(custodianKinds, c.Custodian) {
		return fmt.Errorf("unknown custodian kind %q (use one of %v)", c.Custodian, custodianKinds)
	}
	if err := qdef.ValidateAppID(c.PreferencesName); err != nil {
		return fmt.Errorf("preferences name: %w", err)
	}
	return nil
}
