package qhost

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kardianos/qcred/qcustody"
	"github.com/kardianos/qcred/qstore"
)

func TestConfigFromMap(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    Config
		wantErr bool
	}{
		{
			name:    "defaults",
			environ: map[string]string{},
			want: Config{
				AppID:           "qcred",
				Preferences:     PreferencesConfig,
				PreferencesName: "qcred",
				Custodian:       CustodianSealed,
			},
		},
		{
			name: "overrides",
			environ: map[string]string{
				"QCRED_APP_ID":           "myapp",
				"QCRED_DATA_DIR":         "/tmp/x",
				"QCRED_PREFERENCES":      "bolt",
				"QCRED_PREFERENCES_NAME": "prefs",
				"QCRED_CUSTODIAN":        "keyring",
				"QCRED_KEYRING_BACKEND":  "file",
			},
			want: Config{
				AppID:           "myapp",
				DataDir:         "/tmp/x",
				Preferences:     PreferencesBolt,
				PreferencesName: "prefs",
				Custodian:       CustodianKeyring,
				KeyringBackend:  "file",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := configFromMap(tt.environ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configFromMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("configFromMap() = %+v, want %+v", got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{AppID: "app", Preferences: PreferencesConfig, PreferencesName: "p", Custodian: CustodianSealed}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad app id", func(c *Config) { c.AppID = "../x" }},
		{"bad preferences", func(c *Config) { c.Preferences = "sqlite" }},
		{"bad custodian", func(c *Config) { c.Custodian = "tpm" }},
		{"bad preferences name", func(c *Config) { c.PreferencesName = "a/b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestOpenPreferenceKinds(t *testing.T) {
	for _, kind := range []string{PreferencesConfig, PreferencesFile, PreferencesBolt} {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			h, err := Open(Config{
				AppID:           "app",
				DataDir:         dir,
				Preferences:     kind,
				PreferencesName: "qcred",
				Custodian:       CustodianSealed,
			}, nil)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer h.Close()

			s, err := h.Preferences("qcred")
			if err != nil {
				t.Fatalf("Preferences() error = %v", err)
			}
			again, err := h.Preferences("qcred")
			if err != nil {
				t.Fatal(err)
			}
			if s != again {
				t.Error("Preferences() did not reuse the open store")
			}
			if err := s.Set("k", []byte("v")); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if _, err := h.Preferences("../escape"); err == nil {
				t.Error("Preferences() accepted a path name")
			}

			c, err := h.Custodian()
			if err != nil {
				t.Fatal(err)
			}
			if _, err := c.Lookup("k"); !errors.Is(err, qcustody.ErrKeyNotFound) {
				t.Errorf("Lookup() error = %v, want ErrKeyNotFound", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "custody", "custody.db")); err != nil {
				t.Errorf("custody database missing: %v", err)
			}

			if err := h.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if _, err := h.Preferences("qcred"); !errors.Is(err, qstore.ErrClosed) {
				t.Errorf("Preferences() after Close error = %v, want ErrClosed", err)
			}
		})
	}
}

func TestOpenKeyringFileBackend(t *testing.T) {
	h, err := Open(Config{
		AppID:           "app",
		DataDir:         t.TempDir(),
		Preferences:     PreferencesConfig,
		PreferencesName: "qcred",
		Custodian:       CustodianKeyring,
		KeyringBackend:  "file",
		KeyringPassword: "test-password",
	}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	c, err := h.Custodian()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Generate("app.on3gg.me", qcustody.Policy{Bits: 1024}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := c.Lookup("app.on3gg.me"); err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if err := c.Delete("app.on3gg.me"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete("app.on3gg.me"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	if _, err := Open(Config{AppID: "", Preferences: PreferencesConfig, Custodian: CustodianSealed}, nil); err == nil {
		t.Error("Open() accepted an empty app ID")
	}
}
