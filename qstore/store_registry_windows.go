//go:build windows

package qstore

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// RegistryDataStore implements DataStore using binary values under a Windows
// registry key. Each value write is atomic.
type RegistryDataStore struct {
	hive    registry.Key
	keyPath string
}

var _ DataStore = (*RegistryDataStore)(nil)

// NewRegistryDataStore creates a Windows registry-based data store.
// Path format: "HIVE/path/to/key" where HIVE is one of:
//   - LM or LOCAL_MACHINE for HKEY_LOCAL_MACHINE (services)
//   - CU or CURRENT_USER for HKEY_CURRENT_USER (user apps)
//
// Example: "CU/SOFTWARE/qcred/preferences"
func NewRegistryDataStore(path string) (*RegistryDataStore, error) {
	path = strings.ReplaceAll(path, "/", `\`)

	hiveStr, keyPath, found := strings.Cut(path, `\`)
	if !found {
		return nil, fmt.Errorf("invalid registry path: missing hive prefix (use LM/ or CU/)")
	}

	var hive registry.Key
	switch strings.ToUpper(hiveStr) {
	case "LM", "LOCAL_MACHINE":
		hive = registry.LOCAL_MACHINE
	case "CU", "CURRENT_USER":
		hive = registry.CURRENT_USER
	default:
		return nil, fmt.Errorf("invalid registry hive: %s (use LM, LOCAL_MACHINE, CU, or CURRENT_USER)", hiveStr)
	}

	key, _, err := registry.CreateKey(hive, keyPath, registry.ALL_ACCESS)
	if err != nil {
		return nil, fmt.Errorf("create registry key: %w", err)
	}
	key.Close()

	return &RegistryDataStore{
		hive:    hive,
		keyPath: keyPath,
	}, nil
}

func (s *RegistryDataStore) Get(key string) ([]byte, error) {
	regKey, err := registry.OpenKey(s.hive, s.keyPath, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open registry key: %w", err)
	}
	defer regKey.Close()

	data, _, err := regKey.GetBinaryValue(key)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *RegistryDataStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	regKey, _, err := registry.CreateKey(s.hive, s.keyPath, registry.ALL_ACCESS)
	if err != nil {
		return fmt.Errorf("open registry key: %w", err)
	}
	defer regKey.Close()

	return regKey.SetBinaryValue(key, value)
}

func (s *RegistryDataStore) Delete(key string) error {
	regKey, err := registry.OpenKey(s.hive, s.keyPath, registry.SET_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open registry key: %w", err)
	}
	defer regKey.Close()

	err = regKey.DeleteValue(key)
	if err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *RegistryDataStore) Keys(prefix string) ([]string, error) {
	regKey, err := registry.OpenKey(s.hive, s.keyPath, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open registry key: %w", err)
	}
	defer regKey.Close()

	names, err := regKey.ReadValueNames(0)
	if err != nil {
		return nil, fmt.Errorf("read value names: %w", err)
	}
	var keys []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RegistryDataStore) Path() string {
	var hiveStr string
	switch s.hive {
	case registry.LOCAL_MACHINE:
		hiveStr = "HKLM"
	case registry.CURRENT_USER:
		hiveStr = "HKCU"
	default:
		hiveStr = "UNKNOWN"
	}
	return hiveStr + `\` + s.keyPath
}

func (s *RegistryDataStore) Close() error {
	return nil
}
