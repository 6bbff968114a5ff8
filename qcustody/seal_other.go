//go:build !windows

package qcustody

import "path/filepath"

// KEKFileName is the key-encryption key file kept next to the key database.
const KEKFileName = "custody.kek"

func platformSealer(dir string) (Sealer, error) {
	kek, err := LoadOrCreateKEK(filepath.Join(dir, KEKFileName))
	if err != nil {
		return nil, err
	}
	return NewSecretboxSealer(kek), nil
}
