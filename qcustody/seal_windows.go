//go:build windows

package qcustody

import (
	"github.com/billgraziano/dpapi"
)

// DPAPISealer seals with Windows DPAPI under the current user.
type DPAPISealer struct{}

var _ Sealer = DPAPISealer{}

func (DPAPISealer) Seal(plaintext []byte) ([]byte, error) {
	return dpapi.EncryptBytes(plaintext)
}

func (DPAPISealer) Unseal(sealed []byte) ([]byte, error) {
	return dpapi.DecryptBytes(sealed)
}

func platformSealer(dir string) (Sealer, error) {
	return DPAPISealer{}, nil
}
