package qdef

import (
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// aliasSep separates the app ID, service and account in an alias.
// It is outside the base32 alphabet, so aliases split unambiguously.
const aliasSep = "."

// aliasEncoding is lowercase unpadded base32. Registry value names, NTFS and
// APFS file names and some keyrings fold case, so an alias must not depend on it.
var aliasEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// MaxAliasLen is the longest alias every preference store and custodian accepts.
// Base32 grows each segment by 8/5, so service and account together may
// encode roughly 150 bytes.
const MaxAliasLen = 255

// validAppIDRegex matches valid application identifiers.
var validAppIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

var (
	// ErrInvalidIdentity is returned when a service or account is empty.
	ErrInvalidIdentity = errors.New("qcred: service and account must not be empty")

	// ErrAliasTooLong is returned when service and account encode to more than MaxAliasLen bytes.
	ErrAliasTooLong = errors.New("qcred: service and account are too long")

	// ErrInvalidAlias is returned when a string is not an alias produced by Identity.Alias.
	ErrInvalidAlias = errors.New("qcred: malformed alias")
)

// ValidateAppID checks that an application identifier is safe to use as an alias
// namespace, file name, and registry key.
func ValidateAppID(appID string) error {
	if appID == "" {
		return fmt.Errorf("app ID cannot be empty")
	}
	if !validAppIDRegex.MatchString(appID) {
		return fmt.Errorf("invalid app ID %q: must contain only alphanumeric characters, hyphens, and underscores, start with alphanumeric, and be 1-64 characters", appID)
	}
	return nil
}

// Identity names a credential slot.
type Identity struct {
	Service string
	Account string
}

func (id Identity) String() string {
	return id.Service + "/" + id.Account
}

// Validate reports ErrInvalidIdentity if either component is empty.
func (id Identity) Validate() error {
	if id.Service == "" || id.Account == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// Alias derives the custodian and blob store key for the identity within appID.
// The result is lowercase, deterministic and reversible with ParseAlias.
// App IDs that differ only in case share a namespace.
func (id Identity) Alias(appID string) string {
	return ServicePrefix(appID, id.Service) + aliasEncoding.EncodeToString([]byte(id.Account))
}

// ServicePrefix returns the prefix shared by every alias of service within appID.
func ServicePrefix(appID, service string) string {
	return strings.ToLower(appID) + aliasSep + aliasEncoding.EncodeToString([]byte(service)) + aliasSep
}

// ParseAlias reverses Identity.Alias.
func ParseAlias(alias string) (appID string, id Identity, err error) {
	parts := strings.Split(alias, aliasSep)
	if len(parts) != 3 || parts[0] == "" {
		return "", Identity{}, ErrInvalidAlias
	}
	if parts[0] != strings.ToLower(parts[0]) {
		return "", Identity{}, fmt.Errorf("%w: app ID is not lowercase", ErrInvalidAlias)
	}
	service, err := decodeSegment(parts[1])
	if err != nil {
		return "", Identity{}, fmt.Errorf("%w: service: %v", ErrInvalidAlias, err)
	}
	account, err := decodeSegment(parts[2])
	if err != nil {
		return "", Identity{}, fmt.Errorf("%w: account: %v", ErrInvalidAlias, err)
	}
	return parts[0], Identity{Service: string(service), Account: string(account)}, nil
}

// decodeSegment accepts only the canonical encoding, so each identity has exactly one alias.
func decodeSegment(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty segment")
	}
	b, err := aliasEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if aliasEncoding.EncodeToString(b) != s {
		return nil, errors.New("non-canonical encoding")
	}
	return b, nil
}
