package qdef

import (
	"errors"
	"fmt"
)

// Kind classifies a credential store failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotInitialized
	KindKeyUnavailable
	KindEncryptionFailure
	KindDecryptionFailure
	KindTooLarge
	KindStorageFailure
	KindNotFound
	KindBadEncoding
	KindInvalidArgument
)

var (
	// ErrNotInitialized is returned by every operation before the context gate is ready.
	ErrNotInitialized = errors.New("qcred: not initialized")

	// ErrKeyUnavailable is returned when the custodian cannot create or locate a valid key.
	ErrKeyUnavailable = errors.New("qcred: key unavailable")

	// ErrEncryptionFailure is returned when a secret cannot be encrypted.
	ErrEncryptionFailure = errors.New("qcred: encryption failure")

	// ErrDecryptionFailure is returned when a stored blob cannot be decrypted.
	ErrDecryptionFailure = errors.New("qcred: decryption failure")

	// ErrTooLarge is reserved for secrets over the asymmetric limit.
	// The hybrid scheme means the cipher service does not produce it.
	ErrTooLarge = errors.New("qcred: secret too large")

	// ErrStorageFailure is returned when the preference store fails.
	ErrStorageFailure = errors.New("qcred: storage failure")

	// ErrNotFound is returned when no credential exists for an identity.
	ErrNotFound = errors.New("qcred: no credential found")

	// ErrBadEncoding is returned when a stored secret is not valid UTF-8 but was read as a password.
	ErrBadEncoding = errors.New("qcred: secret is not valid UTF-8")

	// ErrInvalidArgument is returned for malformed identities and options.
	ErrInvalidArgument = errors.New("qcred: invalid argument")
)

var kindErrors = [...]error{
	KindUnknown:           errors.New("qcred: unknown failure"),
	KindNotInitialized:    ErrNotInitialized,
	KindKeyUnavailable:    ErrKeyUnavailable,
	KindEncryptionFailure: ErrEncryptionFailure,
	KindDecryptionFailure: ErrDecryptionFailure,
	KindTooLarge:          ErrTooLarge,
	KindStorageFailure:    ErrStorageFailure,
	KindNotFound:          ErrNotFound,
	KindBadEncoding:       ErrBadEncoding,
	KindInvalidArgument:   ErrInvalidArgument,
}

func (k Kind) String() string {
	switch k {
	case KindNotInitialized:
		return "not-initialized"
	case KindKeyUnavailable:
		return "key-unavailable"
	case KindEncryptionFailure:
		return "encryption-failure"
	case KindDecryptionFailure:
		return "decryption-failure"
	case KindTooLarge:
		return "too-large"
	case KindStorageFailure:
		return "storage-failure"
	case KindNotFound:
		return "not-found"
	case KindBadEncoding:
		return "bad-encoding"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// Sentinel returns the package sentinel for the kind.
func (k Kind) Sentinel() error {
	if int(k) >= len(kindErrors) {
		return kindErrors[KindUnknown]
	}
	return kindErrors[k]
}

// Error is the typed outcome returned by every layer.
// It matches both its kind sentinel and the wrapped cause with errors.Is.
type Error struct {
	Kind  Kind
	Op    string // Operation, e.g. "qkey.ensure".
	Alias string // May be empty.
	Err   error  // Underlying cause, may be nil.
}

func (e *Error) Error() string {
	msg := e.Kind.Sentinel().Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Alias != "" {
		msg += " (" + e.Alias + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// Wrap tags err with kind. Errors that already report NotInitialized pass through unchanged.
func Wrap(kind Kind, op, alias string, err error) error {
	if errors.Is(err, ErrNotInitialized) {
		return err
	}
	return &Error{Kind: kind, Op: op, Alias: alias, Err: err}
}

// Errorf is Wrap with a formatted cause.
func Errorf(kind Kind, op, alias, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Alias: alias, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k := KindNotInitialized; int(k) < len(kindErrors); k++ {
		if errors.Is(err, kindErrors[k]) {
			return k
		}
	}
	return KindUnknown
}
