package qdef

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStorageFailure, "qblob.put", "app.a.b", cause)

	if !errors.Is(err, ErrStorageFailure) {
		t.Error("errors.Is(err, ErrStorageFailure) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(err, ErrNotFound) = true")
	}
	if KindOf(err) != KindStorageFailure {
		t.Errorf("KindOf() = %v, want storage-failure", KindOf(err))
	}
	want := "qblob.put: qcred: storage failure (app.a.b): disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapOuterKindWins(t *testing.T) {
	inner := Wrap(KindKeyUnavailable, "qkey.locate", "a", errors.New("gone"))
	outer := Wrap(KindDecryptionFailure, "qcred.get", "a", inner)
	if KindOf(outer) != KindDecryptionFailure {
		t.Errorf("KindOf() = %v, want decryption-failure", KindOf(outer))
	}
	if !errors.Is(outer, ErrKeyUnavailable) {
		t.Error("inner kind lost")
	}
}

func TestWrapPassesNotInitialized(t *testing.T) {
	err := Wrap(KindStorageFailure, "op", "", ErrNotInitialized)
	if err != ErrNotInitialized {
		t.Errorf("Wrap() = %v, want ErrNotInitialized unchanged", err)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("plain"), KindUnknown},
		{ErrNotFound, KindNotFound},
		{fmt.Errorf("ctx: %w", ErrTooLarge), KindTooLarge},
		{Errorf(KindBadEncoding, "op", "", "byte %d", 3), KindBadEncoding},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKindSentinels(t *testing.T) {
	for k := KindNotInitialized; k <= KindInvalidArgument; k++ {
		s := k.Sentinel()
		if !strings.HasPrefix(s.Error(), "qcred: ") {
			t.Errorf("%v sentinel = %q", k, s)
		}
		if k.String() == "unknown" {
			t.Errorf("Kind(%d).String() = unknown", k)
		}
	}
	if Kind(200).Sentinel() != KindUnknown.Sentinel() {
		t.Error("out of range kind did not map to unknown")
	}
}
