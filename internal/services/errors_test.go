package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrRateLimited, "transcribe", "submit", "api call failed", cause)

	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("marker lost")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	for _, part := range []string{"transcribe", "submit", "api call failed", "connection refused"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("message %q missing %q", err.Error(), part)
		}
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", "something broke", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("nil marker should tag as transient")
	}
}

func TestWrapEmptyDetail(t *testing.T) {
	err := Wrap(ErrNotFound, "", "", "", nil)
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRecognized(t *testing.T) {
	cases := []struct {
		marker error
		want   bool
	}{
		{ErrCredential, true},
		{ErrNotFound, true},
		{ErrRateLimited, true},
		{ErrExternalTool, true},
		{ErrTransient, false},
		{ErrValidation, false},
		{ErrConfiguration, false},
	}
	for _, tc := range cases {
		err := Wrap(tc.marker, "trim", "", "x", nil)
		if got := Recognized(err); got != tc.want {
			t.Fatalf("Recognized(%v) = %v, want %v", tc.marker, got, tc.want)
		}
	}
	if Recognized(errors.New("plain")) {
		t.Fatal("plain error recognized")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Wrap(ErrValidation, "", "", "bad input", nil), false},
		{Wrap(ErrConfiguration, "", "", "bad config", nil), false},
		{Wrap(ErrTransient, "", "", "flaky", nil), true},
		{Wrap(ErrCredential, "", "", "denied", nil), false},
		{errors.New("unexpected"), true},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"credential":    Wrap(ErrCredential, "", "", "x", nil),
		"not_found":     Wrap(ErrNotFound, "", "", "x", nil),
		"rate_limited":  Wrap(ErrRateLimited, "", "", "x", nil),
		"validation":    Wrap(ErrValidation, "", "", "x", nil),
		"configuration": Wrap(ErrConfiguration, "", "", "x", nil),
		"external_tool": Wrap(ErrExternalTool, "", "", "x", nil),
		"transient":     Wrap(ErrTransient, "", "", "x", nil),
		"unexpected":    errors.New("plain"),
	}
	for want, err := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, want)
		}
	}
	if Kind(nil) != "" {
		t.Fatal("Kind(nil) should be empty")
	}
}
