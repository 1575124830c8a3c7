package errs

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWrapKeepsBothMarkers(t *testing.T) {
	err := Wrap(ErrRateLimited, "gemini generate", io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited in chain, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause in chain, got %v", err)
	}
	if !strings.Contains(err.Error(), "gemini generate") {
		t.Fatalf("expected op in message, got %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", io.EOF)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestConfiguration(t *testing.T) {
	err := Configuration("%s is required", "NVIDIA_API_KEY")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "NVIDIA_API_KEY") {
		t.Fatalf("expected setting name in message, got %q", err.Error())
	}
}
