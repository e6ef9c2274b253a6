package toolchain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocatePrefersCandidates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	candidate := filepath.Join(dir, "iscc")
	if err := os.WriteFile(candidate, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	runner := ExecRunner{}
	path, err := runner.Locate("definitely-not-on-path-12345", candidate)
	if err != nil {
		t.Fatalf("Locate() error = %v, want nil", err)
	}
	if path != candidate {
		t.Fatalf("Locate() = %q, want %q", path, candidate)
	}
}

func TestLocateMissingToolWrapsErrNotFound(t *testing.T) {
	t.Parallel()

	runner := ExecRunner{}
	_, err := runner.Locate("definitely-not-on-path-12345", filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Locate() error = %v, want ErrNotFound", err)
	}
}

func TestResultDiagnostic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"prefers stderr", Result{Stdout: "out", Stderr: "err\n"}, "err"},
		{"falls back to stdout", Result{Stdout: " out \n"}, "out"},
		{"empty", Result{}, ""},
	}

	for _, tt := range tests {
		if got := tt.result.Diagnostic(); got != tt.want {
			t.Fatalf("%s: Diagnostic() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
