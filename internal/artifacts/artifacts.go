// Package artifacts models the outputs of release pipeline stages and the
// validation step that gates their success.
package artifacts

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a stage produced.
type Kind string

const (
	Executable Kind = "executable" // frozen application binary
	Installer  Kind = "installer"  // installer package
	Image      Kind = "image"      // container image
)

// Status tracks the lifecycle of an artifact.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact is the output of a single stage. Location is a filesystem path
// for executables and installers, an image tag for container images. Each
// stage exclusively owns the artifact it creates; the orchestrator only
// reads Status.
type Artifact struct {
	ID        string
	Kind      Kind
	Location  string
	Status    Status
	CreatedAt time.Time
	Metadata  map[string]any
}

// New creates a pending artifact for the given kind and expected location.
func New(kind Kind, location string) Artifact {
	return Artifact{
		ID:        uuid.New().String(),
		Kind:      kind,
		Location:  location,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		Metadata:  map[string]any{},
	}
}

// Validator confirms that a stage's expected output actually exists. A zero
// tool exit code alone is never trusted; stages transition an artifact to
// succeeded only after the validator confirms.
type Validator interface {
	Confirm(location string) error
}

// Complete runs the validator against the artifact's location and records
// the outcome. It returns the validator's error when confirmation fails.
func (a *Artifact) Complete(v Validator) error {
	if err := v.Confirm(a.Location); err != nil {
		a.Status = StatusFailed
		return err
	}
	a.Status = StatusSucceeded
	return nil
}

// FileValidator confirms that a regular file exists at the location.
type FileValidator struct{}

func (FileValidator) Confirm(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("expected output %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("expected output %s is a directory, want a file", path)
	}
	return nil
}

// DirValidator confirms that a non-empty directory exists at the location.
type DirValidator struct{}

func (DirValidator) Confirm(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return fmt.Errorf("expected output directory %s: %w", path, statErr)
		}
		return fmt.Errorf("read output directory %s: %w", path, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("expected output directory %s is empty", path)
	}
	return nil
}

// FileSize returns the size of the artifact's file, or 0 when the location
// is not a regular file.
func (a Artifact) FileSize() int64 {
	info, err := os.Stat(a.Location)
	if err != nil || !info.Mode().IsRegular() {
		return 0
	}
	return info.Size()
}
