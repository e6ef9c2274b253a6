package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	config "github.com/cbecquet/testgui-release/config"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

// stubRunner answers every tool invocation with success and a fixed
// attached exit code.
type stubRunner struct {
	attachedCode int
}

func (r *stubRunner) Locate(tool string, candidates ...string) (string, error) {
	return "/usr/bin/" + tool, nil
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) (toolchain.Result, error) {
	return toolchain.Result{}, nil
}

func (r *stubRunner) RunAttached(_ context.Context, name string, args ...string) (int, error) {
	return r.attachedCode, nil
}

func TestImageRunReproducesContainerExitCode(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := &config.Options{
		ProjectRoot: t.TempDir(),
		Logger:      logger,
		Runner:      &stubRunner{attachedCode: 7},
	}

	cmd := newImageRunCommand(logger, opts)
	cmd.SetContext(context.Background())

	err := cmd.RunE(cmd, nil)
	if err == nil {
		t.Fatal("RunE returned nil for a container that exited non-zero")
	}
	if got := pipeline.ExitCode(err); got != 7 {
		t.Fatalf("ExitCode() = %d, want the container's own code 7", got)
	}
}

func TestImageRunExitsZeroOnCleanContainerExit(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := &config.Options{
		ProjectRoot: t.TempDir(),
		Logger:      logger,
		Runner:      &stubRunner{attachedCode: 0},
	}

	cmd := newImageRunCommand(logger, opts)
	cmd.SetContext(context.Background())

	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("RunE error = %v, want nil", err)
	}
}

func TestCleanAlwaysSucceeds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	// Make the installer script path an undeletable non-empty directory so
	// the underlying clean fails.
	scriptDir := filepath.Join(root, "installer_script.iss")
	if err := os.MkdirAll(filepath.Join(scriptDir, "blocker"), 0o755); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := &config.Options{
		ProjectRoot: root,
		Logger:      logger,
		Runner:      &stubRunner{},
	}

	cmd := newCleanCommand(logger, opts)
	cmd.SetContext(context.Background())

	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("RunE error = %v, clean must always exit 0", err)
	}
}
