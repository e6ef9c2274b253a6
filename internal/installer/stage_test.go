package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

type stubRunner struct {
	locateErr error
	onRun     func(name string, args []string) (toolchain.Result, error)
}

func (r *stubRunner) Locate(tool string, candidates ...string) (string, error) {
	if r.locateErr != nil {
		return "", r.locateErr
	}
	return "/usr/bin/" + tool, nil
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) (toolchain.Result, error) {
	if r.onRun != nil {
		return r.onRun(name, args)
	}
	return toolchain.Result{}, nil
}

func (r *stubRunner) RunAttached(_ context.Context, name string, args ...string) (int, error) {
	return 0, nil
}

func succeededBundle(t *testing.T) artifacts.Artifact {
	t.Helper()

	distDir := t.TempDir()
	exe := filepath.Join(distDir, "TestingGUI.exe")
	if err := os.WriteFile(exe, []byte("binary"), 0o755); err != nil {
		t.Fatalf("write bundle output: %v", err)
	}

	artifact := artifacts.New(artifacts.Executable, exe)
	if err := artifact.Complete(artifacts.FileValidator{}); err != nil {
		t.Fatalf("complete bundle artifact: %v", err)
	}
	return artifact
}

func newStage(runner toolchain.Runner, outputRoot string) *Stage {
	return &Stage{
		Runner:     runner,
		Compiler:   "iscc",
		OutputRoot: outputRoot,
		Validator:  artifacts.FileValidator{},
	}
}

func TestBuildRequiresSucceededBundle(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	stage := newStage(&stubRunner{}, t.TempDir())

	pending := artifacts.New(artifacts.Executable, "/nowhere")
	if _, err := stage.Build(context.Background(), &cfg, pending); err == nil {
		t.Fatal("Build() accepted a pending bundle artifact")
	}
}

func TestBuildReportsCompilerMissing(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	stage := newStage(&stubRunner{locateErr: toolchain.ErrNotFound}, t.TempDir())

	_, err := stage.Build(context.Background(), &cfg, succeededBundle(t))

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != pipeline.FailureToolMissing {
		t.Fatalf("Build() error = %v, want tool-missing StageError", err)
	}
	if !strings.Contains(stageErr.Hint, "Inno Setup") {
		t.Fatalf("hint %q does not name the missing tool", stageErr.Hint)
	}
}

func TestBuildReportsOutputMissingOnCleanExit(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	outputRoot := t.TempDir()
	// Compiler exits 0 but writes nothing.
	stage := newStage(&stubRunner{}, outputRoot)

	_, err := stage.Build(context.Background(), &cfg, succeededBundle(t))

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != pipeline.FailureOutputMissing {
		t.Fatalf("Build() error = %v, want output-missing StageError", err)
	}
	if pipeline.ExitCode(err) != 3 {
		t.Fatalf("ExitCode() = %d, want 3", pipeline.ExitCode(err))
	}

	// The generated script must still be on disk for diagnosis.
	if _, err := os.Stat(stage.ScriptPath()); err != nil {
		t.Fatalf("generated script missing after failure: %v", err)
	}
}

func TestBuildSucceedsWhenCompilerWritesOutput(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	outputRoot := t.TempDir()
	stage := newStage(nil, outputRoot)
	stage.Runner = &stubRunner{
		onRun: func(name string, args []string) (toolchain.Result, error) {
			out := filepath.Join(stage.OutputDir(), cfg.OutputFilename())
			if err := os.WriteFile(out, []byte("setup"), 0o755); err != nil {
				return toolchain.Result{}, err
			}
			return toolchain.Result{Stdout: "Successful compile"}, nil
		},
	}

	artifact, err := stage.Build(context.Background(), &cfg, succeededBundle(t))
	if err != nil {
		t.Fatalf("Build() error = %v, want nil", err)
	}
	if artifact.Status != artifacts.StatusSucceeded || artifact.Kind != artifacts.Installer {
		t.Fatalf("artifact = %+v, want succeeded installer", artifact)
	}

	script, err := os.ReadFile(stage.ScriptPath())
	if err != nil {
		t.Fatalf("read generated script: %v", err)
	}
	if !strings.Contains(string(script), "AppName=TestingGUI") {
		t.Fatal("generated script does not carry the app identity")
	}
}

func TestBuildCapturesCompilerDiagnostic(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	stage := newStage(&stubRunner{
		onRun: func(name string, args []string) (toolchain.Result, error) {
			return toolchain.Result{Stderr: "Error on line 12: unknown directive", ExitCode: 1}, nil
		},
	}, t.TempDir())

	_, err := stage.Build(context.Background(), &cfg, succeededBundle(t))

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != pipeline.FailureToolInvocation {
		t.Fatalf("Build() error = %v, want tool-invocation StageError", err)
	}
	if !strings.Contains(stageErr.Diagnostic, "line 12") {
		t.Fatalf("diagnostic %q does not carry compiler output", stageErr.Diagnostic)
	}
}
