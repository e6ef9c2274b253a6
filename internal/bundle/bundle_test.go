package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/manifest"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

// stubRunner scripts tool behavior per invocation.
type stubRunner struct {
	locateErr map[string]error
	onRun     func(name string, args []string) (toolchain.Result, error)

	ran [][]string
}

func (r *stubRunner) Locate(tool string, candidates ...string) (string, error) {
	if err, ok := r.locateErr[tool]; ok {
		return "", err
	}
	return "/usr/bin/" + tool, nil
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) (toolchain.Result, error) {
	r.ran = append(r.ran, append([]string{name}, args...))
	if r.onRun != nil {
		return r.onRun(name, args)
	}
	return toolchain.Result{}, nil
}

func (r *stubRunner) RunAttached(_ context.Context, name string, args ...string) (int, error) {
	r.ran = append(r.ran, append([]string{name}, args...))
	return 0, nil
}

func resolvedManifest(t *testing.T) (*manifest.Manifest, string) {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.py"), []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatalf("write entry point: %v", err)
	}

	m := &manifest.Manifest{
		AppName:       "TestingGUI",
		Version:       "3.0.0",
		EntryPoint:    "main.py",
		HiddenImports: []string{"openpyxl.cell._writer"},
		CollectAll:    []string{"matplotlib"},
		Exclude:       []string{"pytest"},
	}
	resolved, err := m.Resolve(root)
	if err != nil {
		t.Fatalf("resolve manifest: %v", err)
	}
	return resolved, root
}

func newStage(runner toolchain.Runner, outputRoot string) *Stage {
	return &Stage{
		Runner:      runner,
		Tool:        "pyinstaller",
		Interpreter: "python3",
		OutputRoot:  outputRoot,
		Validator:   artifacts.FileValidator{},
	}
}

func TestBundleSucceedsWhenToolWritesOutput(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	outputRoot := t.TempDir()

	stage := newStage(nil, outputRoot)
	runner := &stubRunner{
		onRun: func(name string, args []string) (toolchain.Result, error) {
			if strings.HasSuffix(name, "pyinstaller") {
				if err := os.MkdirAll(stage.DistDir(), 0o755); err != nil {
					return toolchain.Result{}, err
				}
				out := stage.executablePath(m.AppName)
				if err := os.WriteFile(out, []byte("binary"), 0o755); err != nil {
					return toolchain.Result{}, err
				}
			}
			return toolchain.Result{}, nil
		},
	}
	stage.Runner = runner

	artifact, err := stage.Bundle(context.Background(), m)
	if err != nil {
		t.Fatalf("Bundle() error = %v, want nil", err)
	}
	if artifact.Status != artifacts.StatusSucceeded {
		t.Fatalf("artifact status = %q, want succeeded", artifact.Status)
	}
	if artifact.Kind != artifacts.Executable {
		t.Fatalf("artifact kind = %q, want executable", artifact.Kind)
	}
}

func TestBundleReportsOutputMissingOnCleanExit(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	// The fake tool exits 0 without producing anything.
	runner := &stubRunner{}
	stage := newStage(runner, t.TempDir())

	artifact, err := stage.Bundle(context.Background(), m)

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Bundle() error = %v, want *pipeline.StageError", err)
	}
	if stageErr.Kind != pipeline.FailureOutputMissing {
		t.Fatalf("failure kind = %q, want output-missing", stageErr.Kind)
	}
	if artifact.Status == artifacts.StatusSucceeded {
		t.Fatal("artifact reported succeeded despite missing output")
	}
}

func TestBundleReportsToolMissing(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	runner := &stubRunner{
		locateErr: map[string]error{"pyinstaller": toolchain.ErrNotFound},
	}
	stage := newStage(runner, t.TempDir())

	_, err := stage.Bundle(context.Background(), m)

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != pipeline.FailureToolMissing {
		t.Fatalf("Bundle() error = %v, want tool-missing StageError", err)
	}
	if stageErr.Hint == "" {
		t.Fatal("tool-missing error has no remediation hint")
	}
	if pipeline.ExitCode(err) != 1 {
		t.Fatalf("ExitCode() = %d, want 1", pipeline.ExitCode(err))
	}
}

func TestBundleCapturesToolDiagnostic(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	runner := &stubRunner{
		onRun: func(name string, args []string) (toolchain.Result, error) {
			if strings.HasSuffix(name, "pyinstaller") {
				return toolchain.Result{Stderr: "ImportError: no module named tkintertable", ExitCode: 1}, nil
			}
			return toolchain.Result{}, nil
		},
	}
	stage := newStage(runner, t.TempDir())

	_, err := stage.Bundle(context.Background(), m)

	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != pipeline.FailureToolInvocation {
		t.Fatalf("Bundle() error = %v, want tool-invocation StageError", err)
	}
	if !strings.Contains(stageErr.Diagnostic, "tkintertable") {
		t.Fatalf("diagnostic %q does not carry the tool's output", stageErr.Diagnostic)
	}
	if pipeline.ExitCode(err) != 2 {
		t.Fatalf("ExitCode() = %d, want 2", pipeline.ExitCode(err))
	}
}

func TestBuildArgsFlattenManifest(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	stage := newStage(&stubRunner{}, t.TempDir())

	args := stage.buildArgs(m)
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--onefile",
		"--windowed",
		"--name=TestingGUI",
		"--hidden-import=openpyxl.cell._writer",
		"--collect-all=matplotlib",
		"--exclude-module=pytest",
		"--noconfirm",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("buildArgs() = %q, missing %q", joined, want)
		}
	}
	if args[len(args)-1] != m.EntryPoint {
		t.Fatalf("entry point %q not last argument", args[len(args)-1])
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	outputRoot := t.TempDir()
	stage := newStage(&stubRunner{}, outputRoot)

	for _, dir := range []string{stage.WorkDir(), stage.DistDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(outputRoot, "TestingGUI.spec"), []byte("spec"), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := stage.Clean(); err != nil {
			t.Fatalf("Clean() pass %d error = %v, want nil", i+1, err)
		}
	}

	for _, path := range []string{stage.WorkDir(), stage.DistDir(), filepath.Join(outputRoot, "TestingGUI.spec")} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s still present after Clean()", path)
		}
	}
}

func TestBundleRejectsMissingEntryPoint(t *testing.T) {
	t.Parallel()

	m, root := resolvedManifest(t)
	if err := os.Remove(filepath.Join(root, "main.py")); err != nil {
		t.Fatalf("remove entry point: %v", err)
	}

	stage := newStage(&stubRunner{}, t.TempDir())
	if _, err := stage.Bundle(context.Background(), m); err == nil {
		t.Fatal("Bundle() error = nil, want entry-point failure")
	}
}

func TestBundleRunsDryCheckBeforeFreezing(t *testing.T) {
	t.Parallel()

	m, _ := resolvedManifest(t)
	runner := &stubRunner{
		onRun: func(name string, args []string) (toolchain.Result, error) {
			if strings.HasSuffix(name, "python3") {
				return toolchain.Result{Stderr: "SyntaxError: invalid syntax", ExitCode: 1}, nil
			}
			return toolchain.Result{}, nil
		},
	}
	stage := newStage(runner, t.TempDir())

	_, err := stage.Bundle(context.Background(), m)
	if err == nil || !strings.Contains(err.Error(), "dry check") {
		t.Fatalf("Bundle() error = %v, want dry-check failure", err)
	}
	if len(runner.ran) != 1 {
		t.Fatalf("ran %d commands, want only the dry check: %v", len(runner.ran), runner.ran)
	}
	if want := fmt.Sprintf("%v", runner.ran[0]); !strings.Contains(want, "py_compile") {
		t.Fatalf("first command %q is not the dry check", want)
	}
}
