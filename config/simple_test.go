package simple

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/bundle"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

type stubRunner struct {
	missing map[string]bool
	onRun   func(name string, args []string) toolchain.Result

	ran [][]string
}

func (r *stubRunner) Locate(tool string, candidates ...string) (string, error) {
	if r.missing[tool] {
		return "", toolchain.ErrNotFound
	}
	return "/usr/bin/" + tool, nil
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) (toolchain.Result, error) {
	r.ran = append(r.ran, append([]string{name}, args...))
	if r.onRun != nil {
		return r.onRun(name, args), nil
	}
	return toolchain.Result{}, nil
}

func (r *stubRunner) RunAttached(_ context.Context, name string, args ...string) (int, error) {
	return 0, nil
}

// releaseProject lays out a minimal project: a manifest and an entry point.
func releaseProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	manifest := `app_name: TestingGUI
version: 3.0.0
entry_point: main.py
`
	if err := os.WriteFile(filepath.Join(root, "release.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "main.py"), []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestReleaseBundleOnly(t *testing.T) {
	t.Parallel()

	root := releaseProject(t)
	executable := filepath.Join(root, "dist", bundle.ExecutableName("TestingGUI"))

	runner := &stubRunner{onRun: func(name string, args []string) toolchain.Result {
		// The freezing tool writes the executable as a side effect.
		if len(args) > 0 && args[0] == "--onefile" {
			if err := os.MkdirAll(filepath.Dir(executable), 0o755); err != nil {
				return toolchain.Result{ExitCode: 1, Stderr: err.Error()}
			}
			if err := os.WriteFile(executable, []byte("stub"), 0o755); err != nil {
				return toolchain.Result{ExitCode: 1, Stderr: err.Error()}
			}
		}
		return toolchain.Result{}
	}}

	run, err := Release(context.Background(), Options{
		ProjectRoot:   root,
		Runner:        runner,
		SkipInstaller: true,
		SkipImage:     true,
	})
	if err != nil {
		t.Fatalf("Release() error = %v, want nil", err)
	}
	if run.Outcome != pipeline.OutcomeSuccess {
		t.Fatalf("outcome = %q, want success", run.Outcome)
	}

	if len(run.Artifacts) != 1 {
		t.Fatalf("artifacts = %v, want only the bundle", run.Artifacts)
	}
	artifact := run.Artifacts["bundle"]
	if artifact.Kind != artifacts.Executable || artifact.Status != artifacts.StatusSucceeded {
		t.Fatalf("bundle artifact = %+v, want succeeded executable", artifact)
	}
}

func TestReleaseHaltsWhenFreezingToolMissing(t *testing.T) {
	t.Parallel()

	root := releaseProject(t)
	runner := &stubRunner{missing: map[string]bool{DefaultBundleTool: true}}

	run, err := Release(context.Background(), Options{
		ProjectRoot:   root,
		Runner:        runner,
		SkipInstaller: true,
		SkipImage:     true,
	})
	if err == nil {
		t.Fatal("Release() succeeded with the freezing tool missing")
	}
	if pipeline.ExitCode(err) != 1 {
		t.Fatalf("ExitCode() = %d, want 1 for a missing tool", pipeline.ExitCode(err))
	}
	if !strings.HasPrefix(run.Outcome, "aborted-at-stage-") {
		t.Fatalf("outcome = %q, want aborted", run.Outcome)
	}
}

func TestReleaseReportsMissingOutput(t *testing.T) {
	t.Parallel()

	root := releaseProject(t)
	// Every tool exits 0 but nothing ever writes the executable.
	runner := &stubRunner{}

	_, err := Release(context.Background(), Options{
		ProjectRoot:   root,
		Runner:        runner,
		SkipInstaller: true,
		SkipImage:     true,
	})
	if pipeline.ExitCode(err) != 3 {
		t.Fatalf("ExitCode() = %d, want 3 for missing output", pipeline.ExitCode(err))
	}
}

func TestBuildInstallerRequiresBundle(t *testing.T) {
	t.Parallel()

	root := releaseProject(t)
	installerCfg := `app:
  name: TestingGUI
  version: 3.0.0
  publisher: Charlie Becquet
install_dir: '{autopf}\TestingGUI'
files:
  - source: 'TestingGUI*'
license:
  mode: "off"
`
	if err := os.WriteFile(filepath.Join(root, "installer.yaml"), []byte(installerCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := BuildInstaller(context.Background(), Options{ProjectRoot: root, Runner: &stubRunner{}})
	if err == nil || !strings.Contains(err.Error(), "bundle stage first") {
		t.Fatalf("BuildInstaller() error = %v, want a run-bundle-first error", err)
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	root := releaseProject(t)
	opts := Options{ProjectRoot: root, Runner: &stubRunner{}}

	if err := Clean(opts); err != nil {
		t.Fatalf("Clean() on a fresh project error = %v", err)
	}
	if err := Clean(opts); err != nil {
		t.Fatalf("second Clean() error = %v", err)
	}
}
