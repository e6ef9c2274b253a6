// Package bundle freezes the application entry point and its manifest into
// a self-contained executable by driving an external freezing tool.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/manifest"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

const stageName = "bundle"

// Bundled executables smaller than this are suspicious for a frozen GUI
// application with its scientific stack embedded.
const minPlausibleSize = 50 * 1024 * 1024

// Companion files copied next to the executable for the installer stage.
var companionFiles = []string{"LICENSE.txt", "README.txt"}

// Stage invokes the freezing tool. All paths are explicit; nothing depends
// on the invocation directory.
type Stage struct {
	Logger      *slog.Logger
	Runner      toolchain.Runner
	Tool        string // freezing tool, e.g. "pyinstaller"
	Interpreter string // native runtime used for the entry-point dry check
	OutputRoot  string // build/ and dist/ are created under this root
	Validator   artifacts.Validator
}

func (s *Stage) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// DistDir returns the directory the frozen executable is written to.
func (s *Stage) DistDir() string {
	return filepath.Join(s.OutputRoot, "dist")
}

// WorkDir returns the freezing tool's scratch directory.
func (s *Stage) WorkDir() string {
	return filepath.Join(s.OutputRoot, "build")
}

// Clean removes output from previous attempts. It is idempotent and runs
// before each new attempt, never after a failure, so failed output stays
// on disk for diagnosis.
func (s *Stage) Clean() error {
	for _, dir := range []string{s.WorkDir(), s.DistDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}

	// The freezing tool drops a generated spec file next to its output.
	specs, err := filepath.Glob(filepath.Join(s.OutputRoot, "*.spec"))
	if err != nil {
		return fmt.Errorf("glob spec files: %w", err)
	}
	for _, spec := range specs {
		if err := os.Remove(spec); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", spec, err)
		}
	}
	return nil
}

// Bundle runs the freezing tool against a resolved manifest and returns
// the executable artifact. Success requires both a zero exit code and the
// executable present on disk.
func (s *Stage) Bundle(ctx context.Context, m *manifest.Manifest) (artifacts.Artifact, error) {
	logger := s.logger().With("stage", stageName, "app", m.AppName)

	if !m.Resolved() {
		return artifacts.Artifact{}, fmt.Errorf("manifest must be resolved before bundling")
	}
	if err := s.checkEntryPoint(ctx, m.EntryPoint); err != nil {
		return artifacts.Artifact{}, err
	}

	if err := s.Clean(); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("clean previous build output: %w", err)
	}

	toolPath, err := s.Runner.Locate(s.Tool)
	if err != nil {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolMissing,
			Tool:  s.Tool,
			Hint:  fmt.Sprintf("install the freezing tool, e.g. 'pip install %s'", s.Tool),
			Err:   err,
		}
	}

	args := s.buildArgs(m)
	logger.Info("running freezing tool", "tool", toolPath, "args", strings.Join(args, " "))

	result, err := s.Runner.Run(ctx, toolPath, args...)
	if err != nil {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolInvocation,
			Tool:  s.Tool,
			Err:   err,
		}
	}
	if result.ExitCode != 0 {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("exited with code %d", result.ExitCode),
		}
	}

	artifact := artifacts.New(artifacts.Executable, s.executablePath(m.AppName))
	artifact.Metadata["version"] = m.Version

	// Exit-code success alone is not trusted: the expected output must
	// exist on disk before the artifact counts as succeeded.
	if err := artifact.Complete(s.Validator); err != nil {
		return artifact, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureOutputMissing,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        err,
		}
	}

	if size := artifact.FileSize(); size > 0 && size < minPlausibleSize {
		logger.Warn("executable seems too small, dependencies may be missing",
			"path", artifact.Location, "size_bytes", size)
	}

	s.copyCompanions(m.Root(), logger)

	logger.Info("bundle succeeded", "executable", artifact.Location)
	return artifact, nil
}

// checkEntryPoint verifies the entry point exists and survives a dry
// invocation in the native runtime before the expensive freeze runs.
func (s *Stage) checkEntryPoint(ctx context.Context, entryPoint string) error {
	if _, err := os.Stat(entryPoint); err != nil {
		return fmt.Errorf("entry point %s: %w", entryPoint, err)
	}

	interpreter, err := s.Runner.Locate(s.Interpreter)
	if err != nil {
		return &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolMissing,
			Tool:  s.Interpreter,
			Hint:  "the application runtime must be installed to verify the entry point",
			Err:   err,
		}
	}

	result, err := s.Runner.Run(ctx, interpreter, "-m", "py_compile", entryPoint)
	if err != nil {
		return fmt.Errorf("dry-check entry point: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("entry point %s failed dry check: %s", entryPoint, result.Diagnostic())
	}
	return nil
}

// buildArgs flattens the manifest into freezing tool arguments.
func (s *Stage) buildArgs(m *manifest.Manifest) []string {
	args := []string{
		"--onefile",
		"--windowed",
		"--name=" + m.AppName,
		"--distpath", s.DistDir(),
		"--workpath", s.WorkDir(),
		"--specpath", s.OutputRoot,
		"--noconfirm",
	}

	if m.Icon != "" {
		args = append(args, "--icon="+m.Icon)
	}
	for _, entry := range m.Data {
		args = append(args, fmt.Sprintf("--add-data=%s%c%s", entry.Source, os.PathListSeparator, entry.Dest))
	}
	for _, name := range m.HiddenImports {
		args = append(args, "--hidden-import="+name)
	}
	for _, name := range m.CollectAll {
		args = append(args, "--collect-all="+name)
	}
	for _, name := range m.Exclude {
		args = append(args, "--exclude-module="+name)
	}

	return append(args, m.EntryPoint)
}

// ExecutableName returns the platform file name of the frozen executable.
func ExecutableName(appName string) string {
	if runtime.GOOS == "windows" {
		return appName + ".exe"
	}
	return appName
}

func (s *Stage) executablePath(appName string) string {
	return filepath.Join(s.DistDir(), ExecutableName(appName))
}

// copyCompanions places license and readme files next to the executable so
// the installer stage can pick them up. Missing companions are skipped.
func (s *Stage) copyCompanions(projectRoot string, logger *slog.Logger) {
	for _, name := range companionFiles {
		src := filepath.Join(projectRoot, name)
		data, err := os.ReadFile(src)
		if err != nil {
			logger.Debug("companion file not found, skipping", "file", name)
			continue
		}
		dst := filepath.Join(s.DistDir(), name)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			logger.Warn("copy companion file failed", "file", name, "error", err)
			continue
		}
		logger.Debug("copied companion file", "file", name)
	}
}
