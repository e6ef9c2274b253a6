package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
)

const stageName = "installer"

// DefaultCompilerCandidates are the well-known install locations probed
// before PATH.
var DefaultCompilerCandidates = []string{
	`C:\Program Files (x86)\Inno Setup 6\ISCC.exe`,
	`C:\Program Files\Inno Setup 6\ISCC.exe`,
}

// Stage compiles the installer from the generated script.
type Stage struct {
	Logger             *slog.Logger
	Runner             toolchain.Runner
	Compiler           string // installer compiler, e.g. "iscc"
	CompilerCandidates []string
	OutputRoot         string
	Validator          artifacts.Validator
}

func (s *Stage) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// OutputDir returns the directory the finished installer is written to.
func (s *Stage) OutputDir() string {
	return filepath.Join(s.OutputRoot, "installer_output")
}

// ScriptPath returns where the generated compiler script is written.
func (s *Stage) ScriptPath() string {
	return filepath.Join(s.OutputRoot, "installer_script.iss")
}

// Clean removes installer output from previous attempts. Idempotent.
func (s *Stage) Clean() error {
	if err := os.RemoveAll(s.OutputDir()); err != nil {
		return fmt.Errorf("remove %s: %w", s.OutputDir(), err)
	}
	if err := os.Remove(s.ScriptPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", s.ScriptPath(), err)
	}
	return nil
}

// Build renders the script and invokes the installer compiler. It requires
// a succeeded bundle artifact; the bundle's dist directory is the payload
// source. Success requires both compiler exit 0 and the named output file
// present.
func (s *Stage) Build(ctx context.Context, cfg *Config, bundle artifacts.Artifact) (artifacts.Artifact, error) {
	logger := s.logger().With("stage", stageName, "app", cfg.App.Name)

	if bundle.Status != artifacts.StatusSucceeded {
		return artifacts.Artifact{}, fmt.Errorf("installer stage requires a succeeded bundle artifact, got status %q", bundle.Status)
	}

	if err := s.Clean(); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("clean previous installer output: %w", err)
	}
	if err := os.MkdirAll(s.OutputDir(), 0o755); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("create installer output dir: %w", err)
	}

	sourceDir := filepath.Dir(bundle.Location)
	script, err := cfg.Script(sourceDir, s.OutputDir())
	if err != nil {
		return artifacts.Artifact{}, err
	}
	if err := os.WriteFile(s.ScriptPath(), []byte(script), 0o644); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("write installer script: %w", err)
	}
	logger.Info("generated installer script", "path", s.ScriptPath())

	compilerPath, err := s.Runner.Locate(s.Compiler, s.CompilerCandidates...)
	if err != nil {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolMissing,
			Tool:  s.Compiler,
			Hint:  "install Inno Setup 6 from https://jrsoftware.org/isdl.php",
			Err:   err,
		}
	}

	logger.Info("running installer compiler", "compiler", compilerPath)
	result, err := s.Runner.Run(ctx, compilerPath, s.ScriptPath())
	if err != nil {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolInvocation,
			Tool:  s.Compiler,
			Err:   err,
		}
	}
	if result.ExitCode != 0 {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Compiler,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("exited with code %d", result.ExitCode),
		}
	}

	artifact := artifacts.New(artifacts.Installer, filepath.Join(s.OutputDir(), cfg.OutputFilename()))
	artifact.Metadata["version"] = cfg.App.Version

	if err := artifact.Complete(s.Validator); err != nil {
		return artifact, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureOutputMissing,
			Tool:       s.Compiler,
			Diagnostic: result.Diagnostic(),
			Err:        err,
		}
	}

	logger.Info("installer built", "installer", artifact.Location)
	return artifact, nil
}
