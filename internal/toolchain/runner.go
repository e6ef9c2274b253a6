// Package toolchain wraps invocation of the external tools the release
// pipeline depends on: the freezing tool, the installer compiler, and the
// container engine. It distinguishes a tool that cannot be found from a
// tool that ran and failed; stages map both onto the pipeline error
// taxonomy.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrNotFound indicates the requested tool is not installed anywhere the
// runner looked.
var ErrNotFound = errors.New("tool not found")

// Result captures the observable outcome of a tool invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Diagnostic returns the tool's own output, preferring stderr, for
// surfacing in failure reports.
func (r Result) Diagnostic() string {
	if diag := strings.TrimSpace(r.Stderr); diag != "" {
		return diag
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner locates and invokes external tools. Implementations must return
// an error wrapping ErrNotFound from Locate when the tool is absent, and
// must reserve Run errors for invocation problems; a tool that started and
// exited non-zero is reported through Result.ExitCode, not an error.
type Runner interface {
	Locate(tool string, candidates ...string) (string, error)
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// RunAttached wires the invocation to the process's own stdio and
	// blocks until the tool exits, returning its exit code.
	RunAttached(ctx context.Context, name string, args ...string) (int, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct {
	Logger *slog.Logger
	Dir    string
	Env    []string
}

func (r ExecRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Locate resolves a tool to an executable path. Fixed candidate paths are
// probed first (installer compilers live in well-known directories on
// Windows), then PATH.
func (r ExecRunner) Locate(tool string, candidates ...string) (string, error) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, tool)
	}
	return path, nil
}

// Run executes the tool and captures its output. A non-zero exit is not an
// error; callers inspect Result.ExitCode.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := r.command(ctx, name, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger().Debug("running tool", "tool", name, "args", strings.Join(args, " "))

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		return result, fmt.Errorf("%w: %s", ErrNotFound, name)
	default:
		return result, fmt.Errorf("invoke %s: %w", name, err)
	}

	return result, nil
}

// RunAttached executes the tool with inherited stdio, for interactive
// invocations such as running the containerized application.
func (r ExecRunner) RunAttached(ctx context.Context, name string, args ...string) (int, error) {
	cmd := r.command(ctx, name, args)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	r.logger().Debug("running tool attached", "tool", name, "args", strings.Join(args, " "))

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		return exitErr.ExitCode(), nil
	case errors.Is(err, exec.ErrNotFound):
		return -1, fmt.Errorf("%w: %s", ErrNotFound, name)
	default:
		return -1, fmt.Errorf("invoke %s: %w", name, err)
	}
}

func (r ExecRunner) command(ctx context.Context, name string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	return cmd
}
