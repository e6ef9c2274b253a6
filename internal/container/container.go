// Package container builds and runs the GUI-forwarding container image.
// The application renders through an X protocol server on the host; the
// container only needs the display address and three bind-mounts.
package container

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

const stageName = "image"

// DefaultDisplayTarget points GUI output at an X server on the container
// host.
const DefaultDisplayTarget = "host.docker.internal:0.0"

// In-image mount points, fixed by the image build.
const (
	mountData      = "/app/user_data"
	mountLogs      = "/app/logs"
	mountResources = "/app/resources"
)

// Config describes one container deployment.
type Config struct {
	// ImageTag names the built image, e.g. testing-gui:latest.
	ImageTag string
	// ContainerName is the fixed name the running container gets.
	ContainerName string
	// NetworkName scopes inter-process traffic to this deployment.
	NetworkName string
	// ContextDir is the image build context.
	ContextDir string
	// DisplayTarget is the host-side X server address.
	DisplayTarget string
	// Host directories mounted into the container. Data and logs are
	// read-write, resources read-only.
	DataDir     string
	LogDir      string
	ResourceDir string
}

// Stage drives the external container engine.
type Stage struct {
	Logger *slog.Logger
	Runner toolchain.Runner
	Tool   string // container engine, e.g. "docker"
	Config Config
}

func (s *Stage) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// engine locates the container engine and confirms its daemon is up. Both
// checks happen before every operation; the original run scripts did the
// same because a stopped daemon is the most common failure.
func (s *Stage) engine(ctx context.Context) (string, error) {
	path, err := s.Runner.Locate(s.Tool)
	if err != nil {
		return "", &pipeline.StageError{
			Stage: stageName,
			Kind:  pipeline.FailureToolMissing,
			Tool:  s.Tool,
			Hint:  "install Docker and make sure the daemon is running",
			Err:   err,
		}
	}

	result, err := s.Runner.Run(ctx, path, "info")
	if err != nil {
		return "", &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	if result.ExitCode != 0 {
		return "", &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("daemon is not running"),
		}
	}
	return path, nil
}

// Build builds and tags the image. It does not start a container. Success
// requires exit 0 and the tagged image actually present in the engine.
func (s *Stage) Build(ctx context.Context) (artifacts.Artifact, error) {
	logger := s.logger().With("stage", stageName, "image", s.Config.ImageTag)

	engine, err := s.engine(ctx)
	if err != nil {
		return artifacts.Artifact{}, err
	}

	logger.Info("building image", "context", s.Config.ContextDir)
	result, err := s.Runner.Run(ctx, engine, "build", "-t", s.Config.ImageTag, s.Config.ContextDir)
	if err != nil {
		return artifacts.Artifact{}, &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	if result.ExitCode != 0 {
		return artifacts.Artifact{}, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("image build exited with code %d", result.ExitCode),
		}
	}

	artifact := artifacts.New(artifacts.Image, s.Config.ImageTag)

	// Exit code 0 is not trusted on its own: the tag must resolve.
	if err := artifact.Complete(imageValidator{ctx: ctx, runner: s.Runner, engine: engine}); err != nil {
		return artifact, &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureOutputMissing,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        err,
		}
	}

	logger.Info("image built", "image", artifact.Location)
	return artifact, nil
}

// Run starts the application container and blocks until it exits,
// returning the container's own exit code. GUI output goes to the display
// target; user data and logs are mounted read-write, resources read-only;
// traffic is scoped to the deployment network.
func (s *Stage) Run(ctx context.Context) (int, error) {
	logger := s.logger().With("stage", stageName, "container", s.Config.ContainerName)

	engine, err := s.engine(ctx)
	if err != nil {
		return -1, err
	}

	for _, dir := range []string{s.Config.DataDir, s.Config.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return -1, fmt.Errorf("create host directory %s: %w", dir, err)
		}
	}

	if err := s.ensureNetwork(ctx, engine); err != nil {
		return -1, err
	}

	args := s.runArgs()
	logger.Info("starting container", "display", s.Config.DisplayTarget, "network", s.Config.NetworkName)

	code, err := s.Runner.RunAttached(ctx, engine, args...)
	if err != nil {
		return -1, &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	logger.Info("container exited", "code", code)
	return code, nil
}

// Test runs a one-shot GUI smoke check in the image to confirm display
// forwarding works before shipping.
func (s *Stage) Test(ctx context.Context) error {
	logger := s.logger().With("stage", stageName, "image", s.Config.ImageTag)

	engine, err := s.engine(ctx)
	if err != nil {
		return err
	}

	smoke := `import tkinter as tk; root = tk.Tk(); root.update(); root.destroy(); print("display ok")`
	args := []string{
		"run", "--rm",
		"-e", "DISPLAY=" + s.displayTarget(),
		s.Config.ImageTag,
		"python", "-c", smoke,
	}

	logger.Info("running display smoke test")
	result, err := s.Runner.Run(ctx, engine, args...)
	if err != nil {
		return &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	if result.ExitCode != 0 {
		return &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("display smoke test exited with code %d", result.ExitCode),
		}
	}

	logger.Info("display smoke test passed")
	return nil
}

// Cleanup stops and removes the container, image, and deployment network,
// then prunes dangling images. Absent resources are not an error; calling
// Cleanup on a clean engine is a no-op.
func (s *Stage) Cleanup(ctx context.Context) error {
	logger := s.logger().With("stage", stageName)

	engine, err := s.engine(ctx)
	if err != nil {
		return err
	}

	// Each removal tolerates "no such ..." failures.
	steps := [][]string{
		{"stop", s.Config.ContainerName},
		{"rm", s.Config.ContainerName},
		{"rmi", s.Config.ImageTag},
		{"network", "rm", s.Config.NetworkName},
		{"image", "prune", "-f"},
	}
	for _, step := range steps {
		result, err := s.Runner.Run(ctx, engine, step...)
		if err != nil {
			return &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
		}
		if result.ExitCode != 0 {
			logger.Debug("cleanup step skipped", "step", step[0], "detail", result.Diagnostic())
		}
	}

	logger.Info("container resources cleaned up")
	return nil
}

func (s *Stage) ensureNetwork(ctx context.Context, engine string) error {
	if s.Config.NetworkName == "" {
		return nil
	}

	result, err := s.Runner.Run(ctx, engine, "network", "inspect", s.Config.NetworkName)
	if err != nil {
		return &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	if result.ExitCode == 0 {
		return nil
	}

	result, err = s.Runner.Run(ctx, engine, "network", "create", s.Config.NetworkName)
	if err != nil {
		return &pipeline.StageError{Stage: stageName, Kind: pipeline.FailureToolInvocation, Tool: s.Tool, Err: err}
	}
	if result.ExitCode != 0 {
		return &pipeline.StageError{
			Stage:      stageName,
			Kind:       pipeline.FailureToolInvocation,
			Tool:       s.Tool,
			Diagnostic: result.Diagnostic(),
			Err:        fmt.Errorf("create network %s", s.Config.NetworkName),
		}
	}
	return nil
}

func (s *Stage) runArgs() []string {
	args := []string{
		"run", "--rm",
		"--name", s.Config.ContainerName,
		"-e", "DISPLAY=" + s.displayTarget(),
	}
	if s.Config.NetworkName != "" {
		args = append(args, "--network", s.Config.NetworkName)
	}
	if s.Config.DataDir != "" {
		args = append(args, "-v", bind(s.Config.DataDir, mountData, false))
	}
	if s.Config.LogDir != "" {
		args = append(args, "-v", bind(s.Config.LogDir, mountLogs, false))
	}
	if s.Config.ResourceDir != "" {
		args = append(args, "-v", bind(s.Config.ResourceDir, mountResources, true))
	}
	return append(args, s.Config.ImageTag)
}

func (s *Stage) displayTarget() string {
	if s.Config.DisplayTarget != "" {
		return s.Config.DisplayTarget
	}
	return DefaultDisplayTarget
}

func bind(hostDir, containerDir string, readOnly bool) string {
	spec := fmt.Sprintf("%s:%s", absOrSelf(hostDir), containerDir)
	if readOnly {
		spec += ":ro"
	}
	return spec
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// imageValidator confirms the built tag resolves inside the engine.
type imageValidator struct {
	ctx    context.Context
	runner toolchain.Runner
	engine string
}

func (v imageValidator) Confirm(tag string) error {
	result, err := v.runner.Run(v.ctx, v.engine, "image", "inspect", tag)
	if err != nil {
		return fmt.Errorf("inspect image %s: %w", tag, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("image %s not present after successful build", tag)
	}
	return nil
}
