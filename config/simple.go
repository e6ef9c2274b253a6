// Package simple wires the release stages into ready-to-run flows with
// sensible defaults. It is the composition root: commands call these
// functions instead of assembling stages themselves.
package simple

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cbecquet/testgui-release/internal/artifacts"
	"github.com/cbecquet/testgui-release/internal/bundle"
	"github.com/cbecquet/testgui-release/internal/container"
	"github.com/cbecquet/testgui-release/internal/installer"
	"github.com/cbecquet/testgui-release/internal/lockfile"
	"github.com/cbecquet/testgui-release/internal/logging"
	"github.com/cbecquet/testgui-release/internal/manifest"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/toolchain"
	"github.com/cbecquet/testgui-release/internal/wizard"
	"github.com/cbecquet/testgui-release/internal/wizard/tui"
)

var (
	DefaultManifestPath        = "release.yaml"
	DefaultInstallerConfigPath = "installer.yaml"
	DefaultBundleTool          = "pyinstaller"
	DefaultInterpreter         = "python"
	DefaultCompiler            = "iscc"
	DefaultEngine              = "docker"
	DefaultImageTag            = "testing-gui:latest"
	DefaultContainerName       = "testing-gui-container"
	DefaultNetworkName         = "testing-gui-net"
)

// Options selects what a flow operates on. The zero value works from the
// current directory with the default file names.
type Options struct {
	ProjectRoot         string
	OutputRoot          string
	ManifestPath        string
	InstallerConfigPath string

	// SkipInstaller and SkipImage drop the optional stages from Release.
	SkipInstaller bool
	SkipImage     bool

	// InstallDest is the portable install target used by the wizard and
	// by Uninstall.
	InstallDest string

	Logger *slog.Logger
	// Runner overrides the external tool runner; tests inject stubs here.
	Runner toolchain.Runner
}

func (o Options) normalized() Options {
	if o.ProjectRoot == "" {
		o.ProjectRoot = "."
	}
	if o.OutputRoot == "" {
		o.OutputRoot = o.ProjectRoot
	}
	if o.ManifestPath == "" {
		o.ManifestPath = DefaultManifestPath
	}
	if o.InstallerConfigPath == "" {
		o.InstallerConfigPath = DefaultInstallerConfigPath
	}
	o.ManifestPath = joinIfRelative(o.ProjectRoot, o.ManifestPath)
	o.InstallerConfigPath = joinIfRelative(o.ProjectRoot, o.InstallerConfigPath)
	o.Logger = logging.Ensure(o.Logger)
	if o.Runner == nil {
		o.Runner = &toolchain.ExecRunner{Logger: o.Logger}
	}
	return o
}

func joinIfRelative(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func bundleStage(o Options) *bundle.Stage {
	return &bundle.Stage{
		Logger:      o.Logger.With("service", "bundle"),
		Runner:      o.Runner,
		Tool:        DefaultBundleTool,
		Interpreter: DefaultInterpreter,
		OutputRoot:  o.OutputRoot,
		Validator:   artifacts.FileValidator{},
	}
}

func installerStage(o Options) *installer.Stage {
	return &installer.Stage{
		Logger:             o.Logger.With("service", "installer"),
		Runner:             o.Runner,
		Compiler:           DefaultCompiler,
		CompilerCandidates: installer.DefaultCompilerCandidates,
		OutputRoot:         o.OutputRoot,
		Validator:          artifacts.FileValidator{},
	}
}

func imageStage(o Options) *container.Stage {
	return &container.Stage{
		Logger: o.Logger.With("service", "image"),
		Runner: o.Runner,
		Tool:   DefaultEngine,
		Config: container.Config{
			ImageTag:      DefaultImageTag,
			ContainerName: DefaultContainerName,
			NetworkName:   DefaultNetworkName,
			ContextDir:    o.ProjectRoot,
			DataDir:       filepath.Join(o.ProjectRoot, "data"),
			LogDir:        filepath.Join(o.ProjectRoot, "logs"),
			ResourceDir:   filepath.Join(o.ProjectRoot, "resources"),
		},
	}
}

func resolveManifest(o Options) (*manifest.Manifest, error) {
	m, err := manifest.Load(o.ManifestPath)
	if err != nil {
		return nil, err
	}
	return m.Resolve(o.ProjectRoot)
}

// Clean removes all build output from previous release attempts.
func Clean(opts Options) error {
	o := opts.normalized()
	if err := bundleStage(o).Clean(); err != nil {
		return err
	}
	return installerStage(o).Clean()
}

// Bundle freezes the application into a standalone executable.
func Bundle(ctx context.Context, opts Options) (artifacts.Artifact, error) {
	o := opts.normalized()
	m, err := resolveManifest(o)
	if err != nil {
		return artifacts.Artifact{}, err
	}
	return bundleStage(o).Bundle(ctx, m)
}

// BuildInstaller compiles the installer from an existing bundle. It fails
// when the bundle stage has not produced an executable yet.
func BuildInstaller(ctx context.Context, opts Options) (artifacts.Artifact, error) {
	o := opts.normalized()

	cfg, err := installer.LoadConfig(o.InstallerConfigPath)
	if err != nil {
		return artifacts.Artifact{}, err
	}
	m, err := resolveManifest(o)
	if err != nil {
		return artifacts.Artifact{}, err
	}

	stage := installerStage(o)
	executable := filepath.Join(bundleStage(o).DistDir(), bundle.ExecutableName(m.AppName))
	bundled := artifacts.New(artifacts.Executable, executable)
	if err := bundled.Complete(artifacts.FileValidator{}); err != nil {
		return artifacts.Artifact{}, fmt.Errorf("no bundled executable found, run the bundle stage first: %w", err)
	}

	return stage.Build(ctx, cfg, bundled)
}

// BuildImage builds the GUI-forwarding container image.
func BuildImage(ctx context.Context, opts Options) (artifacts.Artifact, error) {
	return imageStage(opts.normalized()).Build(ctx)
}

// RunImage starts the containerized application and returns its exit code.
func RunImage(ctx context.Context, opts Options) (int, error) {
	return imageStage(opts.normalized()).Run(ctx)
}

// TestImage runs the display smoke check against the built image.
func TestImage(ctx context.Context, opts Options) error {
	return imageStage(opts.normalized()).Test(ctx)
}

// CleanupImage removes the container, image, and deployment network.
func CleanupImage(ctx context.Context, opts Options) error {
	return imageStage(opts.normalized()).Cleanup(ctx)
}

// Release runs the full pipeline: clean, manifest resolution, bundle, and
// unless skipped the installer and container image stages. The returned
// Run records how far the pipeline got even on failure.
func Release(ctx context.Context, opts Options) (*pipeline.Run, error) {
	o := opts.normalized()

	bundler := bundleStage(o)
	compiler := installerStage(o)

	var resolved *manifest.Manifest
	var bundled artifacts.Artifact

	steps := []pipeline.Step{
		{Name: "clean", Run: func(context.Context) (*artifacts.Artifact, error) {
			if err := bundler.Clean(); err != nil {
				return nil, err
			}
			return nil, compiler.Clean()
		}},
		{Name: "manifest", Run: func(context.Context) (*artifacts.Artifact, error) {
			m, err := resolveManifest(o)
			if err != nil {
				return nil, err
			}
			resolved = m
			return nil, nil
		}},
		{Name: "bundle", Run: func(ctx context.Context) (*artifacts.Artifact, error) {
			artifact, err := bundler.Bundle(ctx, resolved)
			if err != nil {
				return nil, err
			}
			bundled = artifact
			return &artifact, nil
		}},
	}

	if !o.SkipInstaller {
		steps = append(steps, pipeline.Step{Name: "installer", Run: func(ctx context.Context) (*artifacts.Artifact, error) {
			cfg, err := installer.LoadConfig(o.InstallerConfigPath)
			if err != nil {
				return nil, err
			}
			artifact, err := compiler.Build(ctx, cfg, bundled)
			if err != nil {
				return nil, err
			}
			return &artifact, nil
		}})
	}

	if !o.SkipImage {
		steps = append(steps, pipeline.Step{Name: "image", Run: func(ctx context.Context) (*artifacts.Artifact, error) {
			artifact, err := imageStage(o).Build(ctx)
			if err != nil {
				return nil, err
			}
			return &artifact, nil
		}})
	}

	orchestrator := &pipeline.Orchestrator{
		Logger: o.Logger.With("service", "release"),
		Steps:  steps,
	}
	return orchestrator.Execute(ctx)
}

// RunWizard walks the install wizard on the terminal. When InstallDest is
// set, finishing the wizard installs the bundled payload there; otherwise
// the flow is walked without side effects.
func RunWizard(opts Options) error {
	o := opts.normalized()

	cfg, err := installer.LoadConfig(o.InstallerConfigPath)
	if err != nil {
		return err
	}

	var install tui.Installer
	if o.InstallDest != "" {
		sourceDir := bundleStage(o).DistDir()
		registry := &installer.FileRegistry{Path: filepath.Join(o.InstallDest, "registry-table.yaml")}
		install = func() error {
			_, err := installer.Apply(cfg, sourceDir, o.InstallDest, registry)
			return err
		}
	}

	return tui.Run(cfg, nil, install)
}

// Uninstall reverses a portable installation at InstallDest. It is refused
// while the application holds its instance handle.
func Uninstall(opts Options) error {
	o := opts.normalized()
	if o.InstallDest == "" {
		return fmt.Errorf("uninstall: install destination is required")
	}
	registry := &installer.FileRegistry{Path: filepath.Join(o.InstallDest, "registry-table.yaml")}
	return installer.Revert(o.InstallDest, wizard.InstanceProbe(lockfile.Held), registry)
}
