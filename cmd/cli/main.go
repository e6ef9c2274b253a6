package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	config "github.com/cbecquet/testgui-release/config"
	"github.com/cbecquet/testgui-release/internal/logging"
	"github.com/cbecquet/testgui-release/internal/pipeline"
	"github.com/cbecquet/testgui-release/internal/setup"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command execution failed", "error", err)
		os.Exit(pipeline.ExitCode(err))
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	setup.SetLogger(logger.With("component", "setup"))

	logLevel := defaultLogLevel
	opts := &config.Options{Logger: logger}

	root := &cobra.Command{
		Use:           "tgrel",
		Short:         "Release tooling for the Standardized Testing GUI: bundle, installer, and container image",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&opts.ProjectRoot, "project-root", ".", "Project directory containing the application source")
	root.PersistentFlags().StringVar(&opts.OutputRoot, "output-root", "", "Directory for build output (defaults to the project root)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if levelVar != nil {
			levelVar.Set(level)
		}
		return nil
	}

	root.AddCommand(
		newReleaseCommand(logger, opts),
		newCleanCommand(logger, opts),
		newBundleCommand(logger, opts),
		newInstallerCommand(logger, opts),
		newImageCommand(logger, opts),
		newSetupCommand(logger, opts),
	)
	return root
}

func newReleaseCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Run the full pipeline: clean, bundle, installer, container image",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "release")

			run, err := config.Release(cmd.Context(), *opts)
			if err != nil {
				if run != nil {
					cmdLogger.Error("release failed", "outcome", run.Outcome)
				}
				return err
			}

			cmdLogger.Info("release completed", "outcome", run.Outcome)
			for stage, artifact := range run.Artifacts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", stage, artifact.Kind, artifact.Location)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.SkipInstaller, "skip-installer", false, "Skip the installer stage")
	cmd.Flags().BoolVar(&opts.SkipImage, "skip-image", false, "Skip the container image stage")
	cmd.Flags().StringVar(&opts.ManifestPath, "manifest", "", "Bundle manifest path (defaults to release.yaml)")
	cmd.Flags().StringVar(&opts.InstallerConfigPath, "installer-config", "", "Installer config path (defaults to installer.yaml)")

	return cmd
}

func newCleanCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build output from previous release attempts (always exits 0)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "clean")
			// Cleaning is best-effort: leftover output never blocks the
			// next build, which cleans again before it runs.
			if err := config.Clean(*opts); err != nil {
				cmdLogger.Warn("some build output could not be removed", "error", err)
				return nil
			}
			cmdLogger.Info("build output removed")
			return nil
		},
	}
}

func newBundleCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Freeze the application into a standalone executable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "bundle")

			artifact, err := config.Bundle(cmd.Context(), *opts)
			if err != nil {
				return err
			}

			cmdLogger.Info("bundle completed", "executable", artifact.Location)
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Location)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ManifestPath, "manifest", "", "Bundle manifest path (defaults to release.yaml)")

	return cmd
}

func newInstallerCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installer",
		Short: "Build and exercise the application installer",
	}
	cmd.PersistentFlags().StringVar(&opts.InstallerConfigPath, "installer-config", "", "Installer config path (defaults to installer.yaml)")

	cmd.AddCommand(
		newInstallerBuildCommand(logger, opts),
		newInstallerWizardCommand(logger, opts),
		newInstallerUninstallCommand(logger, opts),
	)
	return cmd
}

func newInstallerBuildCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Compile the installer from the existing bundle output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "installer.build")

			artifact, err := config.BuildInstaller(cmd.Context(), *opts)
			if err != nil {
				return err
			}

			cmdLogger.Info("installer built", "installer", artifact.Location)
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Location)
			return nil
		},
	}
}

func newInstallerWizardCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Walk the install wizard on this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "installer.wizard")

			if err := config.RunWizard(*opts); err != nil {
				return err
			}
			if opts.InstallDest != "" {
				cmdLogger.Info("installation completed", "dest", opts.InstallDest)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.InstallDest, "dest", "", "Install destination; omit to walk the flow without installing")

	return cmd
}

func newInstallerUninstallCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Reverse an installation, refusing while the application runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "installer.uninstall")

			if err := config.Uninstall(*opts); err != nil {
				return err
			}
			cmdLogger.Info("uninstall completed", "dest", opts.InstallDest)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.InstallDest, "dest", "", "Installed destination to remove")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}

func newImageCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Build and run the GUI-forwarding container image",
	}

	cmd.AddCommand(
		newImageBuildCommand(logger, opts),
		newImageRunCommand(logger, opts),
		newImageTestCommand(logger, opts),
		newImageCleanupCommand(logger, opts),
	)
	return cmd
}

func newImageBuildCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the application container image",
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := config.BuildImage(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			logger.Info("image built", "image", artifact.Location)
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Location)
			return nil
		},
	}
}

func newImageRunCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the containerized application with GUI forwarding",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "image.run")

			code, err := config.RunImage(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			if code != 0 {
				// The CLI reproduces the application's own exit code.
				cmdLogger.Warn("application exited with a non-zero code", "code", code)
				return &pipeline.ExitError{Code: code}
			}
			return nil
		},
	}
}

func newImageTestCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run the display forwarding smoke test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.TestImage(cmd.Context(), *opts); err != nil {
				return err
			}
			logger.Info("display smoke test passed")
			return nil
		},
	}
}

func newImageCleanupCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the container, image, and deployment network",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CleanupImage(cmd.Context(), *opts); err != nil {
				return err
			}
			logger.Info("container resources removed")
			return nil
		},
	}
}

func newSetupCommand(logger *slog.Logger, opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Prepare the project directory for release builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdLogger := logger.With("command", "setup")

			if err := setup.Verify(opts.ProjectRoot); err == nil {
				cmdLogger.Info("project already prepared")
				return nil
			}

			if err := setup.Scaffold(opts.ProjectRoot); err != nil {
				cmdLogger.Error("scaffold failed", "error", err)
				return err
			}
			cmdLogger.Info("project prepared for release builds")
			return nil
		},
	}
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}
