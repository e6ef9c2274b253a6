// Package pipeline sequences the release stages and owns the failure
// taxonomy shared by all of them. The pipeline is strictly sequential: no
// stage starts before its predecessor's artifact is validated, and the
// first failure aborts everything after it. The design assumes at most one
// pipeline run at a time; no locking is implemented, and none is required
// under that assumption.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cbecquet/testgui-release/internal/artifacts"
)

// OutcomeSuccess is the terminal outcome of a run that completed every
// stage. Aborted runs carry "aborted-at-stage-N" instead.
const OutcomeSuccess = "success"

// Step is one schedulable unit of the pipeline. Run returns the stage's
// artifact, nil for stages that produce none (cleanup, manifest
// resolution).
type Step struct {
	Name string
	Run  func(ctx context.Context) (*artifacts.Artifact, error)
}

// Run is the process-wide state of one pipeline invocation. It is created
// at invocation start and discarded at process exit; it is never
// serialized, so an interrupted run leaves no resumable checkpoint and
// each rerun restarts at the first stage after cleanup.
type Run struct {
	ID        string
	Steps     []string
	Index     int
	Outcome   string
	Artifacts map[string]artifacts.Artifact
}

// Orchestrator executes steps in their declared order.
type Orchestrator struct {
	Logger *slog.Logger
	Steps  []Step
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Execute runs every step in order, halting on the first failure. The
// returned Run always describes how far the pipeline got; on failure the
// error is the failing stage's own, with its captured diagnostic logged.
// Partial on-disk state is preserved for inspection and cleared only by a
// later explicit clean.
func (o *Orchestrator) Execute(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Artifacts: map[string]artifacts.Artifact{},
	}
	for _, step := range o.Steps {
		run.Steps = append(run.Steps, step.Name)
	}

	logger := o.logger().With("run", run.ID)
	logger.Info("pipeline started", "stages", len(o.Steps))

	for i, step := range o.Steps {
		run.Index = i
		stepLogger := logger.With("stage", step.Name, "index", i)
		stepLogger.Info("stage started")

		artifact, err := step.Run(ctx)
		if err != nil {
			run.Outcome = fmt.Sprintf("aborted-at-stage-%d", i)
			stepLogger.Error("stage failed", "error", err)
			if diag := Diagnostic(err); diag != "" {
				stepLogger.Error("tool output", "diagnostic", diag)
			}
			return run, err
		}

		if artifact != nil {
			run.Artifacts[step.Name] = *artifact
			stepLogger.Info("stage succeeded", "artifact", artifact.Location, "kind", artifact.Kind)
		} else {
			stepLogger.Info("stage succeeded")
		}
	}

	run.Outcome = OutcomeSuccess
	logger.Info("pipeline succeeded")
	return run, nil
}

// Diagnostic extracts the captured external-tool output from a stage
// failure, empty when the error carries none.
func Diagnostic(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Diagnostic
	}
	return ""
}
