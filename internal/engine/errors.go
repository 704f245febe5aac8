package engine

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage a run failed in.
type Stage string

const (
	// StageIngest covers reading and validating input events and coverage.
	StageIngest Stage = "INGEST"

	// StageCluster covers clustering and loading edited workstreams.
	StageCluster Stage = "CLUSTER"

	// StageWrite covers creating the run directory and writing canonical files.
	StageWrite Stage = "WRITE"

	// StageRender covers packet rendering.
	StageRender Stage = "RENDER"

	// StageRedact covers key checks and profile projections.
	StageRedact Stage = "REDACT"

	// StageBundle covers manifest computation.
	StageBundle Stage = "BUNDLE"

	// StageArchive covers zip archives.
	StageArchive Stage = "ARCHIVE"
)

// RunError is a fatal error that aborted a run.
type RunError struct {
	Stage Stage

	// RunID is empty when the run failed before an id was assigned.
	RunID string

	Err error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %v (run=%s)", e.Stage, e.Err, e.RunID)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a RunError anywhere in err's chain.
// Uses errors.As to handle wrapped errors.
func StageOf(err error) (Stage, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stage, true
	}
	return "", false
}

// IsStage reports whether err is a RunError from stage s.
func IsStage(err error, s Stage) bool {
	got, ok := StageOf(err)
	return ok && got == s
}

func newRunError(stage Stage, runID string, err error) *RunError {
	return &RunError{Stage: stage, RunID: runID, Err: err}
}
