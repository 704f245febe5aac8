// Package cluster groups canonical events into workstreams.
//
// Two interchangeable strategies implement Clusterer:
//
//   - RepoClusterer: one workstream per repository. Deterministic, no
//     external dependency; the safe default and the ground truth in tests.
//   - LLMClusterer: asks a text-completion backend for thematic groupings,
//     then validates every index it returns and reconciles the result so
//     that member lists always partition the input events.
//
// Either strategy only produces a default WorkstreamsFile. A hand-edited
// copy, when present, takes precedence (see engine).
package cluster

import (
	"context"
	"log/slog"

	"github.com/roach88/receipts/internal/model"
)

// Clusterer groups events into workstreams.
//
// Implementations must return workstreams whose member lists contain every
// input event exactly once.
type Clusterer interface {
	Cluster(ctx context.Context, events []model.EventEnvelope) (model.WorkstreamsFile, error)
}

// Fallback runs Primary and, if it fails, Secondary.
//
// Typical use pairs an LLMClusterer with a RepoClusterer so an unreachable
// or misbehaving backend degrades to per-repository grouping.
type Fallback struct {
	Primary   Clusterer
	Secondary Clusterer
	Logger    *slog.Logger
}

// Cluster implements Clusterer.
func (f Fallback) Cluster(ctx context.Context, events []model.EventEnvelope) (model.WorkstreamsFile, error) {
	file, err := f.Primary.Cluster(ctx, events)
	if err == nil {
		return file, nil
	}
	if ctx.Err() != nil {
		return model.WorkstreamsFile{}, err
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("primary clusterer failed, falling back", "error", err)
	return f.Secondary.Cluster(ctx, events)
}
