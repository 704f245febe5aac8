package harness

import (
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/store"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool

	RunID        string
	Dir          string
	Completeness model.Completeness
	Warnings     []string

	// Workstreams is the canonical (internal) workstreams file.
	Workstreams model.WorkstreamsFile

	// Packets holds packet.md per rendered profile, internal included.
	Packets map[model.Profile]string

	// Manifests holds each bundle manifest keyed by its directory relative
	// to the run directory ("." or "profiles/<p>").
	Manifests map[string]model.BundleManifest

	// History is the recorded run, if the store has it.
	History *store.RunRecord

	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Packets:   make(map[model.Profile]string),
		Manifests: make(map[string]model.BundleManifest),
		Errors:    []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
