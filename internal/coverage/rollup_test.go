package coverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/receipts/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func slice(total, fetched int, truncated *bool) model.CoverageSlice {
	return model.CoverageSlice{
		Window:     w("2025-01-01", "2025-02-01"),
		Query:      "author:octocat is:pr",
		TotalCount: total,
		Fetched:    fetched,
		Truncated:  truncated,
	}
}

func TestRollup(t *testing.T) {
	tests := []struct {
		name   string
		slices []model.CoverageSlice
		want   model.Completeness
	}{
		{"no slices", nil, model.CompletenessUnknown},
		{"all matched", []model.CoverageSlice{slice(3, 3, nil), slice(0, 0, boolPtr(false))}, model.CompletenessComplete},
		{"under-fetched", []model.CoverageSlice{slice(3, 3, nil), slice(5, 4, nil)}, model.CompletenessPartial},
		{"truncated", []model.CoverageSlice{slice(3, 3, boolPtr(true))}, model.CompletenessPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rollup(tt.slices))
		})
	}
}

func TestRecorderWarnsOnUnderFetch(t *testing.T) {
	r := NewRecorder()
	r.AddSource("github")
	r.AddSource("github")
	r.Record(slice(3, 3, nil))
	r.Record(slice(10, 4, nil))

	at := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	m := r.Manifest("run-1", "octocat", w("2025-01-01", "2025-02-01"), model.ModeMerged, at)

	assert.Equal(t, model.CompletenessPartial, m.Completeness)
	assert.Equal(t, []string{"github"}, m.Sources)
	assert.Len(t, m.Slices, 2)
	assert.Len(t, m.Warnings, 1)
	assert.Contains(t, m.Warnings[0], "fetched 4 of 10")
}

func TestRecorderEmptyIsUnknown(t *testing.T) {
	m := NewRecorder().Manifest("run-1", "octocat", w("2025-01-01", "2025-02-01"), model.ModeCreated, time.Time{})

	assert.Equal(t, model.CompletenessUnknown, m.Completeness)
	assert.NotNil(t, m.Slices)
	assert.NotNil(t, m.Warnings)
}

func TestFinalizeNeverTrustsImportedVerdict(t *testing.T) {
	m := model.CoverageManifest{
		Completeness: model.CompletenessComplete,
		Slices:       []model.CoverageSlice{slice(10, 4, nil)},
	}
	out := Finalize(m)

	assert.Equal(t, model.CompletenessPartial, out.Completeness)
	assert.Len(t, out.Warnings, 1)
	assert.Equal(t, model.CompletenessComplete, m.Completeness, "input is not mutated")

	again := Finalize(out)
	assert.Equal(t, out.Warnings, again.Warnings, "warnings are not duplicated")
}

func TestFinalizeWithoutSlices(t *testing.T) {
	out := Finalize(model.CoverageManifest{Completeness: model.CompletenessComplete})

	assert.Equal(t, model.CompletenessUnknown, out.Completeness)
	assert.Equal(t, []string{noSlicesWarning}, out.Warnings)
}

func TestSliceWarningTruncated(t *testing.T) {
	assert.Contains(t, SliceWarning(slice(3, 3, boolPtr(true))), "truncated")
	assert.Empty(t, SliceWarning(slice(3, 3, nil)))
}
