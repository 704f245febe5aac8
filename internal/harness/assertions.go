package harness

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/receipts/internal/bundle"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/writer"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against r and returns the
// failure messages, in assertion order.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertCompleteness:
		return assertCompleteness(r, a)
	case AssertWorkstreamCount:
		return assertWorkstreamCount(r, a)
	case AssertWarningContains:
		return assertWarningContains(r, a)
	case AssertPacketContains:
		return assertPacket(r, a, true)
	case AssertPacketExcludes:
		return assertPacket(r, a, false)
	case AssertBundleVerifies:
		return assertBundleVerifies(r)
	case AssertHistory:
		return assertHistory(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCompleteness(r *Result, a Assertion) error {
	if string(r.Completeness) == a.Expect {
		return nil
	}
	return &AssertionError{Type: a.Type, Expected: a.Expect, Actual: string(r.Completeness)}
}

func assertWorkstreamCount(r *Result, a Assertion) error {
	if n := len(r.Workstreams.Workstreams); n != a.Count {
		titles := make([]string, n)
		for i, ws := range r.Workstreams.Workstreams {
			titles[i] = ws.Title
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: strconv.Itoa(a.Count),
			Actual:   fmt.Sprintf("%d %v", n, titles),
		}
	}
	return nil
}

func assertWarningContains(r *Result, a Assertion) error {
	for _, w := range r.Warnings {
		if strings.Contains(w, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a warning containing %q", a.Text),
		Actual:   fmt.Sprintf("%q", r.Warnings),
	}
}

func assertPacket(r *Result, a Assertion, want bool) error {
	packet, ok := r.Packets[model.Profile(a.Profile)]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "profile " + a.Profile + " rendered", Actual: "not rendered"}
	}
	if strings.Contains(packet, a.Text) == want {
		return nil
	}
	expected := fmt.Sprintf("%s packet contains %q", a.Profile, a.Text)
	actual := "absent"
	if !want {
		expected = fmt.Sprintf("%s packet omits %q", a.Profile, a.Text)
		actual = "present"
	}
	return &AssertionError{Type: a.Type, Expected: expected, Actual: actual}
}

func assertBundleVerifies(r *Result) error {
	for rel := range r.Manifests {
		dir := r.Dir
		var filter bundle.Filter
		if rel == "." {
			filter = bundle.Exclude(writer.AliasesName)
		} else {
			dir = filepath.Join(r.Dir, filepath.FromSlash(rel))
		}
		_, mismatches, err := bundle.Verify(dir, filter)
		if err != nil {
			return err
		}
		if len(mismatches) > 0 {
			return &AssertionError{Type: AssertBundleVerifies, Expected: rel + " intact", Actual: fmt.Sprint(mismatches)}
		}
	}
	return nil
}

// assertHistory compares the recorded run field by field. Supported fields:
// subject, completeness, events, workstreams, profiles, window.
func assertHistory(r *Result, a Assertion) error {
	if r.History == nil {
		return &AssertionError{Type: a.Type, Expected: "run recorded", Actual: "not in history"}
	}
	h := r.History
	profiles := make([]string, len(h.Profiles))
	for i, p := range h.Profiles {
		profiles[i] = string(p)
	}
	got := map[string]string{
		"subject":      h.Subject,
		"completeness": string(h.Completeness),
		"events":       strconv.Itoa(h.Events),
		"workstreams":  strconv.Itoa(h.Workstreams),
		"profiles":     strings.Join(profiles, ","),
		"window":       h.Window.String(),
	}
	for field, want := range a.Fields {
		actual, ok := got[field]
		if !ok {
			return fmt.Errorf("unknown history field %q", field)
		}
		if actual != want {
			return &AssertionError{Type: a.Type, Expected: field + "=" + want, Actual: field + "=" + actual}
		}
	}
	return nil
}
