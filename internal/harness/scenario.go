package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/testutil"
)

// Scenario is one end-to-end packet run with expectations.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// User is the subject of the packet. Defaults to "octocat".
	User string `yaml:"user,omitempty"`

	Window WindowSpec `yaml:"window"`

	// Profiles to render besides internal. Nil means manager and public.
	Profiles []string `yaml:"profiles,omitempty"`

	// Slices describe search coverage. Nil means one complete slice.
	Slices []SliceSpec `yaml:"slices,omitempty"`

	Events []EventSpec `yaml:"events"`

	Assertions []Assertion `yaml:"assertions"`
}

// WindowSpec is a [since, until) window of YYYY-MM-DD dates.
type WindowSpec struct {
	Since string `yaml:"since"`
	Until string `yaml:"until"`
}

// SliceSpec is one coverage slice.
type SliceSpec struct {
	Total     int  `yaml:"total"`
	Fetched   int  `yaml:"fetched"`
	Truncated bool `yaml:"truncated,omitempty"`
}

// EventSpec is one ledger event. Timestamps derive from the number.
type EventSpec struct {
	Kind       string   `yaml:"kind"` // pull_request or review
	Repo       string   `yaml:"repo"`
	Number     int      `yaml:"number"`
	Title      string   `yaml:"title,omitempty"`
	State      string   `yaml:"state,omitempty"` // review state
	Visibility string   `yaml:"visibility,omitempty"`
	Paths      []string `yaml:"paths,omitempty"`
	Additions  *int     `yaml:"additions,omitempty"`
	Deletions  *int     `yaml:"deletions,omitempty"`
	Changed    *int     `yaml:"changed_files,omitempty"`
}

// Assertion checks one property of a finished run.
type Assertion struct {
	Type    string            `yaml:"type"`
	Expect  string            `yaml:"expect,omitempty"`  // completeness
	Count   int               `yaml:"count,omitempty"`   // workstream_count
	Text    string            `yaml:"text,omitempty"`    // packet_*, warning_contains
	Profile string            `yaml:"profile,omitempty"` // packet_*
	Fields  map[string]string `yaml:"fields,omitempty"`  // history
}

// Assertion type constants.
const (
	AssertCompleteness    = "completeness"
	AssertWorkstreamCount = "workstream_count"
	AssertWarningContains = "warning_contains"
	AssertPacketContains  = "packet_contains"
	AssertPacketExcludes  = "packet_excludes"
	AssertBundleVerifies  = "bundle_verifies"
	AssertHistory         = "history"
)

// LoadScenario reads a scenario file, rejecting unknown fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadScenarios loads every *.yaml file in dir, in name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if _, err := s.window(); err != nil {
		return fmt.Errorf("window: %w", err)
	}
	for _, p := range s.Profiles {
		if _, err := model.ParseProfile(p); err != nil {
			return fmt.Errorf("profiles: %w", err)
		}
	}
	for i, ev := range s.Events {
		if ev.Repo == "" {
			return fmt.Errorf("events[%d]: repo is required", i)
		}
		if ev.Number <= 0 {
			return fmt.Errorf("events[%d]: number must be positive", i)
		}
		switch model.EventKind(ev.Kind) {
		case model.KindPullRequest:
		case model.KindReview:
			if ev.State == "" {
				return fmt.Errorf("events[%d]: state is required for review", i)
			}
		default:
			return fmt.Errorf("events[%d]: unknown kind %q", i, ev.Kind)
		}
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCompleteness:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for completeness", index)
		}
	case AssertWorkstreamCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertWarningContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for warning_contains", index)
		}
	case AssertPacketContains, AssertPacketExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
		if _, err := model.ParseProfile(a.Profile); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertBundleVerifies:
	case AssertHistory:
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields are required for history", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s *Scenario) window() (model.TimeWindow, error) {
	since, err := model.ParseDate(s.Window.Since)
	if err != nil {
		return model.TimeWindow{}, err
	}
	until, err := model.ParseDate(s.Window.Until)
	if err != nil {
		return model.TimeWindow{}, err
	}
	return model.TimeWindow{Since: since, Until: until}, nil
}

func (s *Scenario) user() string {
	if s.User == "" {
		return "octocat"
	}
	return s.User
}

func (s *Scenario) profiles() []model.Profile {
	if s.Profiles == nil {
		return []model.Profile{model.ProfileManager, model.ProfilePublic}
	}
	out := make([]model.Profile, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		out = append(out, model.Profile(p))
	}
	return out
}

// Input builds the ledger events and coverage manifest the scenario describes.
func (s *Scenario) Input() ([]model.EventEnvelope, model.CoverageManifest, error) {
	window, err := s.window()
	if err != nil {
		return nil, model.CoverageManifest{}, err
	}

	events := make([]model.EventEnvelope, 0, len(s.Events))
	for _, spec := range s.Events {
		events = append(events, spec.build())
	}

	cov := testutil.Coverage("", s.user(), window, len(events))
	if s.Slices != nil {
		cov.Slices = make([]model.CoverageSlice, 0, len(s.Slices))
		for i, sl := range s.Slices {
			slice := model.CoverageSlice{
				Window:     window,
				Query:      fmt.Sprintf("author:%s slice:%d", s.user(), i),
				TotalCount: sl.Total,
				Fetched:    sl.Fetched,
			}
			if sl.Truncated {
				truncated := true
				slice.Truncated = &truncated
			}
			cov.Slices = append(cov.Slices, slice)
		}
	}
	return events, cov, nil
}

func (e EventSpec) build() model.EventEnvelope {
	var opts []testutil.EventOption
	if e.Title != "" {
		opts = append(opts, testutil.WithTitle(e.Title))
	}
	if e.Visibility != "" {
		opts = append(opts, testutil.WithVisibility(model.Visibility(e.Visibility)))
	}
	if len(e.Paths) > 0 {
		opts = append(opts, testutil.WithPaths(e.Paths...))
	}
	if e.Additions != nil || e.Deletions != nil || e.Changed != nil {
		opts = append(opts, testutil.WithDiffStats(deref(e.Additions), deref(e.Deletions), deref(e.Changed)))
	}
	if model.EventKind(e.Kind) == model.KindReview {
		return testutil.Review(e.Repo, e.Number, e.State, opts...)
	}
	return testutil.PR(e.Repo, e.Number, opts...)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
