// Package campaign describes a multi-stage campaign: its stage windows and
// the name markers used to recognise and rank its events.
package campaign

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMarker is the generic campaign marker expected in event names.
const DefaultMarker = "tour de zwift"

// Campaign is a recurring multi-stage event.
type Campaign struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Marker string  `yaml:"marker"`
	Stages []Stage `yaml:"stages"`

	Scoring Scoring `yaml:"scoring"`
}

// Stage is a named, possibly overlapping time window.
type Stage struct {
	ID             string    `yaml:"id"`
	Name           string    `yaml:"name"`
	Start          time.Time `yaml:"start"`
	End            time.Time `yaml:"end"`
	SearchPatterns []string  `yaml:"search_patterns"`
	Category       string    `yaml:"category"`
}

// Scoring holds the name markers used to rank catalog candidates.
type Scoring struct {
	// Excluded variants are dropped before scoring.
	Exclude []string `yaml:"exclude"`
	// Alternate variants are kept with a penalty.
	Alternate []string `yaml:"alternate"`
	// HardExclude markers are kept with a heavy penalty.
	HardExclude []string `yaml:"hard_exclude"`
}

func DefaultScoring() Scoring {
	return Scoring{
		Exclude:     []string{"run"},
		Alternate:   []string{"advanced"},
		HardExclude: []string{"cancelled"},
	}
}

// Load reads a campaign definition from a YAML file.
func Load(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading campaign file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("campaign file %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a campaign definition, filling defaults.
func Parse(data []byte) (*Campaign, error) {
	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Campaign) applyDefaults() {
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	def := DefaultScoring()
	if c.Scoring.Exclude == nil {
		c.Scoring.Exclude = def.Exclude
	}
	if c.Scoring.Alternate == nil {
		c.Scoring.Alternate = def.Alternate
	}
	if c.Scoring.HardExclude == nil {
		c.Scoring.HardExclude = def.HardExclude
	}
	for i := range c.Stages {
		c.Stages[i].Start = c.Stages[i].Start.UTC()
		c.Stages[i].End = c.Stages[i].End.UTC()
	}
}

// Validate checks the campaign for configuration errors.
func (c *Campaign) Validate() error {
	var problems []string
	if c.ID == "" {
		problems = append(problems, "id is required")
	}
	if len(c.Stages) == 0 {
		problems = append(problems, "at least one stage is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Stages {
		switch {
		case s.ID == "":
			problems = append(problems, fmt.Sprintf("stages[%d]: id is required", i))
		case seen[s.ID]:
			problems = append(problems, fmt.Sprintf("stages[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Start.IsZero() || s.End.IsZero() {
			problems = append(problems, fmt.Sprintf("stages[%d]: start and end are required", i))
		} else if s.End.Before(s.Start) {
			problems = append(problems, fmt.Sprintf("stages[%d]: end is before start", i))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists every problem found in a campaign definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid campaign: " + strings.Join(e.Problems, "; ")
}

// Stage returns the stage with the given ID.
func (c *Campaign) Stage(id string) (Stage, bool) {
	for _, s := range c.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// ActiveStages returns the stages whose window contains now, in
// definition order.
func (c *Campaign) ActiveStages(now time.Time) []Stage {
	var active []Stage
	for _, s := range c.Stages {
		if s.Contains(now, 0) {
			active = append(active, s)
		}
	}
	return active
}

// MatchesMarker reports whether name contains the campaign marker,
// case-insensitively.
func (c *Campaign) MatchesMarker(name string) bool {
	marker := c.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(marker))
}

// Contains reports whether t falls inside the stage window widened by
// tolerance on both sides. Bounds are inclusive.
func (s Stage) Contains(t time.Time, tolerance time.Duration) bool {
	if t.IsZero() {
		return false
	}
	start := s.Start.Add(-tolerance)
	end := s.End.Add(tolerance)
	return !t.Before(start) && !t.After(end)
}

// Patterns returns the lower-cased name patterns of the stage, defaulting
// to "stage <id>".
func (s Stage) Patterns() []string {
	if len(s.SearchPatterns) == 0 {
		return []string{"stage " + strings.ToLower(s.ID)}
	}
	out := make([]string, len(s.SearchPatterns))
	for i, p := range s.SearchPatterns {
		out[i] = strings.ToLower(p)
	}
	return out
}

// DayWindow widens the stage window to whole UTC days: midnight of the
// start day through the last second of the end day.
func (s Stage) DayWindow() (time.Time, time.Time) {
	start := s.Start.UTC().Truncate(24 * time.Hour)
	end := s.End.UTC().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second)
	return start, end
}

// StageIDs returns the IDs of stages, sorted.
func StageIDs(stages []Stage) []string {
	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID
	}
	sort.Strings(ids)
	return ids
}
