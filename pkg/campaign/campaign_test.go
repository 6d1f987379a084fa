package campaign

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load("testdata/tdz2026.yaml")
	require.NoError(t, err)

	assert.Equal(t, "tdz-2026", c.ID)
	assert.Equal(t, DefaultMarker, c.Marker)
	assert.Equal(t, DefaultScoring(), c.Scoring)
	require.Len(t, c.Stages, 2)
	assert.Equal(t, time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), c.Stages[0].Start)
	assert.Equal(t, []string{"stage 1"}, c.Stages[0].Patterns())
	assert.Equal(t, []string{"stage 2", "hell of the north"}, c.Stages[1].Patterns())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing id",
			yaml:    "stages:\n  - id: '1'\n    start: 2026-01-01T00:00:00Z\n    end: 2026-01-02T00:00:00Z",
			wantErr: "id is required",
		},
		{
			name:    "no stages",
			yaml:    "id: x",
			wantErr: "at least one stage is required",
		},
		{
			name:    "end before start",
			yaml:    "id: x\nstages:\n  - id: '1'\n    start: 2026-01-02T00:00:00Z\n    end: 2026-01-01T00:00:00Z",
			wantErr: "end is before start",
		},
		{
			name:    "duplicate stage",
			yaml:    "id: x\nstages:\n  - id: '1'\n    start: 2026-01-01T00:00:00Z\n    end: 2026-01-02T00:00:00Z\n  - id: '1'\n    start: 2026-01-01T00:00:00Z\n    end: 2026-01-02T00:00:00Z",
			wantErr: `duplicate id "1"`,
		},
		{
			name:    "missing window",
			yaml:    "id: x\nstages:\n  - id: '1'",
			wantErr: "start and end are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_CustomScoring(t *testing.T) {
	c, err := Parse([]byte(`
id: x
marker: Spring Series
scoring:
  exclude: []
  alternate: [hard]
stages:
  - id: "1"
    start: 2026-01-01T00:00:00Z
    end: 2026-01-02T00:00:00Z
`))
	require.NoError(t, err)
	assert.Empty(t, c.Scoring.Exclude)
	assert.Equal(t, []string{"hard"}, c.Scoring.Alternate)
	assert.Equal(t, []string{"cancelled"}, c.Scoring.HardExclude)
	assert.True(t, c.MatchesMarker("SPRING SERIES race 1"))
	assert.False(t, c.MatchesMarker("Tour de Zwift Stage 1"))
}

func TestActiveStages(t *testing.T) {
	c, err := Load("testdata/tdz2026.yaml")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"before campaign", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil},
		{"first stage start is inclusive", time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), []string{"1"}},
		{"second stage", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), []string{"2"}},
		{"after campaign", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, s := range c.ActiveStages(tt.now) {
				got = append(got, s.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStage_Contains(t *testing.T) {
	s := Stage{
		ID:    "1",
		Start: time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 12, 16, 59, 0, 0, time.UTC),
	}

	assert.True(t, s.Contains(s.Start, 0))
	assert.True(t, s.Contains(s.End, 0))
	assert.False(t, s.Contains(s.End.Add(time.Second), 0))
	assert.True(t, s.Contains(s.End.Add(time.Hour), 2*time.Hour))
	assert.False(t, s.Contains(time.Time{}, time.Hour))
}

func TestStage_DayWindow(t *testing.T) {
	s := Stage{
		Start: time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 12, 16, 59, 0, 0, time.UTC),
	}
	start, end := s.DayWindow()
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 12, 23, 59, 59, 0, time.UTC), end)
}

func TestStageLookup(t *testing.T) {
	c, err := Load("testdata/tdz2026.yaml")
	require.NoError(t, err)

	s, ok := c.Stage("2")
	require.True(t, ok)
	assert.Equal(t, "France", s.Name)

	_, ok = c.Stage("9")
	assert.False(t, ok)

	assert.Equal(t, []string{"1", "2"}, StageIDs([]Stage{s, c.Stages[0]}))
}
