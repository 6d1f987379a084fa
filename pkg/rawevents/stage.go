package rawevents

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
)

// Score terms.
const (
	scoreMarker      = 2
	scoreInWindow    = 3
	scoreOutOfWindow = -5
	scoreAlternate   = -2
	scoreHardExclude = -10
)

// StageEvent is a catalog event ranked for a stage.
type StageEvent struct {
	ID    string    `json:"event_id"`
	Name  string    `json:"name"`
	Time  time.Time `json:"timestamp"`
	Score int       `json:"score"`
}

// Scorer ranks catalog events against stages of one campaign.
type Scorer struct {
	marker      string
	exclude     []string
	alternate   []string
	hardExclude []string
}

func NewScorer(c *campaign.Campaign) Scorer {
	marker := c.Marker
	if marker == "" {
		marker = campaign.DefaultMarker
	}
	return Scorer{
		marker:      strings.ToLower(marker),
		exclude:     lower(c.Scoring.Exclude),
		alternate:   lower(c.Scoring.Alternate),
		hardExclude: lower(c.Scoring.HardExclude),
	}
}

// StageEvents ranks the catalog with the default markers.
func StageEvents(cat Catalog, stage campaign.Stage, start, end time.Time) []StageEvent {
	return NewScorer(&campaign.Campaign{Scoring: campaign.DefaultScoring()}).StageEvents(cat, stage, start, end)
}

// StageEvents returns catalog events whose name matches one of the stage's
// patterns and no excluded variant, best score first. Equal scores keep
// discovery order. Events outside [start, end] are kept with a penalty.
func (s Scorer) StageEvents(cat Catalog, stage campaign.Stage, start, end time.Time) []StageEvent {
	records := make([]Record, 0, len(cat))
	for _, rec := range cat {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].DiscoveredAt.Equal(records[j].DiscoveredAt) {
			return records[i].DiscoveredAt.Before(records[j].DiscoveredAt)
		}
		if records[i].Seq != records[j].Seq {
			return records[i].Seq < records[j].Seq
		}
		return records[i].ID < records[j].ID
	})

	patterns := stage.Patterns()
	var out []StageEvent
	for _, rec := range records {
		name := strings.ToLower(rec.Name)
		if !containsAny(name, patterns) || containsAny(name, s.exclude) {
			continue
		}

		score := 0
		if containsPhrase(name, s.marker) {
			score += scoreMarker
		}
		if containsAny(name, s.alternate) {
			score += scoreAlternate
		}
		if containsAny(name, s.hardExclude) {
			score += scoreHardExclude
		}
		t := rec.Time()
		if !t.IsZero() {
			if !t.Before(start) && !t.After(end) {
				score += scoreInWindow
			} else {
				score += scoreOutOfWindow
			}
		}

		out = append(out, StageEvent{ID: rec.ID, Name: rec.Name, Time: t, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(name string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(name, p) {
			return true
		}
	}
	return false
}

// containsPhrase matches phrase in name on word boundaries, so "stage 1"
// does not match "stage 12" and "run" does not match "sprint".
func containsPhrase(name, phrase string) bool {
	if phrase == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(name[from:], phrase)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(phrase)
		if boundaryBefore(name, i) && boundaryAfter(name, end) {
			return true
		}
		from = i + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}
