package upstream

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Upstream payloads name the same attribute differently depending on the
// endpoint. Each list is tried in order and the first non-empty value wins.
var (
	historyNameFields      = []string{"event_title", "f_t", "name"}
	historyTimestampFields = []string{"event_date", "tm"}
	historyIDFields        = []string{"zid", "event_id", "DT_RowId"}

	candidateIDFields        = []string{"id", "zid", "DT_RowId"}
	candidateNameFields      = []string{"name", "t", "title"}
	candidateTimestampFields = []string{"timestamp", "tm"}
	candidateRouteFields     = []string{"route_id", "r"}
)

// HistoryEntry is one row of a rider's result history.
type HistoryEntry struct {
	EventID   string
	Name      string
	Timestamp int64
}

// Time returns the event start, or the zero time when unknown.
func (h HistoryEntry) Time() time.Time {
	if h.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(h.Timestamp, 0).UTC()
}

// EventCandidate is an event as seen in a result payload or event listing.
type EventCandidate struct {
	ID        string
	Name      string
	Timestamp int64
	RouteID   string
}

func ParseHistoryEntry(raw json.RawMessage) HistoryEntry {
	r := gjson.ParseBytes(raw)
	return HistoryEntry{
		EventID:   firstString(r, historyIDFields),
		Name:      firstString(r, historyNameFields),
		Timestamp: firstTimestamp(r, historyTimestampFields),
	}
}

func ParseEventCandidate(raw json.RawMessage) EventCandidate {
	r := gjson.ParseBytes(raw)
	return EventCandidate{
		ID:        firstString(r, candidateIDFields),
		Name:      firstString(r, candidateNameFields),
		Timestamp: firstTimestamp(r, candidateTimestampFields),
		RouteID:   firstString(r, candidateRouteFields),
	}
}

func firstString(r gjson.Result, fields []string) string {
	for _, f := range fields {
		v := r.Get(f)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		var s string
		if v.Type == gjson.Number {
			// Large IDs must not go through float formatting.
			s = v.Raw
		} else {
			s = strings.TrimSpace(v.String())
		}
		if s != "" && s != "0" {
			return s
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func firstTimestamp(r gjson.Result, fields []string) int64 {
	for _, f := range fields {
		v := r.Get(f)
		switch v.Type {
		case gjson.Number:
			if ts := v.Int(); ts > 0 {
				return ts
			}
		case gjson.String:
			s := strings.TrimSpace(v.Str)
			if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
				return ts
			}
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.Unix()
				}
			}
		}
	}
	return 0
}
