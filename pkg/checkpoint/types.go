package checkpoint

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Version is the current checkpoint format version
const Version = "2.0"

// Phase is a step of the discovery state machine. Phases only move forward.
type Phase string

const (
	PhaseDiscoverRiders Phase = "discover_riders"
	PhaseFetchResults   Phase = "fetch_results"
	PhaseComplete       Phase = "complete"
)

func (p Phase) rank() int {
	switch p {
	case PhaseDiscoverRiders:
		return 0
	case PhaseFetchResults:
		return 1
	case PhaseComplete:
		return 2
	default:
		return -1
	}
}

// DiscoveredEvent is what the rider scan learned about an event.
type DiscoveredEvent struct {
	Name string `json:"event_name"`
	// Timestamp is unix seconds, 0 when upstream did not report one.
	Timestamp int64    `json:"timestamp"`
	StageIDs  []string `json:"stage_ids"`
}

// Time returns the event start, or the zero time when unknown.
func (e DiscoveredEvent) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(e.Timestamp, 0).UTC()
}

// Checkpoint represents the saved progress of one discovery run
type Checkpoint struct {
	Version    string `json:"version"`
	RunID      string `json:"run_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	Phase    Phase    `json:"phase"`
	StageIDs []string `json:"stage_ids"`

	RidersProcessed  []string                    `json:"riders_processed"`
	EventsDiscovered map[string]*DiscoveredEvent `json:"events_discovered"`
	// EventOrder lists discovered event IDs in first-discovery order.
	EventOrder    []string `json:"event_order"`
	EventsFetched []string `json:"events_fetched"`

	RunCount    int        `json:"run_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`

	riders  map[string]struct{}
	fetched map[string]struct{}
}

// New returns a zeroed checkpoint in the discover_riders phase.
func New() *Checkpoint {
	return &Checkpoint{
		Version:          Version,
		RunID:            uuid.NewString(),
		Phase:            PhaseDiscoverRiders,
		StageIDs:         []string{},
		RidersProcessed:  []string{},
		EventsDiscovered: make(map[string]*DiscoveredEvent),
		EventOrder:       []string{},
		EventsFetched:    []string{},
	}
}

// normalize repairs a decoded checkpoint: nil collections, missing order
// entries and fetched IDs that were never discovered.
func (c *Checkpoint) normalize() {
	if c.Phase.rank() < 0 {
		c.Phase = PhaseDiscoverRiders
	}
	if c.EventsDiscovered == nil {
		c.EventsDiscovered = make(map[string]*DiscoveredEvent)
	}
	if c.StageIDs == nil {
		c.StageIDs = []string{}
	}

	seen := make(map[string]struct{}, len(c.EventOrder))
	order := make([]string, 0, len(c.EventsDiscovered))
	for _, id := range c.EventOrder {
		if _, ok := c.EventsDiscovered[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	var missing []string
	for id, ev := range c.EventsDiscovered {
		if ev == nil {
			c.EventsDiscovered[id] = &DiscoveredEvent{}
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	c.EventOrder = append(order, missing...)

	c.RidersProcessed = dedupe(c.RidersProcessed, nil)
	c.EventsFetched = dedupe(c.EventsFetched, func(id string) bool {
		_, ok := c.EventsDiscovered[id]
		return ok
	})
	c.riders = nil
	c.fetched = nil
}

func dedupe(ids []string, keep func(string) bool) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		if keep != nil && !keep(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Finalized reports whether the run completed. A finalized checkpoint
// ignores every mutation.
func (c *Checkpoint) Finalized() bool {
	return c.CompletedAt != nil
}

// IsExpired reports whether a finalized checkpoint is older than ttl.
func (c *Checkpoint) IsExpired(now time.Time, ttl time.Duration) bool {
	if c.CompletedAt == nil {
		return false
	}
	return now.Sub(*c.CompletedAt) > ttl
}

func (c *Checkpoint) riderIndex() map[string]struct{} {
	if c.riders == nil {
		c.riders = make(map[string]struct{}, len(c.RidersProcessed))
		for _, id := range c.RidersProcessed {
			c.riders[id] = struct{}{}
		}
	}
	return c.riders
}

func (c *Checkpoint) fetchedIndex() map[string]struct{} {
	if c.fetched == nil {
		c.fetched = make(map[string]struct{}, len(c.EventsFetched))
		for _, id := range c.EventsFetched {
			c.fetched[id] = struct{}{}
		}
	}
	return c.fetched
}

func (c *Checkpoint) IsRiderProcessed(riderID string) bool {
	_, ok := c.riderIndex()[riderID]
	return ok
}

func (c *Checkpoint) MarkRiderProcessed(riderID string) {
	if c.Finalized() || c.IsRiderProcessed(riderID) {
		return
	}
	c.riderIndex()[riderID] = struct{}{}
	c.RidersProcessed = append(c.RidersProcessed, riderID)
}

// AddDiscovery records eventID against stageID. The first discovery fixes
// the name and timestamp; later ones only add stage IDs. It reports whether
// the (event, stage) pair was new.
func (c *Checkpoint) AddDiscovery(eventID, name string, timestamp int64, stageID string) bool {
	if c.Finalized() || eventID == "" {
		return false
	}
	ev, ok := c.EventsDiscovered[eventID]
	if !ok {
		ev = &DiscoveredEvent{Name: name, Timestamp: timestamp, StageIDs: []string{}}
		c.EventsDiscovered[eventID] = ev
		c.EventOrder = append(c.EventOrder, eventID)
	}
	for _, s := range ev.StageIDs {
		if s == stageID {
			return false
		}
	}
	ev.StageIDs = append(ev.StageIDs, stageID)
	return true
}

func (c *Checkpoint) IsEventFetched(eventID string) bool {
	_, ok := c.fetchedIndex()[eventID]
	return ok
}

// MarkEventFetched ignores IDs that were never discovered.
func (c *Checkpoint) MarkEventFetched(eventID string) {
	if c.Finalized() || c.IsEventFetched(eventID) {
		return
	}
	if _, ok := c.EventsDiscovered[eventID]; !ok {
		return
	}
	c.fetchedIndex()[eventID] = struct{}{}
	c.EventsFetched = append(c.EventsFetched, eventID)
}

// PendingEvents returns discovered but unfetched event IDs in discovery order.
func (c *Checkpoint) PendingEvents() []string {
	var pending []string
	for _, id := range c.EventOrder {
		if !c.IsEventFetched(id) {
			pending = append(pending, id)
		}
	}
	return pending
}

// Advance moves to phase p. Backward moves and moves on a finalized
// checkpoint are ignored.
func (c *Checkpoint) Advance(p Phase) {
	if c.Finalized() || p.rank() <= c.Phase.rank() {
		return
	}
	c.Phase = p
}

// BeginRun increments the run counter and stamps the first start time.
func (c *Checkpoint) BeginRun(now time.Time) {
	if c.Finalized() {
		return
	}
	c.RunCount++
	if c.StartedAt == nil {
		t := now.UTC()
		c.StartedAt = &t
	}
}

// Complete finalizes the checkpoint.
func (c *Checkpoint) Complete(now time.Time) {
	if c.Finalized() {
		return
	}
	c.Phase = PhaseComplete
	t := now.UTC()
	c.CompletedAt = &t
}

// SameStages reports whether the checkpoint targets exactly stageIDs,
// ignoring order.
func (c *Checkpoint) SameStages(stageIDs []string) bool {
	a := append([]string(nil), c.StageIDs...)
	b := append([]string(nil), stageIDs...)
	sort.Strings(a)
	sort.Strings(b)
	a = dedupe(a, nil)
	b = dedupe(b, nil)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Summary holds the progress counters reported to callers.
type Summary struct {
	RunID            string `json:"run_id"`
	Phase            Phase  `json:"phase"`
	RunCount         int    `json:"run_count"`
	RidersProcessed  int    `json:"riders_processed"`
	EventsDiscovered int    `json:"events_discovered"`
	EventsFetched    int    `json:"events_fetched"`
	EventsPending    int    `json:"events_pending"`
}

func (c *Checkpoint) Summary() Summary {
	return Summary{
		RunID:            c.RunID,
		Phase:            c.Phase,
		RunCount:         c.RunCount,
		RidersProcessed:  len(c.RidersProcessed),
		EventsDiscovered: len(c.EventsDiscovered),
		EventsFetched:    len(c.EventsFetched),
		EventsPending:    len(c.EventsDiscovered) - len(c.EventsFetched),
	}
}
