// Package rawevents keeps the append-only catalog of every event ever
// discovered for a campaign. Records are never overwritten, so events
// survive after they age out of the upstream service.
package rawevents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/storage"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

// Record is the first-seen view of one event.
type Record struct {
	ID           string          `json:"zid"`
	Name         string          `json:"name"`
	Timestamp    int64           `json:"timestamp"`
	RouteID      string          `json:"route_id"`
	DiscoveredAt time.Time       `json:"discovery_timestamp"`
	Seq          int64           `json:"discovery_seq,omitempty"`
	Raw          json.RawMessage `json:"raw_data,omitempty"`
}

// Time returns the event start, or the zero time when unknown.
func (r Record) Time() time.Time {
	if r.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(r.Timestamp, 0).UTC()
}

// Catalog maps event ID to record.
type Catalog map[string]Record

// Key returns the storage key of a campaign's catalog.
func Key(campaignID string) string {
	return "raw/events/" + campaignID + ".json"
}

// Accumulator loads, merges and saves a campaign catalog.
type Accumulator struct {
	store  storage.Store
	key    string
	now    func() time.Time
	logger *logrus.Entry
}

type Option func(*Accumulator)

// WithClock replaces time.Now for discovery stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Accumulator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAccumulator(store storage.Store, campaignID string, opts ...Option) *Accumulator {
	a := &Accumulator{
		store:  store,
		key:    Key(campaignID),
		now:    time.Now,
		logger: logrus.WithFields(logrus.Fields{"component": "rawevents", "campaign": campaignID}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accumulator) Key() string { return a.key }

// Load returns the stored catalog, or an empty one if nothing is stored yet.
func (a *Accumulator) Load(ctx context.Context) (Catalog, error) {
	data, found, err := a.store.Get(ctx, a.key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load event catalog %s", a.key)
	}
	if !found {
		a.logger.WithField("key", a.key).Info("No event catalog stored yet")
		return Catalog{}, nil
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, errors.Wrapf(err, "failed to parse event catalog %s", a.key)
	}
	if cat == nil {
		cat = Catalog{}
	}
	a.logger.WithField("events", len(cat)).Debug("Loaded event catalog")
	return cat, nil
}

// Merge returns existing plus every candidate whose ID is not yet known.
// Candidates without an ID are skipped and known records are left as they
// are, so merging the same candidates twice changes nothing.
func (a *Accumulator) Merge(existing Catalog, candidates []json.RawMessage) Catalog {
	merged := make(Catalog, len(existing)+len(candidates))
	var seq int64
	for id, rec := range existing {
		merged[id] = rec
		if rec.Seq > seq {
			seq = rec.Seq
		}
	}

	discoveredAt := a.now().UTC()
	added := 0
	for _, raw := range candidates {
		c := upstream.ParseEventCandidate(raw)
		if c.ID == "" {
			continue
		}
		if _, ok := merged[c.ID]; ok {
			continue
		}
		seq++
		merged[c.ID] = Record{
			ID:           c.ID,
			Name:         c.Name,
			Timestamp:    c.Timestamp,
			RouteID:      c.RouteID,
			DiscoveredAt: discoveredAt,
			Seq:          seq,
			Raw:          append(json.RawMessage(nil), raw...),
		}
		added++
	}

	a.logger.WithFields(logrus.Fields{"added": added, "total": len(merged)}).Info("Merged events into catalog")
	return merged
}

// Save overwrites the stored catalog.
func (a *Accumulator) Save(ctx context.Context, cat Catalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal event catalog")
	}
	if err := a.store.Put(ctx, a.key, data); err != nil {
		return errors.Wrapf(err, "failed to save event catalog %s", a.key)
	}
	a.logger.WithField("events", len(cat)).Info("Saved event catalog")
	return nil
}

// Names projects the catalog onto event names.
func Names(cat Catalog) map[string]string {
	names := make(map[string]string, len(cat))
	for id, rec := range cat {
		names[id] = rec.Name
	}
	return names
}
