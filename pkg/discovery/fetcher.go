package discovery

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

const (
	DefaultEventBatchSize  = 3
	DefaultEventBatchDelay = 2 * time.Second
)

// ResultsKey is the cache key of an event's fetched results. Dot-only IDs
// are percent-encoded so they stay a single path segment.
func ResultsKey(eventID string) string {
	segment := url.PathEscape(eventID)
	if strings.Trim(segment, ".") == "" {
		segment = strings.ReplaceAll(segment, ".", "%2E")
	}
	return "raw/events/" + segment + "/results.json"
}

// CachedResults is the document stored at ResultsKey.
type CachedResults struct {
	EventID   string            `json:"event_id"`
	EventName string            `json:"event_name"`
	Timestamp int64             `json:"timestamp"`
	FetchedAt time.Time         `json:"fetched_at"`
	Results   []json.RawMessage `json:"results"`
}

type FetcherConfig struct {
	BatchSize  int           `mapstructure:"event_batch_size" yaml:"event_batch_size"`
	BatchDelay time.Duration `mapstructure:"event_batch_delay" yaml:"event_batch_delay"`
}

// ResultFetcher downloads full result sets of discovered events into the
// results cache.
type ResultFetcher struct {
	client upstream.Client
	store  storage.Store
	cfg    FetcherConfig
	opts   options
	logger *logrus.Entry
}

func NewResultFetcher(client upstream.Client, store storage.Store, cfg FetcherConfig, opts ...Option) *ResultFetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEventBatchSize
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultEventBatchDelay
	}
	return &ResultFetcher{
		client: client,
		store:  store,
		cfg:    cfg,
		opts:   applyOptions(opts),
		logger: logrus.WithField("component", "result_fetcher"),
	}
}

func (f *ResultFetcher) IsCached(ctx context.Context, eventID string) (bool, error) {
	ok, err := f.store.Exists(ctx, ResultsKey(eventID))
	if err != nil {
		return false, errors.Wrapf(err, "failed to check results cache for event %s", eventID)
	}
	return ok, nil
}

// FetchEvent fetches and caches one event's results and marks it fetched.
//
// An event already in the cache is marked fetched without an upstream call.
// Upstream failures are logged and the event is still marked fetched with
// a zero count. Storage failures are returned and leave the event pending.
func (f *ResultFetcher) FetchEvent(ctx context.Context, eventID string, info checkpoint.DiscoveredEvent, cp *checkpoint.Checkpoint) (int, string, error) {
	log := f.logger.WithField("event_id", eventID)
	if cp.IsEventFetched(eventID) {
		log.Debug("Event already fetched, skipping")
		return 0, "", nil
	}

	key := ResultsKey(eventID)
	cached, err := f.IsCached(ctx, eventID)
	if err != nil {
		return 0, "", err
	}
	if cached {
		log.Debug("Event results already cached, marking fetched")
		cp.MarkEventFetched(eventID)
		return 0, key, nil
	}

	name := info.Name
	if name == "" {
		details, err := f.client.EventDetails(ctx, eventID)
		if err != nil || details.Title == "" {
			if ctx.Err() != nil {
				return 0, "", ctx.Err()
			}
			log.WithError(err).Warn("Failed to fetch event details")
			name = "Event " + eventID
		} else {
			name = details.Title
		}
	}

	results, err := f.client.EventResults(ctx, eventID)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		log.WithError(err).Error("Failed to fetch event results")
		cp.MarkEventFetched(eventID)
		return 0, "", nil
	}
	if results == nil {
		results = []json.RawMessage{}
	}

	doc := CachedResults{
		EventID:   eventID,
		EventName: name,
		Timestamp: info.Timestamp,
		FetchedAt: f.opts.now().UTC(),
		Results:   results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, "", errors.Wrapf(err, "failed to marshal results of event %s", eventID)
	}
	if err := f.store.Put(ctx, key, data); err != nil {
		return 0, "", errors.Wrapf(err, "failed to cache results of event %s", eventID)
	}

	cp.MarkEventFetched(eventID)
	log.WithFields(logrus.Fields{"results": len(results), "key": key}).Info("Cached event results")
	return len(results), key, nil
}

// FetchNextBatch fetches the next BatchSize pending events in discovery
// order. Found is the number of result rows stored.
func (f *ResultFetcher) FetchNextBatch(ctx context.Context, cp *checkpoint.Checkpoint) (BatchStats, error) {
	pending := cp.PendingEvents()
	if len(pending) == 0 {
		f.logger.Info("All events fetched")
		return BatchStats{}, nil
	}

	batch := pending
	if len(batch) > f.cfg.BatchSize {
		batch = batch[:f.cfg.BatchSize]
	}
	f.logger.WithFields(logrus.Fields{
		"batch":     len(batch),
		"remaining": len(pending) - len(batch),
	}).Info("Fetching event batch")

	var stats BatchStats
	for _, id := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		var info checkpoint.DiscoveredEvent
		if ev := cp.EventsDiscovered[id]; ev != nil {
			info = *ev
		}
		n, _, err := f.FetchEvent(ctx, id, info, cp)
		if err != nil {
			return stats, err
		}
		stats.Processed++
		stats.Found += n
	}

	stats.More = len(pending) > len(batch)
	if stats.More {
		if err := f.opts.sleep(ctx, f.cfg.BatchDelay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
