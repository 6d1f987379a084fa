package discovery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

const (
	DefaultRiderBatchSize  = 5
	DefaultRiderBatchDelay = 1500 * time.Millisecond
)

// Rider is a participant whose history is scanned.
type Rider struct {
	ID   string
	Name string
}

type ScannerConfig struct {
	BatchSize  int           `mapstructure:"rider_batch_size" yaml:"rider_batch_size"`
	BatchDelay time.Duration `mapstructure:"rider_batch_delay" yaml:"rider_batch_delay"`
	// Tolerance widens every stage window on both sides.
	Tolerance time.Duration `mapstructure:"window_tolerance" yaml:"window_tolerance"`
}

// RiderScanner finds campaign events in rider histories.
type RiderScanner struct {
	client   upstream.Client
	campaign *campaign.Campaign
	stages   []campaign.Stage
	cfg      ScannerConfig
	opts     options
	logger   *logrus.Entry
}

func NewRiderScanner(client upstream.Client, c *campaign.Campaign, stages []campaign.Stage, cfg ScannerConfig, opts ...Option) *RiderScanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRiderBatchSize
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultRiderBatchDelay
	}
	return &RiderScanner{
		client:   client,
		campaign: c,
		stages:   stages,
		cfg:      cfg,
		opts:     applyOptions(opts),
		logger:   logrus.WithField("component", "rider_scanner"),
	}
}

// ProcessRider scans one rider's history and records every (event, stage)
// match in cp. It returns the number of pairs found.
//
// The rider is marked processed even when nothing matched or the history
// could not be fetched, so a failing rider never blocks the run. Only a
// cancelled ctx leaves the rider pending.
func (s *RiderScanner) ProcessRider(ctx context.Context, rider Rider, cp *checkpoint.Checkpoint) int {
	log := s.logger.WithFields(logrus.Fields{"rider_id": rider.ID, "rider": rider.Name})
	if rider.ID == "" {
		log.Warn("Rider has no upstream ID, skipping")
		return 0
	}
	if cp.IsRiderProcessed(rider.ID) {
		log.Debug("Rider already processed, skipping")
		return 0
	}

	history, err := s.client.RiderHistory(ctx, rider.ID)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		log.WithError(err).Error("Failed to fetch rider history")
		cp.MarkRiderProcessed(rider.ID)
		return 0
	}

	found := 0
	for _, raw := range history {
		entry := upstream.ParseHistoryEntry(raw)
		if entry.EventID == "" || !s.campaign.MatchesMarker(entry.Name) {
			continue
		}
		t := entry.Time()
		for _, stage := range s.stages {
			if !stage.Contains(t, s.cfg.Tolerance) {
				continue
			}
			cp.AddDiscovery(entry.EventID, entry.Name, entry.Timestamp, stage.ID)
			found++
		}
	}

	cp.MarkRiderProcessed(rider.ID)
	log.WithFields(logrus.Fields{"history": len(history), "found": found}).Info("Scanned rider history")
	return found
}

// ProcessNextBatch processes the next BatchSize pending riders in the order
// given and sleeps BatchDelay if more remain. The error is non-nil only
// when ctx ends.
func (s *RiderScanner) ProcessNextBatch(ctx context.Context, riders []Rider, cp *checkpoint.Checkpoint) (BatchStats, error) {
	var pending []Rider
	for _, r := range riders {
		if r.ID != "" && !cp.IsRiderProcessed(r.ID) {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		s.logger.Info("All riders processed")
		return BatchStats{}, nil
	}

	batch := pending
	if len(batch) > s.cfg.BatchSize {
		batch = batch[:s.cfg.BatchSize]
	}
	s.logger.WithFields(logrus.Fields{
		"batch":     len(batch),
		"remaining": len(pending) - len(batch),
	}).Info("Processing rider batch")

	var stats BatchStats
	for _, r := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Found += s.ProcessRider(ctx, r, cp)
		stats.Processed++
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	stats.More = len(pending) > len(batch)
	if stats.More {
		if err := s.opts.sleep(ctx, s.cfg.BatchDelay); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
