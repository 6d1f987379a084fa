// Package processing hands per-stage event lists to the result-processing
// step that runs after discovery completes.
package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/rawevents"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
)

// StageEvents is the ranked event list of one stage.
type StageEvents struct {
	StageID     string                 `json:"stage_id"`
	StageName   string                 `json:"stage_name"`
	WindowStart time.Time              `json:"window_start"`
	WindowEnd   time.Time              `json:"window_end"`
	Events      []rawevents.StageEvent `json:"events"`
	// ResultKeys maps event ID to its cached results object, for events
	// whose results were fetched.
	ResultKeys map[string]string `json:"result_keys,omitempty"`
}

// Input is everything a processor receives after finalization.
type Input struct {
	CampaignID string        `json:"campaign_id"`
	RunID      string        `json:"run_id"`
	Stages     []StageEvents `json:"stages"`
}

// Processor consumes the outcome of a completed discovery run.
type Processor interface {
	Process(ctx context.Context, in Input) error
}

// Func adapts a function to Processor.
type Func func(ctx context.Context, in Input) error

func (f Func) Process(ctx context.Context, in Input) error { return f(ctx, in) }

// StageWriter writes one JSON document per stage to
// results/<campaign>/stage_<id>_events.json for the standings step.
type StageWriter struct {
	store  storage.Store
	now    func() time.Time
	logger *logrus.Entry
}

func NewStageWriter(store storage.Store) *StageWriter {
	return &StageWriter{
		store:  store,
		now:    time.Now,
		logger: logrus.WithField("component", "processing"),
	}
}

// StageKey returns where StageWriter puts a stage's event list.
func StageKey(campaignID, stageID string) string {
	return fmt.Sprintf("results/%s/stage_%s_events.json", campaignID, stageID)
}

type stageDocument struct {
	CampaignID  string    `json:"campaign_id"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StageEvents
}

func (w *StageWriter) Process(ctx context.Context, in Input) error {
	for _, stage := range in.Stages {
		doc := stageDocument{
			CampaignID:  in.CampaignID,
			RunID:       in.RunID,
			GeneratedAt: w.now().UTC(),
			StageEvents: stage,
		}
		if doc.Events == nil {
			doc.Events = []rawevents.StageEvent{}
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return errors.Wrapf(err, "failed to marshal stage %s", stage.StageID)
		}
		key := StageKey(in.CampaignID, stage.StageID)
		if err := w.store.Put(ctx, key, data); err != nil {
			return errors.Wrapf(err, "failed to write stage %s events", stage.StageID)
		}
		w.logger.WithFields(logrus.Fields{
			"stage":  stage.StageID,
			"events": len(stage.Events),
			"key":    key,
		}).Info("Wrote stage event list")
	}
	return nil
}
