package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/notify"
	"github.com/withObsrvr/tour-discovery/pkg/processing"
	"github.com/withObsrvr/tour-discovery/pkg/rawevents"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

const (
	DefaultSafetyMargin = 60 * time.Second

	notificationSource = "tourdiscovery"
)

// Config tunes the orchestrator.
type Config struct {
	// SafetyMargin is the execution time kept in reserve; no new batch
	// starts once less than this remains.
	SafetyMargin    time.Duration `mapstructure:"safety_margin" yaml:"safety_margin"`
	ClearOnComplete bool          `mapstructure:"clear_on_complete" yaml:"clear_on_complete"`
	Scanner         ScannerConfig `mapstructure:",squash" yaml:",inline"`
	Fetcher         FetcherConfig `mapstructure:",squash" yaml:",inline"`
}

// Deps are the collaborators of one pipeline instance. Processor, Trigger
// and Notifier are optional.
type Deps struct {
	Checkpoints *checkpoint.Store
	Accumulator *rawevents.Accumulator
	Store       storage.Store
	Client      upstream.Client
	Campaign    *campaign.Campaign
	Riders      RiderSource
	Processor   processing.Processor
	Trigger     notify.Trigger
	Notifier    notify.Trigger
}

func (d Deps) validate() error {
	var missing []string
	if d.Checkpoints == nil {
		missing = append(missing, "checkpoint store")
	}
	if d.Accumulator == nil {
		missing = append(missing, "accumulator")
	}
	if d.Store == nil {
		missing = append(missing, "object store")
	}
	if d.Client == nil {
		missing = append(missing, "upstream client")
	}
	if d.Campaign == nil {
		missing = append(missing, "campaign")
	}
	if d.Riders == nil {
		missing = append(missing, "rider source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("orchestrator is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orchestrator drives one checkpointed discovery pipeline through its
// phases, one bounded invocation at a time.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	opts   []Option
	o      options
	logger *logrus.Entry
}

func NewOrchestrator(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		opts:   opts,
		o:      applyOptions(opts),
		logger: logrus.WithFields(logrus.Fields{"component": "orchestrator", "campaign": deps.Campaign.ID}),
	}, nil
}

// Run performs one invocation. It never returns an error; failures are
// reported through Result.Status and Result.Error after the checkpoint has
// been saved.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res Result) {
	budget := req.Budget
	if budget == nil {
		budget = Unlimited{}
	}

	if req.ForceRestart {
		o.logger.Info("Force restart requested, clearing checkpoint")
		if err := o.deps.Checkpoints.Clear(ctx); err != nil {
			return errorResult(err)
		}
	}

	stages, res, ok := o.resolveStages(req.StageOverride)
	if !ok {
		return res
	}
	stageIDs := campaign.StageIDs(stages)
	log := o.logger.WithField("stages", stageIDs)

	riders, err := o.loadRiders(ctx)
	if err != nil {
		res = errorResult(err)
		res.StageIDs = stageIDs
		return res
	}

	cp, err := o.deps.Checkpoints.Load(ctx)
	if err != nil {
		res = errorResult(err)
		res.StageIDs = stageIDs
		return res
	}
	if len(cp.StageIDs) > 0 && !cp.SameStages(stageIDs) {
		log.WithField("checkpoint_stages", cp.StageIDs).Info("Stage set changed, starting a fresh checkpoint")
		if err := o.deps.Checkpoints.Clear(ctx); err != nil {
			res = errorResult(err)
			res.StageIDs = stageIDs
			return res
		}
		cp = checkpoint.New()
	}

	if cp.Finalized() {
		log.WithField("run_id", cp.RunID).Info("Discovery already complete for these stages")
		return Result{
			Status:      StatusNoWork,
			Message:     "discovery already complete",
			StageIDs:    stageIDs,
			Summary:     cp.Summary(),
			RidersTotal: len(riders),
		}
	}

	cp.BeginRun(o.o.now())
	if len(cp.StageIDs) == 0 {
		cp.StageIDs = stageIDs
	}
	if cp.CampaignID == "" {
		cp.CampaignID = o.deps.Campaign.ID
	}
	log = log.WithFields(logrus.Fields{"run_id": cp.RunID, "run_count": cp.RunCount})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Discovery run panicked")
			o.saveBestEffort(ctx, cp)
			res = errorResult(fmt.Errorf("panic: %v", r))
			res.StageIDs = stageIDs
			res.Summary = cp.Summary()
			res.RidersTotal = len(riders)
		}
	}()

	res, err = o.loop(ctx, budget, stages, riders, cp, log)
	if err != nil {
		log.WithError(err).Error("Discovery run failed")
		o.saveBestEffort(ctx, cp)
		res = errorResult(err)
	}
	res.StageIDs = stageIDs
	res.Summary = cp.Summary()
	res.RidersTotal = len(riders)
	return res
}

func (o *Orchestrator) resolveStages(override string) ([]campaign.Stage, Result, bool) {
	if override != "" {
		stage, ok := o.deps.Campaign.Stage(override)
		if !ok {
			return nil, errorResult(fmt.Errorf("unknown stage %q", override)), false
		}
		return []campaign.Stage{stage}, Result{}, true
	}
	stages := o.deps.Campaign.ActiveStages(o.o.now())
	if len(stages) == 0 {
		o.logger.Info("No active stages")
		return nil, Result{Status: StatusNoWork, Message: "no active stages"}, false
	}
	return stages, Result{}, true
}

func (o *Orchestrator) loadRiders(ctx context.Context) ([]Rider, error) {
	all, err := o.deps.Riders.Riders(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load riders")
	}
	riders := make([]Rider, 0, len(all))
	for _, r := range all {
		if r.ID != "" {
			riders = append(riders, r)
		}
	}
	if len(riders) == 0 {
		return nil, errors.New("no riders with an upstream ID configured")
	}
	return riders, nil
}

func (o *Orchestrator) loop(ctx context.Context, budget Budget, stages []campaign.Stage, riders []Rider, cp *checkpoint.Checkpoint, log *logrus.Entry) (Result, error) {
	scanner := NewRiderScanner(o.deps.Client, o.deps.Campaign, stages, o.cfg.Scanner, o.opts...)
	fetcher := NewResultFetcher(o.deps.Client, o.deps.Store, o.cfg.Fetcher, o.opts...)

	for budget.Remaining() > o.cfg.SafetyMargin {
		switch cp.Phase {
		case checkpoint.PhaseDiscoverRiders:
			stats, err := scanner.ProcessNextBatch(ctx, riders, cp)
			if err != nil {
				return Result{}, err
			}
			if err := o.save(ctx, cp); err != nil {
				return Result{}, err
			}
			if !stats.More {
				log.WithField("events_discovered", len(cp.EventsDiscovered)).Info("Rider discovery finished")
				cp.Advance(checkpoint.PhaseFetchResults)
				if err := o.save(ctx, cp); err != nil {
					return Result{}, err
				}
			}

		case checkpoint.PhaseFetchResults:
			stats, err := fetcher.FetchNextBatch(ctx, cp)
			if err != nil {
				return Result{}, err
			}
			if err := o.save(ctx, cp); err != nil {
				return Result{}, err
			}
			if !stats.More {
				log.WithField("events_fetched", len(cp.EventsFetched)).Info("Result fetching finished")
				cp.Advance(checkpoint.PhaseComplete)
				if err := o.save(ctx, cp); err != nil {
					return Result{}, err
				}
			}

		case checkpoint.PhaseComplete:
			return o.finalize(ctx, stages, cp, log)

		default:
			return Result{}, fmt.Errorf("unknown checkpoint phase %q", cp.Phase)
		}
	}

	if err := o.save(ctx, cp); err != nil {
		return Result{}, err
	}
	log.WithField("phase", cp.Phase).Info("Execution budget exhausted, progress saved")
	return Result{
		Status:  StatusPartial,
		Message: fmt.Sprintf("budget exhausted in phase %s", cp.Phase),
	}, nil
}

type eventCandidate struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

func (o *Orchestrator) finalize(ctx context.Context, stages []campaign.Stage, cp *checkpoint.Checkpoint, log *logrus.Entry) (Result, error) {
	existing, err := o.deps.Accumulator.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	candidates := make([]json.RawMessage, 0, len(cp.EventsFetched))
	for _, id := range cp.EventOrder {
		ev := cp.EventsDiscovered[id]
		if ev == nil || !cp.IsEventFetched(id) {
			continue
		}
		raw, err := json.Marshal(eventCandidate{ID: id, Name: ev.Name, Timestamp: ev.Timestamp})
		if err != nil {
			return Result{}, errors.Wrapf(err, "failed to encode event %s", id)
		}
		candidates = append(candidates, raw)
	}

	merged := o.deps.Accumulator.Merge(existing, candidates)
	if err := o.deps.Accumulator.Save(ctx, merged); err != nil {
		return Result{}, err
	}
	added := len(merged) - len(existing)

	scorer := rawevents.NewScorer(o.deps.Campaign)
	input := processing.Input{CampaignID: o.deps.Campaign.ID, RunID: cp.RunID}
	for _, stage := range stages {
		start, end := stage.DayWindow()
		events := scorer.StageEvents(merged, stage, start, end)
		keys := make(map[string]string)
		for _, ev := range events {
			if cp.IsEventFetched(ev.ID) {
				keys[ev.ID] = ResultsKey(ev.ID)
			}
		}
		input.Stages = append(input.Stages, processing.StageEvents{
			StageID:     stage.ID,
			StageName:   stage.Name,
			WindowStart: start,
			WindowEnd:   end,
			Events:      events,
			ResultKeys:  keys,
		})
		log.WithFields(logrus.Fields{"stage": stage.ID, "events": len(events)}).Info("Selected stage events")
	}

	if o.deps.Processor != nil {
		if err := o.deps.Processor.Process(ctx, input); err != nil {
			return Result{}, errors.Wrap(err, "result processing failed")
		}
	}

	n := notify.Notification{
		Source:      notificationSource,
		CampaignID:  o.deps.Campaign.ID,
		RunID:       cp.RunID,
		Status:      string(StatusComplete),
		StageIDs:    cp.StageIDs,
		EventsTotal: len(merged),
		EventsAdded: added,
		Time:        o.o.now().UTC(),
	}
	o.fire(ctx, "trigger", o.deps.Trigger, n)
	o.fire(ctx, "notifier", o.deps.Notifier, n)

	cp.Complete(o.o.now())
	if err := o.save(ctx, cp); err != nil {
		return Result{}, err
	}
	if o.cfg.ClearOnComplete {
		if err := o.deps.Checkpoints.Clear(ctx); err != nil {
			log.WithError(err).Warn("Failed to clear completed checkpoint")
		}
	}

	log.WithFields(logrus.Fields{"events_added": added, "catalog_size": len(merged)}).Info("Discovery complete")
	return Result{
		Status:       StatusComplete,
		Message:      fmt.Sprintf("%d events merged into catalog", added),
		EventsMerged: added,
		CatalogSize:  len(merged),
	}, nil
}

func (o *Orchestrator) fire(ctx context.Context, name string, t notify.Trigger, n notify.Notification) {
	if t == nil {
		return
	}
	if err := t.Fire(ctx, n); err != nil {
		o.logger.WithError(err).WithField("target", name).Warn("Failed to send run notification")
	}
}

func (o *Orchestrator) save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return errors.Wrap(o.deps.Checkpoints.Save(ctx, cp), "failed to save checkpoint")
}

func (o *Orchestrator) saveBestEffort(ctx context.Context, cp *checkpoint.Checkpoint) {
	// The run ctx may already be done.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.deps.Checkpoints.Save(saveCtx, cp); err != nil {
		o.logger.WithError(err).Error("Failed to save checkpoint after error")
	}
}

func errorResult(err error) Result {
	return Result{Status: StatusError, Message: "discovery failed", Error: err.Error()}
}
