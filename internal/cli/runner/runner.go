// Package runner wires settings into a discovery pipeline and owns the
// lifetime of its storage and upstream handles.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/internal/cli/config"
	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/discovery"
	"github.com/withObsrvr/tour-discovery/pkg/export"
	"github.com/withObsrvr/tour-discovery/pkg/notify"
	"github.com/withObsrvr/tour-discovery/pkg/processing"
	"github.com/withObsrvr/tour-discovery/pkg/rawevents"
	"github.com/withObsrvr/tour-discovery/pkg/registry"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

// Factories create the external handles. Zero fields fall back to the
// real implementations.
type Factories struct {
	NewStore  func(context.Context, storage.Config) (storage.Store, error)
	NewClient func(upstream.Config, upstream.CredentialProvider) (upstream.Client, error)
}

func (f Factories) withDefaults() Factories {
	if f.NewStore == nil {
		f.NewStore = storage.New
	}
	if f.NewClient == nil {
		f.NewClient = func(cfg upstream.Config, creds upstream.CredentialProvider) (upstream.Client, error) {
			return upstream.NewHTTPClient(cfg, creds)
		}
	}
	return f
}

type Options struct {
	Settings *config.Settings
	Options  []discovery.Option
}

type Runner struct {
	settings    *config.Settings
	factories   Factories
	opts        []discovery.Option
	store       storage.Store
	campaign    *campaign.Campaign
	checkpoints *checkpoint.Store
	accumulator *rawevents.Accumulator
	logger      *logrus.Entry
}

// New validates the settings, loads the campaign and opens storage.
// Configuration problems are returned before any storage is touched.
func New(ctx context.Context, opts Options, factories Factories) (*Runner, error) {
	s := opts.Settings
	if s == nil {
		return nil, fmt.Errorf("no settings provided")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	c, err := campaign.Load(s.CampaignFile)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}

	factories = factories.withDefaults()
	store, err := factories.NewStore(ctx, s.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	return &Runner{
		settings:    s,
		factories:   factories,
		opts:        opts.Options,
		store:       store,
		campaign:    c,
		checkpoints: checkpoint.NewStore(store, checkpoint.WithKey(s.Checkpoint.Key), checkpoint.WithTTL(s.Checkpoint.TTL)),
		accumulator: rawevents.NewAccumulator(store, c.ID),
		logger:      logrus.WithFields(logrus.Fields{"component": "runner", "campaign": c.ID}),
	}, nil
}

func (r *Runner) Campaign() *campaign.Campaign { return r.campaign }

func (r *Runner) Close() error {
	return r.store.Close()
}

func (r *Runner) credentials() upstream.CredentialProvider {
	if r.settings.Credentials.Key != "" {
		return upstream.StoredCredentials{Store: r.store, Key: r.settings.Credentials.Key}
	}
	return upstream.StaticCredentials{
		Username: r.settings.Credentials.Username,
		Password: r.settings.Credentials.Password,
	}
}

func (r *Runner) triggers() (trigger, notifier notify.Trigger, err error) {
	if url := r.settings.Trigger.WebhookURL; url != "" {
		trigger = notify.NewWebhookTrigger(url, r.settings.Trigger.Headers)
	}
	n := r.settings.Notify
	if n.SlackWebhookURL != "" || n.SlackToken != "" {
		slack, err := notify.NewSlackNotifier(n.SlackToken, n.SlackChannels, n.SlackWebhookURL)
		if err != nil {
			return nil, nil, err
		}
		notifier = slack
	}
	return trigger, notifier, nil
}

// Orchestrator builds the upstream client, logs in when configured and
// assembles the pipeline. Missing credentials are fatal; a failed login
// is only logged.
func (r *Runner) Orchestrator(ctx context.Context) (*discovery.Orchestrator, error) {
	creds := r.credentials()
	if _, err := creds.Credentials(ctx); err != nil {
		return nil, fmt.Errorf("resolving upstream credentials: %w", err)
	}

	client, err := r.factories.NewClient(r.settings.Upstream, creds)
	if err != nil {
		return nil, fmt.Errorf("creating upstream client: %w", err)
	}
	if l, ok := client.(interface{ Login(context.Context) error }); ok && r.settings.Credentials.Login {
		if err := l.Login(ctx); err != nil {
			r.logger.WithError(err).Warn("Upstream login failed, continuing with public endpoints")
		} else {
			r.logger.Info("Logged in to upstream")
		}
	}

	trigger, notifier, err := r.triggers()
	if err != nil {
		return nil, err
	}

	return discovery.NewOrchestrator(discovery.Deps{
		Checkpoints: r.checkpoints,
		Accumulator: r.accumulator,
		Store:       r.store,
		Client:      client,
		Campaign:    r.campaign,
		Riders:      discovery.RegistryRiders{Loader: registry.NewLoader(r.store, r.settings.RidersKey)},
		Processor:   processing.NewStageWriter(r.store),
		Trigger:     trigger,
		Notifier:    notifier,
	}, r.settings.Discovery, r.opts...)
}

// Run performs one bounded invocation.
func (r *Runner) Run(ctx context.Context, req discovery.Request) (discovery.Result, error) {
	o, err := r.Orchestrator(ctx)
	if err != nil {
		return discovery.Result{}, err
	}
	return o.Run(ctx, req), nil
}

// Status describes the stored checkpoint.
type Status struct {
	Key         string     `json:"key"`
	Exists      bool       `json:"exists"`
	CampaignID  string     `json:"campaign_id"`
	StageIDs    []string   `json:"stage_ids"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	checkpoint.Summary
}

func (r *Runner) Status(ctx context.Context) (Status, error) {
	exists, err := r.checkpoints.Exists(ctx)
	if err != nil {
		return Status{}, err
	}
	cp, err := r.checkpoints.Load(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Key:         r.checkpoints.Key(),
		Exists:      exists,
		CampaignID:  cp.CampaignID,
		StageIDs:    cp.StageIDs,
		StartedAt:   cp.StartedAt,
		CompletedAt: cp.CompletedAt,
		LastUpdated: cp.LastUpdated,
		Summary:     cp.Summary(),
	}, nil
}

// Reset deletes the stored checkpoint.
func (r *Runner) Reset(ctx context.Context) error {
	return r.checkpoints.Clear(ctx)
}

// Export writes the campaign catalog to an xlsx workbook and returns the
// number of events written.
func (r *Runner) Export(ctx context.Context, path string) (int, error) {
	cat, err := r.accumulator.Load(ctx)
	if err != nil {
		return 0, err
	}
	if err := export.WriteCatalog(path, cat, r.campaign); err != nil {
		return 0, err
	}
	r.logger.WithFields(logrus.Fields{"events": len(cat), "path": path}).Info("Exported event catalog")
	return len(cat), nil
}
