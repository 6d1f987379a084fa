// Package config loads tourdiscovery settings through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/discovery"
	"github.com/withObsrvr/tour-discovery/pkg/registry"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

// EnvPrefix prefixes every environment override, e.g.
// TOURDISCOVERY_STORAGE_BUCKET.
const EnvPrefix = "TOURDISCOVERY"

type Settings struct {
	Log          LogConfig        `mapstructure:"log" yaml:"log"`
	Storage      storage.Config   `mapstructure:"storage" yaml:"storage"`
	Upstream     upstream.Config  `mapstructure:"upstream" yaml:"upstream"`
	Credentials  CredentialConfig `mapstructure:"credentials" yaml:"credentials"`
	Discovery    discovery.Config `mapstructure:"discovery" yaml:"discovery"`
	Checkpoint   CheckpointConfig `mapstructure:"checkpoint" yaml:"checkpoint"`
	CampaignFile string           `mapstructure:"campaign_file" yaml:"campaign_file"`
	RidersKey    string           `mapstructure:"riders_key" yaml:"riders_key"`
	Trigger      TriggerConfig    `mapstructure:"trigger" yaml:"trigger"`
	Notify       NotifyConfig     `mapstructure:"notify" yaml:"notify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CredentialConfig holds upstream credentials inline, or the storage key of
// a {"username","password"} document when Key is set.
type CredentialConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Key      string `mapstructure:"key" yaml:"key"`
	// Login performs the form login before a run.
	Login bool `mapstructure:"login" yaml:"login"`
}

type CheckpointConfig struct {
	Key string        `mapstructure:"key" yaml:"key"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type TriggerConfig struct {
	WebhookURL string            `mapstructure:"webhook_url" yaml:"webhook_url"`
	Headers    map[string]string `mapstructure:"headers" yaml:"headers"`
}

type NotifyConfig struct {
	SlackToken      string   `mapstructure:"slack_token" yaml:"slack_token"`
	SlackChannels   []string `mapstructure:"slack_channels" yaml:"slack_channels"`
	SlackWebhookURL string   `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url"`
}

// SetDefaults registers every key so environment overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.type", "fs")
	v.SetDefault("storage.path", "./data")
	for _, key := range []string{"bucket", "prefix", "region", "endpoint", "credentials_file",
		"address", "password", "key_prefix", "dsn", "table", "database", "collection"} {
		v.SetDefault("storage."+key, "")
	}
	v.SetDefault("storage.force_path_style", false)
	v.SetDefault("storage.db", 0)

	v.SetDefault("upstream.base_url", upstream.DefaultBaseURL)
	v.SetDefault("upstream.login_url", "")
	v.SetDefault("upstream.timeout", upstream.DefaultTimeout)
	v.SetDefault("upstream.max_attempts", upstream.DefaultMaxAttempts)
	v.SetDefault("upstream.retry_delay", upstream.DefaultRetryDelay)
	v.SetDefault("upstream.user_agent", "")

	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.key", "")
	v.SetDefault("credentials.login", true)

	v.SetDefault("discovery.safety_margin", discovery.DefaultSafetyMargin)
	v.SetDefault("discovery.clear_on_complete", false)
	v.SetDefault("discovery.rider_batch_size", discovery.DefaultRiderBatchSize)
	v.SetDefault("discovery.rider_batch_delay", discovery.DefaultRiderBatchDelay)
	v.SetDefault("discovery.window_tolerance", time.Duration(0))
	v.SetDefault("discovery.event_batch_size", discovery.DefaultEventBatchSize)
	v.SetDefault("discovery.event_batch_delay", discovery.DefaultEventBatchDelay)

	v.SetDefault("checkpoint.key", checkpoint.DefaultKey)
	v.SetDefault("checkpoint.ttl", checkpoint.DefaultTTL)

	v.SetDefault("campaign_file", "campaign.yaml")
	v.SetDefault("riders_key", registry.DefaultKey)

	v.SetDefault("trigger.webhook_url", "")
	v.SetDefault("notify.slack_token", "")
	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("notify.slack_channels", []string{})
}

// BindEnv enables TOURDISCOVERY_<SECTION>_<KEY> overrides.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return &s, nil
}

// Error lists every problem found by Validate.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks everything a run needs before any storage is touched.
func (s *Settings) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch s.Log.Format {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", s.Log.Format)
	}
	if s.Log.Level != "" {
		if _, err := logrus.ParseLevel(s.Log.Level); err != nil {
			add("log.level: %v", err)
		}
	}

	switch strings.ToLower(s.Storage.Type) {
	case "", "fs", "sqlite", "memory":
	case "s3", "gcs":
		if s.Storage.Bucket == "" {
			add("storage.bucket must be specified for %s", strings.ToLower(s.Storage.Type))
		}
	case "redis":
		if s.Storage.Address == "" {
			add("storage.address must be specified for redis")
		}
	case "postgres", "mongo", "mongodb":
		if s.Storage.DSN == "" {
			add("storage.dsn must be specified for %s", s.Storage.Type)
		}
	default:
		add("unsupported storage type: %s", s.Storage.Type)
	}

	if s.CampaignFile == "" {
		add("campaign_file must be specified")
	} else if _, err := os.Stat(s.CampaignFile); err != nil {
		add("campaign_file %s: %v", s.CampaignFile, err)
	}

	if s.Credentials.Key == "" && (s.Credentials.Username == "" || s.Credentials.Password == "") {
		add("credentials.username and credentials.password (or credentials.key) must be specified")
	}

	d := s.Discovery
	if d.Scanner.BatchSize < 0 || d.Fetcher.BatchSize < 0 {
		add("discovery batch sizes must not be negative")
	}
	if d.Scanner.BatchDelay < 0 || d.Fetcher.BatchDelay < 0 || d.SafetyMargin < 0 {
		add("discovery delays must not be negative")
	}
	if s.Checkpoint.TTL < 0 {
		add("checkpoint.ttl must not be negative")
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (s Settings) Redacted() Settings {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "********"
	}
	s.Credentials.Password = mask(s.Credentials.Password)
	s.Storage.Password = mask(s.Storage.Password)
	s.Storage.DSN = mask(s.Storage.DSN)
	s.Notify.SlackToken = mask(s.Notify.SlackToken)
	s.Notify.SlackWebhookURL = mask(s.Notify.SlackWebhookURL)
	if len(s.Trigger.Headers) > 0 {
		headers := make(map[string]string, len(s.Trigger.Headers))
		for k := range s.Trigger.Headers {
			headers[k] = "********"
		}
		s.Trigger.Headers = headers
	}
	return s
}

// ConfigureLogging applies the log section to the standard logrus logger.
func ConfigureLogging(cfg LogConfig, verbose bool) error {
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return nil
}
