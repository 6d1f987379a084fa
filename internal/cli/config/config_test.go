package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
	"github.com/withObsrvr/tour-discovery/pkg/discovery"
	"github.com/withObsrvr/tour-discovery/pkg/storage"
)

func storageConfig(typ string) storage.Config {
	return storage.Config{Type: typ}
}

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "fs", s.Storage.Type)
	assert.Equal(t, checkpoint.DefaultKey, s.Checkpoint.Key)
	assert.Equal(t, checkpoint.DefaultTTL, s.Checkpoint.TTL)
	assert.Equal(t, discovery.DefaultRiderBatchSize, s.Discovery.Scanner.BatchSize)
	assert.Equal(t, discovery.DefaultRiderBatchDelay, s.Discovery.Scanner.BatchDelay)
	assert.Equal(t, discovery.DefaultEventBatchSize, s.Discovery.Fetcher.BatchSize)
	assert.Equal(t, discovery.DefaultSafetyMargin, s.Discovery.SafetyMargin)
	assert.Equal(t, "config/riders.json", s.RidersKey)
	assert.True(t, s.Credentials.Login)
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("TOURDISCOVERY_STORAGE_BUCKET", "from-env")
	t.Setenv("TOURDISCOVERY_CREDENTIALS_PASSWORD", "hunter2")

	s, err := Load(newViper(t, `
storage:
  type: s3
  bucket: from-file
  region: eu-west-1
discovery:
  rider_batch_size: 8
  event_batch_delay: 500ms
  window_tolerance: 2h
checkpoint:
  ttl: 48h
credentials:
  username: ada@example.com
notify:
  slack_channels: ["#tdz"]
`))
	require.NoError(t, err)

	assert.Equal(t, "s3", s.Storage.Type)
	assert.Equal(t, "from-env", s.Storage.Bucket)
	assert.Equal(t, "eu-west-1", s.Storage.Region)
	assert.Equal(t, 8, s.Discovery.Scanner.BatchSize)
	assert.Equal(t, 500*time.Millisecond, s.Discovery.Fetcher.BatchDelay)
	assert.Equal(t, 2*time.Hour, s.Discovery.Scanner.Tolerance)
	assert.Equal(t, 48*time.Hour, s.Checkpoint.TTL)
	assert.Equal(t, "ada@example.com", s.Credentials.Username)
	assert.Equal(t, "hunter2", s.Credentials.Password)
	assert.Equal(t, []string{"#tdz"}, s.Notify.SlackChannels)
}

func validSettings(t *testing.T) *Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: x\n"), 0644))
	return &Settings{
		Log:          LogConfig{Level: "info", Format: "text"},
		Storage:      storageConfig("fs"),
		CampaignFile: path,
		Credentials:  CredentialConfig{Username: "ada", Password: "secret"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{name: "valid", mutate: func(*Settings) {}},
		{name: "stored credentials", mutate: func(s *Settings) {
			s.Credentials = CredentialConfig{Key: "config/credentials.json"}
		}},
		{name: "missing credentials", mutate: func(s *Settings) {
			s.Credentials.Password = ""
		}, wantErr: "credentials.username and credentials.password"},
		{name: "s3 without bucket", mutate: func(s *Settings) {
			s.Storage = storageConfig("s3")
		}, wantErr: "storage.bucket must be specified for s3"},
		{name: "redis without address", mutate: func(s *Settings) {
			s.Storage = storageConfig("redis")
		}, wantErr: "storage.address must be specified for redis"},
		{name: "postgres without dsn", mutate: func(s *Settings) {
			s.Storage = storageConfig("postgres")
		}, wantErr: "storage.dsn must be specified for postgres"},
		{name: "unknown storage", mutate: func(s *Settings) {
			s.Storage = storageConfig("ftp")
		}, wantErr: "unsupported storage type: ftp"},
		{name: "missing campaign file", mutate: func(s *Settings) {
			s.CampaignFile = filepath.Join(t.TempDir(), "nope.yaml")
		}, wantErr: "campaign_file"},
		{name: "bad log format", mutate: func(s *Settings) {
			s.Log.Format = "xml"
		}, wantErr: "log.format"},
		{name: "bad log level", mutate: func(s *Settings) {
			s.Log.Level = "loud"
		}, wantErr: "log.level"},
		{name: "negative batch size", mutate: func(s *Settings) {
			s.Discovery.Scanner.BatchSize = -1
		}, wantErr: "batch sizes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings(t)
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedacted(t *testing.T) {
	s := validSettings(t)
	s.Notify.SlackToken = "xoxb-1"
	s.Trigger.Headers = map[string]string{"Authorization": "Bearer abc"}

	r := s.Redacted()
	assert.Equal(t, "********", r.Credentials.Password)
	assert.Equal(t, "********", r.Notify.SlackToken)
	assert.Equal(t, "********", r.Trigger.Headers["Authorization"])
	assert.Empty(t, r.Storage.DSN)
	assert.Equal(t, "secret", s.Credentials.Password, "original untouched")
	assert.Equal(t, "Bearer abc", s.Trigger.Headers["Authorization"])
}

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	require.NoError(t, ConfigureLogging(LogConfig{Level: "warn", Format: "json"}, false))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, ConfigureLogging(LogConfig{Level: "warn"}, true))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	assert.Error(t, ConfigureLogging(LogConfig{Level: "loud"}, false))
}
