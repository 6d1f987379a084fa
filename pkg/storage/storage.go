// Package storage provides the object storage backends used for checkpoints,
// the raw event catalog and cached event results.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Store is a flat key/value object store.
//
// Get reports three distinct outcomes: found (data, true, nil), absent
// (nil, false, nil) and a transport failure (nil, false, err). Absence is
// never an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Expirer is implemented by backends with native per-key expiry.
type Expirer interface {
	PutExpiring(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Config selects and configures a backend.
type Config struct {
	Type string `mapstructure:"type" yaml:"type"`

	// FS / SQLite
	Path string `mapstructure:"path" yaml:"path"`

	// S3 / GCS
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// Redis
	Address   string `mapstructure:"address" yaml:"address"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// Postgres / Mongo
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	Table      string `mapstructure:"table" yaml:"table"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// New creates the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "fs", "FS", "":
		return NewFSStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	case "s3", "S3":
		return NewS3Store(ctx, cfg)
	case "gcs", "GCS":
		return NewGCSStore(ctx, cfg)
	case "redis":
		return NewRedisStore(ctx, cfg)
	case "postgres":
		return NewPostgresStore(ctx, cfg)
	case "mongo", "mongodb":
		return NewMongoStore(ctx, cfg)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// PutWithTTL writes through Expirer when the backend supports it and falls
// back to a plain Put otherwise.
func PutWithTTL(ctx context.Context, s Store, key string, data []byte, ttl time.Duration) error {
	if e, ok := s.(Expirer); ok && ttl > 0 {
		return e.PutExpiring(ctx, key, data, ttl)
	}
	return s.Put(ctx, key, data)
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix + key
	}
	return prefix + "/" + key
}
