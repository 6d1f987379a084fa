package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/storage"
)

const (
	// DefaultKey is where the checkpoint lives in object storage.
	DefaultKey = "discovery/checkpoint.json"
	// DefaultTTL is how long a finalized checkpoint is kept.
	DefaultTTL = 24 * time.Hour
)

// Store loads and saves the single checkpoint record of a pipeline instance.
// It assumes one writer at a time.
type Store struct {
	storage storage.Store
	key     string
	ttl     time.Duration
	now     func() time.Time
	logger  *logrus.Entry
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a checkpoint store on top of an object store
func NewStore(st storage.Store, opts ...Option) *Store {
	s := &Store{
		storage: st,
		key:     DefaultKey,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logrus.WithField("component", "checkpoint"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Key() string { return s.key }

func (s *Store) TTL() time.Duration { return s.ttl }

// Load returns the stored checkpoint, or a fresh one when nothing is stored
// or the stored one has expired. Absence is not an error.
func (s *Store) Load(ctx context.Context) (*Checkpoint, error) {
	data, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load checkpoint %s", s.key)
	}
	if !found {
		s.logger.WithField("key", s.key).Debug("No checkpoint stored, starting fresh")
		return New(), nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal checkpoint (possibly corrupted)")
	}
	cp.normalize()

	if cp.IsExpired(s.now(), s.ttl) {
		s.logger.WithFields(logrus.Fields{
			"run_id":       cp.RunID,
			"completed_at": cp.CompletedAt.Format(time.RFC3339),
		}).Info("Stored checkpoint expired, starting fresh")
		return New(), nil
	}
	return &cp, nil
}

// Save stamps LastUpdated and overwrites the stored record. Finalized
// checkpoints are written with the TTL when the backend supports expiry.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	now := s.now().UTC()
	cp.LastUpdated = &now
	if cp.Version == "" {
		cp.Version = Version
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint")
	}

	if cp.Finalized() {
		err = storage.PutWithTTL(ctx, s.storage, s.key, data, s.ttl)
	} else {
		err = s.storage.Put(ctx, s.key, data)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write checkpoint %s", s.key)
	}
	return nil
}

// Clear deletes the stored checkpoint. Clearing an absent one is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return errors.Wrapf(err, "failed to clear checkpoint %s", s.key)
	}
	s.logger.WithField("key", s.key).Info("Checkpoint cleared")
	return nil
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	ok, err := s.storage.Exists(ctx, s.key)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check checkpoint %s", s.key)
	}
	return ok, nil
}
