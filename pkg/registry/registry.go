// Package registry loads the club's rider registry from object storage.
package registry

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/withObsrvr/tour-discovery/pkg/storage"
)

// DefaultKey is the storage key of the registry document.
const DefaultKey = "config/riders.json"

// Rider is a registered participant.
type Rider struct {
	Name          string `json:"name"`
	ZwiftPowerID  string `json:"zwiftpower_id"`
	HandicapGroup string `json:"handicap_group,omitempty"`
	Guest         bool   `json:"guest,omitempty"`
}

// Registry is the {"riders": [...]} document.
type Registry struct {
	Riders []Rider `json:"riders"`
}

// ByID finds a rider by upstream ID.
func (r *Registry) ByID(id string) (Rider, bool) {
	for _, rider := range r.Riders {
		if rider.ZwiftPowerID == id {
			return rider, true
		}
	}
	return Rider{}, false
}

// ByName finds the first rider whose name contains name, case-insensitively.
func (r *Registry) ByName(name string) (Rider, bool) {
	name = strings.ToLower(name)
	for _, rider := range r.Riders {
		if strings.Contains(strings.ToLower(rider.Name), name) {
			return rider, true
		}
	}
	return Rider{}, false
}

// Loader reads the registry document.
type Loader struct {
	store  storage.Store
	key    string
	logger *logrus.Entry
}

func NewLoader(store storage.Store, key string) *Loader {
	if key == "" {
		key = DefaultKey
	}
	return &Loader{store: store, key: key, logger: logrus.WithField("component", "registry")}
}

// Load returns the registry. A missing document yields an empty registry.
func (l *Loader) Load(ctx context.Context) (*Registry, error) {
	data, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load rider registry %s", l.key)
	}
	if !found {
		l.logger.WithField("key", l.key).Warn("Rider registry not found")
		return &Registry{}, nil
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse rider registry %s", l.key)
	}

	missing := 0
	for _, r := range reg.Riders {
		if strings.TrimSpace(r.ZwiftPowerID) == "" {
			missing++
		}
	}
	l.logger.WithFields(logrus.Fields{"riders": len(reg.Riders), "without_id": missing}).Info("Loaded rider registry")
	return &reg, nil
}
