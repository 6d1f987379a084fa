package discovery

import (
	"context"

	"github.com/withObsrvr/tour-discovery/pkg/registry"
)

// RiderSource supplies the riders to scan, in processing order.
type RiderSource interface {
	Riders(ctx context.Context) ([]Rider, error)
}

// StaticRiders is a fixed rider list.
type StaticRiders []Rider

func (s StaticRiders) Riders(context.Context) ([]Rider, error) { return s, nil }

// RegistryRiders reads riders from the stored registry, keeping registry
// order. Riders without an upstream ID are dropped.
type RegistryRiders struct {
	Loader *registry.Loader
}

func (r RegistryRiders) Riders(ctx context.Context) ([]Rider, error) {
	reg, err := r.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	riders := make([]Rider, 0, len(reg.Riders))
	for _, rr := range reg.Riders {
		if rr.ZwiftPowerID == "" {
			continue
		}
		riders = append(riders, Rider{ID: rr.ZwiftPowerID, Name: rr.Name})
	}
	return riders, nil
}
