// Package discovery runs the checkpointed rider-scan and result-fetch
// pipeline in bounded batches.
package discovery

import (
	"context"
	"time"
)

// BatchStats reports one batch. More is true when pending work remains
// after the batch.
type BatchStats struct {
	More      bool `json:"more"`
	Processed int  `json:"processed"`
	Found     int  `json:"found"`
}

// Sleeper waits between batches and returns early with ctx.Err() when ctx
// ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type options struct {
	sleep Sleeper
	now   func() time.Time
}

func defaultOptions() options {
	return options{sleep: ContextSleep, now: time.Now}
}

// Option customises scanners, fetchers and the orchestrator.
type Option func(*options)

func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
