// Package notify tells downstream systems that a discovery run finished.
// Failures are reported to the caller, who only logs them.
package notify

import (
	"context"
	"errors"
	"time"
)

// Notification describes a run outcome.
type Notification struct {
	Source      string    `json:"source"`
	CampaignID  string    `json:"campaign_id"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	StageIDs    []string  `json:"stage_ids"`
	EventsTotal int       `json:"events_total"`
	EventsAdded int       `json:"events_added"`
	Message     string    `json:"message,omitempty"`
	Time        time.Time `json:"time"`
}

// Trigger fires a notification.
type Trigger interface {
	Fire(ctx context.Context, n Notification) error
}

// Multi fires every trigger and joins their errors.
type Multi []Trigger

func (m Multi) Fire(ctx context.Context, n Notification) error {
	var errs []error
	for _, t := range m {
		if err := t.Fire(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Fire(context.Context, Notification) error { return nil }
