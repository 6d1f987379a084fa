// Package upstream talks to the third-party results service.
package upstream

import (
	"context"
	"encoding/json"
)

// Client is the upstream results service as the discovery pipeline sees it.
// Retries, if any, happen inside the implementation.
type Client interface {
	// RiderHistory returns the rider's full result history, one raw
	// JSON object per entry.
	RiderHistory(ctx context.Context, riderID string) ([]json.RawMessage, error)
	// EventResults returns every result row of an event.
	EventResults(ctx context.Context, eventID string) ([]json.RawMessage, error)
	EventDetails(ctx context.Context, eventID string) (EventDetails, error)
}

// EventDetails is the metadata shown on an event page.
type EventDetails struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
