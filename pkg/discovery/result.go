package discovery

import (
	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
)

// Status is the outcome of one invocation.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusNoWork   Status = "no_work"
	StatusError    Status = "error"
)

// Request carries the per-invocation trigger options.
type Request struct {
	ForceRestart  bool   `json:"force_restart"`
	StageOverride string `json:"stage_override"`
	// Budget defaults to Unlimited.
	Budget Budget `json:"-"`
}

// Result is returned by every invocation, including failed ones.
type Result struct {
	Status   Status   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	StageIDs []string `json:"stage_ids,omitempty"`

	checkpoint.Summary

	RidersTotal  int `json:"riders_total"`
	EventsMerged int `json:"events_merged,omitempty"`
	CatalogSize  int `json:"catalog_size,omitempty"`
}
