package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/upstream"
)

var (
	stage1Start = time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC)
	stage1End   = time.Date(2026, 1, 12, 16, 59, 0, 0, time.UTC)
	stage2Start = time.Date(2026, 1, 12, 17, 0, 0, 0, time.UTC)
	stage2End   = time.Date(2026, 1, 19, 16, 59, 0, 0, time.UTC)

	// testNow falls inside stage 1 only.
	testNow = time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
)

func testCampaign() *campaign.Campaign {
	return &campaign.Campaign{
		ID:     "tdz-2026",
		Name:   "Tour de Zwift 2026",
		Marker: campaign.DefaultMarker,
		Stages: []campaign.Stage{
			{ID: "1", Name: "Makuri Islands", Start: stage1Start, End: stage1End},
			{ID: "2", Name: "France", Start: stage2Start, End: stage2End},
		},
		Scoring: campaign.DefaultScoring(),
	}
}

func fixedClock() time.Time { return testNow }

// noSleep records requested delays without waiting.
type noSleep struct {
	delays []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.delays = append(n.delays, d)
	return ctx.Err()
}

func historyEntry(t *testing.T, id, title string, at time.Time) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"zid":         id,
		"event_title": title,
		"event_date":  at.Unix(),
	})
	require.NoError(t, err)
	return raw
}

func resultRow(t *testing.T, riderID string, position int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"zwid": riderID, "pos": position})
	require.NoError(t, err)
	return raw
}

// fakeClient serves canned histories and results and counts calls.
type fakeClient struct {
	histories map[string][]json.RawMessage
	results   map[string][]json.RawMessage
	titles    map[string]string

	historyErr map[string]error
	resultsErr map[string]error
	onHistory  func(riderID string)

	historyCalls map[string]int
	resultsCalls map[string]int
	detailsCalls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		histories:    make(map[string][]json.RawMessage),
		results:      make(map[string][]json.RawMessage),
		titles:       make(map[string]string),
		historyErr:   make(map[string]error),
		resultsErr:   make(map[string]error),
		historyCalls: make(map[string]int),
		resultsCalls: make(map[string]int),
		detailsCalls: make(map[string]int),
	}
}

func (f *fakeClient) RiderHistory(ctx context.Context, riderID string) ([]json.RawMessage, error) {
	f.historyCalls[riderID]++
	if f.onHistory != nil {
		f.onHistory(riderID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.historyErr[riderID]; err != nil {
		return nil, err
	}
	return f.histories[riderID], nil
}

func (f *fakeClient) EventResults(ctx context.Context, eventID string) ([]json.RawMessage, error) {
	f.resultsCalls[eventID]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.resultsErr[eventID]; err != nil {
		return nil, err
	}
	return f.results[eventID], nil
}

func (f *fakeClient) EventDetails(ctx context.Context, eventID string) (upstream.EventDetails, error) {
	f.detailsCalls[eventID]++
	title, ok := f.titles[eventID]
	if !ok {
		return upstream.EventDetails{}, fmt.Errorf("event %s: %w", eventID, upstream.ErrNotFound)
	}
	return upstream.EventDetails{ID: eventID, Title: title}, nil
}

func total(calls map[string]int) int {
	n := 0
	for _, c := range calls {
		n += c
	}
	return n
}
