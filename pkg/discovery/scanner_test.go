package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/tour-discovery/pkg/campaign"
	"github.com/withObsrvr/tour-discovery/pkg/checkpoint"
)

func newTestScanner(client *fakeClient, stages []campaign.Stage, cfg ScannerConfig, sleeper *noSleep) *RiderScanner {
	return NewRiderScanner(client, testCampaign(), stages, cfg, WithSleeper(sleeper.sleep), WithClock(fixedClock))
}

func TestProcessRider_OneMatch(t *testing.T) {
	client := newFakeClient()
	client.histories["r1"] = []json.RawMessage{
		historyEntry(t, "100", "Tour de Zwift 2026 Stage 1: Makuri Islands", stage1Start.Add(25*time.Hour)),
		historyEntry(t, "200", "Sunday Social Ride", stage1Start.Add(26*time.Hour)),
	}
	c := testCampaign()
	scanner := newTestScanner(client, c.Stages[:1], ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	found := scanner.ProcessRider(context.Background(), Rider{ID: "r1", Name: "Ada"}, cp)

	assert.Equal(t, 1, found)
	assert.True(t, cp.IsRiderProcessed("r1"))
	require.Contains(t, cp.EventsDiscovered, "100")
	assert.NotContains(t, cp.EventsDiscovered, "200")
	assert.Equal(t, []string{"1"}, cp.EventsDiscovered["100"].StageIDs)
	assert.Equal(t, "Tour de Zwift 2026 Stage 1: Makuri Islands", cp.EventsDiscovered["100"].Name)
	assert.Equal(t, stage1Start.Add(25*time.Hour).Unix(), cp.EventsDiscovered["100"].Timestamp)
}

func TestProcessRider_IdempotentSkip(t *testing.T) {
	client := newFakeClient()
	client.histories["r1"] = []json.RawMessage{
		historyEntry(t, "100", "Tour de Zwift Stage 1", stage1Start.Add(time.Hour)),
	}
	scanner := newTestScanner(client, testCampaign().Stages, ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	assert.Equal(t, 1, scanner.ProcessRider(context.Background(), Rider{ID: "r1"}, cp))
	assert.Equal(t, 0, scanner.ProcessRider(context.Background(), Rider{ID: "r1"}, cp))
	assert.Equal(t, 1, client.historyCalls["r1"])
}

func TestProcessRider_StageOverlap(t *testing.T) {
	client := newFakeClient()
	at := stage1End.Add(-time.Hour)
	client.histories["r1"] = []json.RawMessage{historyEntry(t, "300", "Tour de Zwift Stage 1", at)}

	stages := []campaign.Stage{
		{ID: "1", Start: stage1Start, End: stage1End},
		{ID: "bonus", Start: at.Add(-time.Hour), End: at.Add(time.Hour)},
	}
	scanner := newTestScanner(client, stages, ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	assert.Equal(t, 2, scanner.ProcessRider(context.Background(), Rider{ID: "r1"}, cp))
	require.Len(t, cp.EventsDiscovered, 1)
	assert.ElementsMatch(t, []string{"1", "bonus"}, cp.EventsDiscovered["300"].StageIDs)
	assert.Equal(t, []string{"300"}, cp.EventOrder)
}

func TestProcessRider_Filtering(t *testing.T) {
	tests := []struct {
		name      string
		entry     map[string]interface{}
		tolerance time.Duration
		want      int
	}{
		{
			name:  "marker matched case-insensitively",
			entry: map[string]interface{}{"zid": "1", "event_title": "TOUR DE ZWIFT stage 1", "event_date": stage1Start.Unix()},
			want:  1,
		},
		{
			name:  "alternate field names",
			entry: map[string]interface{}{"DT_RowId": "2", "f_t": "Tour de Zwift", "tm": stage1End.Unix()},
			want:  1,
		},
		{
			name:  "outside window",
			entry: map[string]interface{}{"zid": "3", "event_title": "Tour de Zwift", "event_date": stage1End.Add(time.Minute).Unix()},
			want:  0,
		},
		{
			name:      "inside tolerance",
			entry:     map[string]interface{}{"zid": "4", "event_title": "Tour de Zwift", "event_date": stage1End.Add(time.Minute).Unix()},
			tolerance: time.Hour,
			want:      1,
		},
		{
			name:  "missing timestamp",
			entry: map[string]interface{}{"zid": "5", "event_title": "Tour de Zwift"},
			want:  0,
		},
		{
			name:  "missing id",
			entry: map[string]interface{}{"event_title": "Tour de Zwift", "event_date": stage1Start.Unix()},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.entry)
			require.NoError(t, err)
			client := newFakeClient()
			client.histories["r1"] = []json.RawMessage{raw}
			c := testCampaign()
			scanner := newTestScanner(client, c.Stages[:1], ScannerConfig{Tolerance: tt.tolerance}, &noSleep{})

			cp := checkpoint.New()
			assert.Equal(t, tt.want, scanner.ProcessRider(context.Background(), Rider{ID: "r1"}, cp))
			assert.Len(t, cp.EventsDiscovered, tt.want)
			assert.True(t, cp.IsRiderProcessed("r1"))
		})
	}
}

func TestProcessRider_FetchFailureStillMarks(t *testing.T) {
	client := newFakeClient()
	client.historyErr["r1"] = errors.New("upstream returned 502")
	scanner := newTestScanner(client, testCampaign().Stages, ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	assert.Equal(t, 0, scanner.ProcessRider(context.Background(), Rider{ID: "r1"}, cp))
	assert.True(t, cp.IsRiderProcessed("r1"))
}

func TestProcessRider_CancelledLeavesPending(t *testing.T) {
	client := newFakeClient()
	scanner := newTestScanner(client, testCampaign().Stages, ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, scanner.ProcessRider(ctx, Rider{ID: "r1"}, cp))
	assert.False(t, cp.IsRiderProcessed("r1"))
}

func TestProcessRider_NoID(t *testing.T) {
	client := newFakeClient()
	scanner := newTestScanner(client, testCampaign().Stages, ScannerConfig{}, &noSleep{})
	cp := checkpoint.New()

	assert.Equal(t, 0, scanner.ProcessRider(context.Background(), Rider{Name: "Guest"}, cp))
	assert.Zero(t, total(client.historyCalls))
	assert.Empty(t, cp.RidersProcessed)
}

func TestProcessNextBatch(t *testing.T) {
	client := newFakeClient()
	riders := []Rider{{ID: "r1"}, {ID: "r2"}, {Name: "no id"}, {ID: "r3"}, {ID: "r4"}, {ID: "r5"}, {ID: "r6"}, {ID: "r7"}}
	sleeper := &noSleep{}
	scanner := newTestScanner(client, testCampaign().Stages, ScannerConfig{}, sleeper)
	cp := checkpoint.New()
	ctx := context.Background()

	stats, err := scanner.ProcessNextBatch(ctx, riders, cp)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{More: true, Processed: 5}, stats)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, cp.RidersProcessed)
	assert.Equal(t, []time.Duration{DefaultRiderBatchDelay}, sleeper.delays)

	stats, err = scanner.ProcessNextBatch(ctx, riders, cp)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Processed: 2}, stats)
	assert.Len(t, sleeper.delays, 1, "no sleep after the last batch")

	stats, err = scanner.ProcessNextBatch(ctx, riders, cp)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{}, stats)
	assert.Equal(t, 7, total(client.historyCalls))
}

func TestProcessNextBatch_CancelledDuringSleep(t *testing.T) {
	client := newFakeClient()
	riders := []Rider{{ID: "r1"}, {ID: "r2"}}
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	scanner := NewRiderScanner(client, testCampaign(), testCampaign().Stages, ScannerConfig{BatchSize: 1}, WithSleeper(sleeper))
	cp := checkpoint.New()

	stats, err := scanner.ProcessNextBatch(ctx, riders, cp)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, []string{"r1"}, cp.RidersProcessed)
}
