package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = Notification{
	Source:      "tour_discovery",
	CampaignID:  "tdz-2026",
	Status:      "complete",
	StageIDs:    []string{"1", "2"},
	EventsTotal: 12,
	EventsAdded: 3,
}

func TestWebhookTrigger(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer x", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	trigger := NewWebhookTrigger(srv.URL, map[string]string{"Authorization": "Bearer x"})
	require.NoError(t, trigger.Fire(context.Background(), sample))
	assert.Equal(t, sample.CampaignID, got.CampaignID)
	assert.Equal(t, sample.StageIDs, got.StageIDs)
}

func TestWebhookTrigger_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookTrigger(srv.URL, nil).Fire(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type recordingTrigger struct {
	fired int
	err   error
}

func (r *recordingTrigger) Fire(context.Context, Notification) error {
	r.fired++
	return r.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &recordingTrigger{}, &recordingTrigger{err: boom}, &recordingTrigger{}

	err := Multi{a, b, c}.Fire(context.Background(), sample)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.fired)
	assert.Equal(t, 1, c.fired, "later triggers still fire")

	assert.NoError(t, Multi{}.Fire(context.Background(), sample))
	assert.NoError(t, Noop{}.Fire(context.Background(), sample))
}

func TestSlackNotifier_WebAPI(t *testing.T) {
	var channels []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		channels = append(channels, r.Form.Get("channel"))
		assert.Contains(t, r.Form.Get("text"), "discovery complete")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"channel":"C1","ts":"1.0"}`)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier("xoxb-test", []string{"C1", "C2"}, "", WithSlackAPIURL(srv.URL+"/"))
	require.NoError(t, err)
	require.NoError(t, n.Fire(context.Background(), sample))
	assert.Equal(t, []string{"C1", "C2"}, channels)
}

func TestSlackNotifier_Webhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	n, err := NewSlackNotifier("", nil, srv.URL)
	require.NoError(t, err)
	require.NoError(t, n.Fire(context.Background(), sample))
	assert.Equal(t, FormatMessage(sample), body["text"])
}

func TestNewSlackNotifier_Invalid(t *testing.T) {
	_, err := NewSlackNotifier("token", nil, "")
	assert.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "[tdz-2026] discovery complete for stage 1, 2: 12 events in catalog (3 new)", FormatMessage(sample))

	n := sample
	n.Status = "error"
	n.StageIDs = nil
	n.Message = "storage unavailable"
	assert.Equal(t, "[tdz-2026] discovery error: 12 events in catalog (3 new) - storage unavailable", FormatMessage(n))
}
