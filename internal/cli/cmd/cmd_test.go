package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		force     bool
		stage     string
		budget    time.Duration
		wantForce bool
		wantStage string
		budgeted  bool
		wantErr   bool
	}{
		{name: "empty"},
		{name: "payload", payload: `{"force_restart":true,"stage_override":"3"}`, wantForce: true, wantStage: "3"},
		{name: "flags override payload", payload: `{"stage_override":"3"}`, stage: "4", force: true, wantForce: true, wantStage: "4"},
		{name: "budget", budget: 14 * time.Minute, budgeted: true},
		{name: "invalid payload", payload: `{"force_restart":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parseRequest(tt.payload, tt.force, tt.stage, tt.budget)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantForce, req.ForceRestart)
			assert.Equal(t, tt.wantStage, req.StageOverride)
			if tt.budgeted {
				require.NotNil(t, req.Budget)
				assert.InDelta(t, float64(tt.budget), float64(req.Budget.Remaining()), float64(time.Minute))
			} else {
				assert.Nil(t, req.Budget)
			}
		})
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "dev", orDefault("", "dev"))
	assert.Equal(t, "1.2.0", orDefault("1.2.0", "dev"))
}
