package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusConstants(t *testing.T) {
	assert.Equal(t, "pending", RunStatusPending)
	assert.Equal(t, "running", RunStatusRunning)
	assert.Equal(t, "completed", RunStatusCompleted)
	assert.Equal(t, "failed", RunStatusFailed)
}

func TestRunSettings_WithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		settings RunSettings
		expected RunSettings
	}{
		{
			name:     "empty settings",
			settings: RunSettings{},
			expected: RunSettings{LimitBacklinks: 1000, LimitRefDomains: 500, LimitAnchors: 200},
		},
		{
			name:     "partial override",
			settings: RunSettings{LimitBacklinks: 50},
			expected: RunSettings{LimitBacklinks: 50, LimitRefDomains: 500, LimitAnchors: 200},
		},
		{
			name:     "negative values fall back",
			settings: RunSettings{LimitBacklinks: -1, LimitRefDomains: 10, LimitAnchors: -5},
			expected: RunSettings{LimitBacklinks: 1000, LimitRefDomains: 10, LimitAnchors: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.settings.WithDefaults())
		})
	}
}

func TestRun_StatusPredicates(t *testing.T) {
	tests := []struct {
		status     string
		terminal   bool
		active     bool
		executable bool
	}{
		{RunStatusPending, false, true, true},
		{RunStatusRunning, false, true, false},
		{RunStatusCompleted, true, false, false},
		{RunStatusFailed, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			run := &Run{Status: tt.status}
			assert.Equal(t, tt.terminal, run.IsTerminal())
			assert.Equal(t, tt.active, run.IsActive())
			assert.Equal(t, tt.executable, run.CanExecute())
		})
	}
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	assert.Zero(t, (&Run{}).Duration())
	assert.Zero(t, (&Run{StartedAt: &start}).Duration())
	assert.Equal(t, 90*time.Second, (&Run{StartedAt: &start, FinishedAt: &end}).Duration())
}
