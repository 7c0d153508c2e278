package activity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlinks/internal/clock"
	"backlinks/internal/models"
	"backlinks/internal/testutil"
)

func TestRecord_StoresAndLogs(t *testing.T) {
	store := testutil.NewMemStore()
	var logs bytes.Buffer
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	r := NewRecorder(store, clock.NewFixed(now), slog.New(slog.NewTextHandler(&logs, nil)))

	runID := uuid.New()
	r.Record(context.Background(), models.ActivityEvent{
		Event:   models.EventRunStarted,
		RunID:   &runID,
		Message: "backlink run started",
	})

	events := store.Activity()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRunStarted, events[0].Event)
	assert.Equal(t, now, events[0].CreatedAt)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.Contains(t, logs.String(), "run_id="+runID.String())
}

func TestRecord_FailureIsLoggedOnly(t *testing.T) {
	store := testutil.NewMemStore()
	store.FailOn("InsertActivity", errors.New("disk full"))
	var logs bytes.Buffer
	r := NewRecorder(store, nil, slog.New(slog.NewTextHandler(&logs, nil)))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), models.ActivityEvent{Event: models.EventRunFailed, Message: "boom"})
	})
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "failed to record activity")
}

func TestRecord_NilStore(t *testing.T) {
	r := NewRecorder(nil, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	assert.NotPanics(t, func() {
		r.Record(context.Background(), models.ActivityEvent{Event: models.EventRunCompleted})
	})
}
