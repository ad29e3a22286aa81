package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickedit/internal/models"
)

func TestRunRows_RoundTrip(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	summary := models.RunSummary{
		ID:         "run-1",
		Action:     "ean",
		TriggerID:  "5-minutes-1",
		Outcome:    models.OutcomeSuccess,
		Truncated:  true,
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
		Elapsed:    3 * time.Second,
		Pages:      2,
		Scanned:    40,
		Matched:    3,
		Updated:    2,
		Failed:     1,
		CostUsed:   12.5,
		Updates: []models.UpdateDetail{
			{ProductID: "p1", MatchedKey: "8001", Tags: []string{"a", "promo"}, Status: models.StatusActive, OK: true},
			{ProductID: "p2", MatchedKey: "8002", Error: "tags: invalid"},
		},
	}

	run, updates := runToRows(summary)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, int64(3000), run.ElapsedMS)
	require.Len(t, updates, 2)
	assert.Equal(t, "run-1", updates[0].RunID)
	assert.Equal(t, `["a","promo"]`, updates[0].Tags)

	back := rowsToRun(*run, updates)
	assert.Equal(t, summary.Updates[0], back.Updates[0])
	assert.Equal(t, summary.Updates[1].Error, back.Updates[1].Error)
	assert.Equal(t, summary.Elapsed, back.Elapsed)
	assert.Equal(t, summary.Outcome, back.Outcome)
	assert.True(t, back.Truncated)
}

func TestTriggerRows(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	trigger := models.Trigger{
		ID:        "1-hours-42",
		Cadence:   models.Cadence{Every: 1, Unit: models.UnitHours},
		CreatedAt: created,
		Job:       models.InventoryJob("esaurito"),
	}

	row, err := triggerToRow(trigger)
	require.NoError(t, err)
	assert.Equal(t, "hours", row.Period)

	back, err := rowToTrigger(row)
	require.NoError(t, err)
	assert.Equal(t, trigger, back)

	row.Job = "{broken"
	_, err = rowToTrigger(row)
	assert.Error(t, err)
}
