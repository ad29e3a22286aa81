package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quickedit/internal/bootstrap"
	"quickedit/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "quickedit.db")), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, bootstrap.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var finishedBase = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func runAt(id string, finished time.Time, updated int, details ...models.UpdateDetail) models.RunSummary {
	return models.RunSummary{
		ID:         id,
		Action:     "inventory_zero",
		Outcome:    models.OutcomeSuccess,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Elapsed:    time.Minute,
		Updated:    updated,
		Updates:    details,
	}
}

func TestRunRepository_SaveAndRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))

	require.NoError(t, repo.Save(ctx, runAt("r1", finishedBase, 1,
		models.UpdateDetail{ProductID: "p0", OK: true})))
	require.NoError(t, repo.Save(ctx, runAt("r2", finishedBase.Add(time.Hour), 1,
		models.UpdateDetail{ProductID: "p1", MatchedKey: "8001", Tags: []string{"promo"}, Status: models.StatusActive, OK: true},
		models.UpdateDetail{ProductID: "p2", MatchedKey: "8002", Error: "tags: invalid"})))
	require.NoError(t, repo.Save(ctx, runAt("r3", finishedBase.Add(2*time.Hour), 0)))

	runs, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r3", runs[0].ID)
	assert.Empty(t, runs[0].Updates)
	assert.NotNil(t, runs[0].Updates)

	assert.Equal(t, "r2", runs[1].ID)
	assert.True(t, runs[1].FinishedAt.Equal(finishedBase.Add(time.Hour)))
	assert.Equal(t, time.Minute, runs[1].Elapsed)
	require.Len(t, runs[1].Updates, 2)
	assert.Equal(t, models.UpdateDetail{
		ProductID: "p1", MatchedKey: "8001", Tags: []string{"promo"}, Status: models.StatusActive, OK: true,
	}, runs[1].Updates[0])
	assert.Equal(t, "p2", runs[1].Updates[1].ProductID)
	assert.Equal(t, "tags: invalid", runs[1].Updates[1].Error)
	assert.False(t, runs[1].Updates[1].OK)
}

func TestRunRepository_RecentEmpty(t *testing.T) {
	t.Parallel()

	runs, err := NewRunRepository(newTestDB(t)).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunRepository_SaveInBatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRunRepository(db)

	details := make([]models.UpdateDetail, 450)
	for i := range details {
		details[i] = models.UpdateDetail{ProductID: fmt.Sprintf("p%d", i), OK: true}
	}
	require.NoError(t, repo.Save(ctx, runAt("big", finishedBase, len(details), details...)))

	var count int64
	require.NoError(t, db.Model(&models.SyncRunUpdate{}).Where("run_id = ?", "big").Count(&count).Error)
	assert.Equal(t, int64(450), count)

	runs, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Updates, 450)
	assert.Equal(t, "p0", runs[0].Updates[0].ProductID)
	assert.Equal(t, "p449", runs[0].Updates[449].ProductID)
}

func TestRunRepository_SaveIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewRunRepository(db)

	run := runAt("r1", finishedBase, 1, models.UpdateDetail{ProductID: "p1", OK: true})
	require.NoError(t, repo.Save(ctx, run))
	require.Error(t, repo.Save(ctx, run))

	var count int64
	require.NoError(t, db.Model(&models.SyncRunUpdate{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRunRepository_UpdatedSince(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))

	n, err := repo.UpdatedSince(ctx, finishedBase)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.Save(ctx, runAt("old", finishedBase.Add(-48*time.Hour), 7)))
	require.NoError(t, repo.Save(ctx, runAt("a", finishedBase.Add(-time.Hour), 3)))
	require.NoError(t, repo.Save(ctx, runAt("b", finishedBase.Add(-time.Minute), 2)))

	n, err = repo.UpdatedSince(ctx, finishedBase.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = repo.UpdatedSince(ctx, finishedBase)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTriggerRepository_ReplaceAndFindAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewTriggerRepository(newTestDB(t))

	hourly := models.Trigger{
		ID:        "1-hours-1",
		Cadence:   models.Cadence{Every: 1, Unit: models.UnitHours},
		CreatedAt: finishedBase,
		Job:       models.InventoryJob("esaurito"),
	}
	daily := models.Trigger{
		ID:        "1-days-2",
		Cadence:   models.Cadence{Every: 1, Unit: models.UnitDays},
		CreatedAt: finishedBase.Add(time.Minute),
		Job:       models.InventoryJob(""),
	}

	require.NoError(t, repo.Replace(ctx, []models.Trigger{daily, hourly}))
	got, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1-hours-1", got[0].ID)
	assert.Equal(t, hourly.Cadence, got[0].Cadence)
	assert.Equal(t, hourly.Job, got[0].Job)
	assert.Equal(t, "1-days-2", got[1].ID)

	require.NoError(t, repo.Replace(ctx, []models.Trigger{daily}))
	got, err = repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1-days-2", got[0].ID)

	require.NoError(t, repo.Replace(ctx, nil))
	got, err = repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
