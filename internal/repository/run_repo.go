package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"quickedit/internal/models"
)

// RunRepository stores the audit trail of sync runs.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save writes a run and its per-product updates in one transaction.
func (r *RunRepository) Save(ctx context.Context, summary models.RunSummary) error {
	run, updates := runToRows(summary)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.CreateInBatches(&updates, 200).Error
	})
}

// Recent returns the latest runs, most recent first, with their updates.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []models.SyncRun
	if err := r.db.WithContext(ctx).Order("finished_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return []models.RunSummary{}, nil
	}

	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}
	var updates []models.SyncRunUpdate
	if err := r.db.WithContext(ctx).Where("run_id IN ?", ids).Order("id ASC").Find(&updates).Error; err != nil {
		return nil, err
	}

	byRun := make(map[string][]models.SyncRunUpdate, len(runs))
	for _, u := range updates {
		byRun[u.RunID] = append(byRun[u.RunID], u)
	}

	out := make([]models.RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, rowsToRun(run, byRun[run.ID]))
	}
	return out, nil
}

// UpdatedSince sums updated products of runs finished after t.
func (r *RunRepository) UpdatedSince(ctx context.Context, t time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.SyncRun{}).
		Where("finished_at > ?", t).
		Select("COALESCE(SUM(updated), 0)").
		Scan(&total).Error
	return total, err
}

func runToRows(s models.RunSummary) (*models.SyncRun, []models.SyncRunUpdate) {
	run := &models.SyncRun{
		ID:         s.ID,
		Action:     s.Action,
		TriggerID:  s.TriggerID,
		Outcome:    string(s.Outcome),
		Truncated:  s.Truncated,
		LastError:  s.Error,
		Pages:      s.Pages,
		Scanned:    s.Scanned,
		Matched:    s.Matched,
		Updated:    s.Updated,
		Unchanged:  s.Unchanged,
		Failed:     s.Failed,
		CostUsed:   s.CostUsed,
		ElapsedMS:  s.Elapsed.Milliseconds(),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}

	updates := make([]models.SyncRunUpdate, 0, len(s.Updates))
	for _, u := range s.Updates {
		tags, _ := json.Marshal(u.Tags)
		updates = append(updates, models.SyncRunUpdate{
			RunID:      s.ID,
			ProductID:  u.ProductID,
			MatchedKey: u.MatchedKey,
			Tags:       string(tags),
			Status:     string(u.Status),
			OK:         u.OK,
			LastError:  u.Error,
		})
	}
	return run, updates
}

func rowsToRun(run models.SyncRun, updates []models.SyncRunUpdate) models.RunSummary {
	s := models.RunSummary{
		ID:         run.ID,
		Action:     run.Action,
		TriggerID:  run.TriggerID,
		Outcome:    models.RunOutcome(run.Outcome),
		Truncated:  run.Truncated,
		Error:      run.LastError,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Elapsed:    time.Duration(run.ElapsedMS) * time.Millisecond,
		Pages:      run.Pages,
		Scanned:    run.Scanned,
		Matched:    run.Matched,
		Updated:    run.Updated,
		Unchanged:  run.Unchanged,
		Failed:     run.Failed,
		CostUsed:   run.CostUsed,
		Updates:    make([]models.UpdateDetail, 0, len(updates)),
	}
	for _, u := range updates {
		var tags []string
		_ = json.Unmarshal([]byte(u.Tags), &tags)
		s.Updates = append(s.Updates, models.UpdateDetail{
			ProductID:  u.ProductID,
			MatchedKey: u.MatchedKey,
			Tags:       tags,
			Status:     models.ProductStatus(u.Status),
			OK:         u.OK,
			Error:      u.LastError,
		})
	}
	return s
}
