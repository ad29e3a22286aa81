package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"quickedit/internal/models"
)

// TriggerRepository persists the scheduler's trigger snapshot.
type TriggerRepository struct {
	db *gorm.DB
}

func NewTriggerRepository(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// Replace swaps the stored snapshot for triggers.
func (r *TriggerRepository) Replace(ctx context.Context, triggers []models.Trigger) error {
	rows := make([]models.ScheduledTrigger, 0, len(triggers))
	for _, t := range triggers {
		row, err := triggerToRow(t)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ScheduledTrigger{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// FindAll returns the stored triggers, oldest first. Rows whose job no
// longer decodes are skipped.
func (r *TriggerRepository) FindAll(ctx context.Context) ([]models.Trigger, error) {
	var rows []models.ScheduledTrigger
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.Trigger, 0, len(rows))
	for _, row := range rows {
		t, err := rowToTrigger(row)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func triggerToRow(t models.Trigger) (models.ScheduledTrigger, error) {
	job, err := json.Marshal(t.Job)
	if err != nil {
		return models.ScheduledTrigger{}, fmt.Errorf("marshal trigger %s: %w", t.ID, err)
	}
	return models.ScheduledTrigger{
		ID:        t.ID,
		Every:     t.Cadence.Every,
		Period:    string(t.Cadence.Unit),
		Job:       string(job),
		CreatedAt: t.CreatedAt,
	}, nil
}

func rowToTrigger(row models.ScheduledTrigger) (models.Trigger, error) {
	var job models.SyncJob
	if err := json.Unmarshal([]byte(row.Job), &job); err != nil {
		return models.Trigger{}, fmt.Errorf("decode trigger %s: %w", row.ID, err)
	}
	return models.Trigger{
		ID:        row.ID,
		Cadence:   models.Cadence{Every: row.Every, Unit: models.CadenceUnit(row.Period)},
		CreatedAt: row.CreatedAt,
		Job:       job,
	}, nil
}
