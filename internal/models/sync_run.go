package models

import "time"

// SyncRun stores the audit record of a finished sync run.
type SyncRun struct {
	ID         string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Action     string    `gorm:"column:action;size:100;index:idx_sync_runs_action_finished,priority:1" json:"action"`
	TriggerID  string    `gorm:"column:trigger_id;size:100;index:idx_sync_runs_trigger" json:"trigger_id"`
	Outcome    string    `gorm:"column:outcome;size:20" json:"outcome"`
	Truncated  bool      `gorm:"column:truncated;default:false" json:"truncated"`
	LastError  string    `gorm:"column:last_error;type:text" json:"last_error"`
	Pages      int       `gorm:"column:pages;default:0" json:"pages"`
	Scanned    int       `gorm:"column:scanned;default:0" json:"scanned"`
	Matched    int       `gorm:"column:matched;default:0" json:"matched"`
	Updated    int       `gorm:"column:updated;default:0" json:"updated"`
	Unchanged  int       `gorm:"column:unchanged;default:0" json:"unchanged"`
	Failed     int       `gorm:"column:failed;default:0" json:"failed"`
	CostUsed   float64   `gorm:"column:cost_used;default:0" json:"cost_used"`
	ElapsedMS  int64     `gorm:"column:elapsed_ms;default:0" json:"elapsed_ms"`
	StartedAt  time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt time.Time `gorm:"column:finished_at;index:idx_sync_runs_action_finished,priority:2" json:"finished_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// SyncRunUpdate stores one product mutation attempted by a run.
type SyncRunUpdate struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID      string `gorm:"column:run_id;size:64;index:idx_sync_run_updates_run" json:"run_id"`
	ProductID  string `gorm:"column:product_id;size:255" json:"product_id"`
	MatchedKey string `gorm:"column:matched_key;size:255" json:"matched_key"`
	Tags       string `gorm:"column:tags;type:text" json:"tags"`
	Status     string `gorm:"column:status;size:20" json:"status"`
	OK         bool   `gorm:"column:ok" json:"ok"`
	LastError  string `gorm:"column:last_error;type:text" json:"last_error"`
}

func (SyncRunUpdate) TableName() string {
	return "sync_run_updates"
}

// ScheduledTrigger stores the trigger snapshot so schedules survive a restart.
type ScheduledTrigger struct {
	ID        string    `gorm:"column:id;primaryKey;size:100" json:"id"`
	Every     int       `gorm:"column:every" json:"every"`
	Period    string    `gorm:"column:period;size:20" json:"period"`
	Job       string    `gorm:"column:job;type:longtext" json:"job"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ScheduledTrigger) TableName() string {
	return "scheduled_triggers"
}
