package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quickedit/internal/apperr"
	"quickedit/internal/history"
	"quickedit/internal/models"
)

// statsWindow is the lookback of the updated-products dashboard counter.
const statsWindow = 24 * time.Hour

// JobScheduler is the part of the cron scheduler the API drives.
type JobScheduler interface {
	Schedule(every int, unit models.CadenceUnit, job models.SyncJob) (*models.Trigger, error)
	StopJob(id string) error
	ClearAll() int
	ListActive() []models.Trigger
	ActiveCount() int
	RunNow(ctx context.Context, job models.SyncJob) (*models.RunSummary, error)
}

// RunArchive serves the audited runs kept in the database.
type RunArchive interface {
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
	UpdatedSince(ctx context.Context, t time.Time) (int64, error)
}

// SyncHandler handles the sync API actions.
type SyncHandler struct {
	scheduler JobScheduler
	history   *history.Log
	archive   RunArchive
	vendorKey string
	now       func() time.Time
	logger    *zap.Logger
}

// NewSyncHandler creates the handler. archive may be nil when no database is configured.
func NewSyncHandler(scheduler JobScheduler, log *history.Log, archive RunArchive, vendorKey string, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		scheduler: scheduler,
		history:   log,
		archive:   archive,
		vendorKey: vendorKey,
		now:       time.Now,
		logger:    logger,
	}
}

// Handle routes sync API requests.
// POST /api/sync
func (h *SyncHandler) Handle(c echo.Context) error {
	action, body, err := parseBodyAction(c)
	if err != nil {
		return failure(c, apperr.Validation("invalid request body"))
	}

	switch action {
	case "runNow":
		return h.runNow(c, body)
	case "scheduleCron":
		return h.scheduleCron(c, body)
	case "stopJob":
		return h.stopJob(c, body)
	case "listJobs":
		return h.listJobs(c)
	case "clearJobs":
		return h.clearJobs(c)
	case "history":
		return h.listHistory(c, body)
	case "importHistory":
		return h.importHistory(c, body)
	case "stats":
		return h.stats(c, body)
	default:
		return failure(c, apperr.Validation("unknown action %q", action))
	}
}

func (h *SyncHandler) runNow(c echo.Context, body map[string]interface{}) error {
	job := models.InventoryJob(getStringField(body, "tag"))
	summary, err := h.scheduler.RunNow(runContext(c), job)
	return h.runResponse(c, summary, err)
}

// runContext detaches a run from the client connection. The engine deadline
// bounds the run instead.
func runContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

// runResponse reports a finished run. A run that aborted still returns its summary.
func (h *SyncHandler) runResponse(c echo.Context, summary *models.RunSummary, err error) error {
	if summary == nil {
		return failure(c, err)
	}
	if err != nil {
		h.logger.Warn("Sync run aborted", zap.String("run_id", summary.ID), zap.Error(err))
		return errorResponseWithRun(c, err.Error(), summary)
	}

	msg := "Sync completed"
	if summary.Truncated {
		msg = "Sync stopped at the time limit, partial results"
	}
	return successResponse(c, models.SyncResponse{
		Message:              msg,
		UpdatedProductsCount: intPtr(summary.Updated),
		UpdatedProducts:      summary.Updates,
		Run:                  summary,
	})
}

func (h *SyncHandler) scheduleCron(c echo.Context, body map[string]interface{}) error {
	cadence, err := models.ParseCadence(getStringField(body, "every"), getStringField(body, "period"))
	if err != nil {
		return failure(c, err)
	}

	trigger, err := h.scheduler.Schedule(cadence.Every, cadence.Unit, models.InventoryJob(getStringField(body, "tag")))
	if err != nil {
		return failure(c, err)
	}

	return successResponse(c, models.SyncResponse{
		Message: "Cron job scheduled every " + trigger.Cadence.String(),
		JobID:   trigger.ID,
	})
}

func (h *SyncHandler) stopJob(c echo.Context, body map[string]interface{}) error {
	id := getStringField(body, "jobId")
	if id == "" {
		return failure(c, apperr.Validation("jobId is required"))
	}
	if err := h.scheduler.StopJob(id); err != nil {
		return failure(c, err)
	}
	return successResponse(c, models.SyncResponse{
		Message: "Cron job stopped",
		JobID:   id,
	})
}

func (h *SyncHandler) listJobs(c echo.Context) error {
	return successResponse(c, models.SyncResponse{
		Jobs: h.scheduler.ListActive(),
	})
}

func (h *SyncHandler) clearJobs(c echo.Context) error {
	n := h.scheduler.ClearAll()
	return successResponse(c, models.SyncResponse{
		Message: fmt.Sprintf("%d cron jobs stopped", n),
	})
}

func (h *SyncHandler) listHistory(c echo.Context, body map[string]interface{}) error {
	if getStringField(body, "source") == "archive" {
		if h.archive == nil {
			return errorResponse(c, "run archive is not configured")
		}
		runs, err := h.archive.Recent(c.Request().Context(), getIntField(body, "limit", history.DefaultCap))
		if err != nil {
			h.logger.Error("Failed to load archived runs", zap.Error(err))
			return errorResponse(c, "Failed to retrieve run archive")
		}
		return successResponse(c, models.SyncResponse{History: runs})
	}
	return successResponse(c, models.SyncResponse{History: h.history.Entries()})
}

func (h *SyncHandler) importHistory(c echo.Context, body map[string]interface{}) error {
	raw, ok := body["entries"]
	if !ok {
		return failure(c, apperr.Validation("entries is required"))
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return failure(c, apperr.Validation("invalid entries: %v", err))
	}
	var entries []models.RunSummary
	if err := json.Unmarshal(data, &entries); err != nil {
		return failure(c, apperr.Validation("invalid entries: %v", err))
	}

	h.history.Import(entries)
	return successResponse(c, models.SyncResponse{
		Message: "History imported",
		History: h.history.Entries(),
	})
}

func (h *SyncHandler) stats(c echo.Context, body map[string]interface{}) error {
	since := h.now().Add(-statsWindow)
	stats := &models.Stats{Active: h.scheduler.ActiveCount()}

	if getStringField(body, "source") == "archive" {
		if h.archive == nil {
			return errorResponse(c, "run archive is not configured")
		}
		n, err := h.archive.UpdatedSince(c.Request().Context(), since)
		if err != nil {
			h.logger.Error("Failed to count archived updates", zap.Error(err))
			return errorResponse(c, "Failed to retrieve run archive")
		}
		stats.UpdatedProducts = int(n)
	} else {
		stats.UpdatedProducts = h.history.UpdatedSince(since)
	}

	return successResponse(c, models.SyncResponse{Stats: stats})
}
