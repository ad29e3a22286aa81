// Package engine walks the remote catalog page by page, evaluates each
// product against a match predicate and writes the resulting delta back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"quickedit/internal/apperr"
	"quickedit/internal/catalog"
	"quickedit/internal/governor"
	"quickedit/internal/match"
	"quickedit/internal/models"
)

var errRetriesExhausted = errors.New("retries exhausted")

// Config holds the run limits.
type Config struct {
	PageSize   int
	Deadline   time.Duration // zero disables the wall-clock budget
	MaxRetries int           // retries after the first attempt
	RetryBase  time.Duration
	RetryMax   time.Duration
	CostMargin float64
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PageSize:   catalog.MaxPageSize,
		Deadline:   290 * time.Second,
		MaxRetries: 3,
		RetryBase:  time.Second,
		RetryMax:   30 * time.Second,
	}
}

// Metrics receives engine events. Implementations must be safe for concurrent use.
type Metrics interface {
	Retry(operation string)
	Mutation(result string)
}

type nopMetrics struct{}

func (nopMetrics) Retry(string)    {}
func (nopMetrics) Mutation(string) {}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for the deadline and timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithBudget shares the observed rate-limit maximum across runs.
func WithBudget(b *governor.Budget) Option {
	return func(e *Engine) {
		e.budget = b
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs sync jobs. It holds no per-run state and is safe for concurrent runs.
type Engine struct {
	client  catalog.Client
	cfg     Config
	logger  *zap.Logger
	clock   clock.Clock
	budget  *governor.Budget
	metrics Metrics
}

// New creates an Engine.
func New(client catalog.Client, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.PageSize <= 0 || cfg.PageSize > catalog.MaxPageSize {
		cfg.PageSize = catalog.MaxPageSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		clock:   clock.RealClock{},
		budget:  governor.NewBudget(),
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the state of a single invocation.
type run struct {
	summary  *models.RunSummary
	pred     match.Predicate
	gov      *governor.Governor
	deadline time.Time
	seen     map[string]struct{}
	logger   *zap.Logger
}

// Run executes job and returns its summary. A validation error is returned
// without a summary. Otherwise a summary is always returned and the error is
// non-nil only when the run aborted with a fatal error.
func (e *Engine) Run(ctx context.Context, job models.SyncJob) (*models.RunSummary, error) {
	pred, err := match.New(job.Criterion, job.Mutation)
	if err != nil {
		return nil, err
	}

	action := job.Name
	if action == "" {
		action = string(job.Criterion.Kind)
	}

	start := e.clock.Now()
	r := &run{
		summary: &models.RunSummary{
			ID:        uuid.NewString(),
			Action:    action,
			Outcome:   models.OutcomeSuccess,
			StartedAt: start,
			Updates:   []models.UpdateDetail{},
		},
		pred: pred,
		gov: governor.New(e.budget,
			governor.WithClock(e.clock),
			governor.WithMargin(e.cfg.CostMargin),
			governor.WithLogger(e.logger)),
		seen: make(map[string]struct{}),
	}
	if e.cfg.Deadline > 0 {
		r.deadline = start.Add(e.cfg.Deadline)
	}
	r.logger = e.logger.With(zap.String("run_id", r.summary.ID), zap.String("action", action))
	r.logger.Info("Sync run started", zap.Int("filters", len(pred.Filters())))

	runErr := e.walk(ctx, r)

	s := r.summary
	s.FinishedAt = e.clock.Now()
	s.Elapsed = s.FinishedAt.Sub(start)
	s.CostUsed = r.gov.Used()
	if runErr != nil {
		s.Outcome = models.OutcomeError
		s.Error = runErr.Error()
		r.logger.Error("Sync run failed", zap.Error(runErr), zap.Int("scanned", s.Scanned), zap.Int("updated", s.Updated))
		return s, runErr
	}

	r.logger.Info("Sync run finished",
		zap.Int("pages", s.Pages),
		zap.Int("scanned", s.Scanned),
		zap.Int("matched", s.Matched),
		zap.Int("updated", s.Updated),
		zap.Int("failed", s.Failed),
		zap.Bool("truncated", s.Truncated),
		zap.Duration("elapsed", s.Elapsed))
	return s, nil
}

func (e *Engine) walk(ctx context.Context, r *run) error {
	for _, filter := range r.pred.Filters() {
		cursor := ""
		for {
			if e.expired(r) {
				return nil
			}

			req := catalog.ListRequest{Filter: filter, Cursor: cursor, PageSize: e.cfg.PageSize}
			page, err := call(ctx, e, r, "list_products", func() (*catalog.Page, error) {
				page, err := e.client.ListProducts(ctx, req)
				if err == nil && page == nil {
					return nil, apperr.Fatal("empty products page")
				}
				return page, err
			}, func(p *catalog.Page) *catalog.CostInfo { return p.Cost })
			if err != nil {
				return apperr.Escalate(err)
			}
			r.summary.Pages++

			for i := range page.Products {
				p := &page.Products[i]
				if _, dup := r.seen[p.ID]; dup {
					continue
				}
				r.seen[p.ID] = struct{}{}
				r.summary.Scanned++

				d := r.pred.Evaluate(p)
				if !d.Matched {
					continue
				}
				r.summary.Matched++
				if !d.Changed() {
					r.summary.Unchanged++
					continue
				}
				if e.expired(r) {
					return nil
				}
				if err := e.apply(ctx, r, p, d); err != nil {
					return err
				}
			}

			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, r *run, p *models.Product, d match.Decision) error {
	res, err := call(ctx, e, r, "update_product", func() (*catalog.UpdateResult, error) {
		return e.client.UpdateProduct(ctx, p.ID, d.Update)
	}, func(u *catalog.UpdateResult) *catalog.CostInfo {
		if u == nil {
			return nil
		}
		return u.Cost
	})

	detail := models.UpdateDetail{
		ProductID:  p.ID,
		MatchedKey: d.MatchedKey,
		Tags:       d.Tags,
		Status:     d.Status,
	}

	switch {
	case err != nil && errors.Is(err, errRetriesExhausted):
		detail.Error = err.Error()
	case err != nil:
		return apperr.Escalate(err)
	case res == nil:
		detail.Error = "empty productUpdate result"
	case !res.OK:
		detail.Error = userErrorText(res.UserErrors)
	default:
		detail.OK = true
	}

	if detail.OK {
		r.summary.Updated++
		e.metrics.Mutation("updated")
	} else {
		r.summary.Failed++
		e.metrics.Mutation("failed")
		r.logger.Warn("Product update failed", zap.String("product_id", p.ID), zap.String("error", detail.Error))
	}
	r.summary.Updates = append(r.summary.Updates, detail)
	return nil
}

// call runs fn behind the governor gate and retries transient failures with
// exponential backoff. Anything else stops the retries immediately.
func call[T any](ctx context.Context, e *Engine, r *run, op string, fn func() (T, error), cost func(T) *catalog.CostInfo) (T, error) {
	attempts := 0
	operation := func() (T, error) {
		attempts++
		var zero T

		release, err := r.gov.BeforeCall(ctx)
		if err != nil {
			return zero, backoff.Permanent(apperr.Fatal("%s: %v", op, err))
		}
		res, err := fn()
		release()

		if err != nil {
			if errors.Is(err, apperr.ErrTransient) {
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		r.gov.AfterCall(cost(res))
		return res, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBase
	b.MaxInterval = e.cfg.RetryMax
	b.Multiplier = 2
	b.RandomizationFactor = 0

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.metrics.Retry(op)
			r.logger.Warn("Transient catalog error, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err))
		}))
	if err == nil {
		return res, nil
	}
	if errors.Is(err, apperr.ErrTransient) {
		return res, fmt.Errorf("%s: %w after %d attempts: %w", op, errRetriesExhausted, attempts, err)
	}
	if ctx.Err() != nil && !errors.Is(err, apperr.ErrFatal) {
		return res, apperr.Fatal("%s: %v", op, err)
	}
	return res, err
}

// expired reports whether the deadline has passed and marks the run truncated.
func (e *Engine) expired(r *run) bool {
	if r.deadline.IsZero() || e.clock.Now().Before(r.deadline) {
		return false
	}
	if !r.summary.Truncated {
		r.summary.Truncated = true
		r.logger.Warn("Run deadline reached, stopping early",
			zap.Int("scanned", r.summary.Scanned),
			zap.Int("updated", r.summary.Updated))
	}
	return true
}

func userErrorText(errs []catalog.UserError) string {
	if len(errs) == 0 {
		return "update rejected"
	}
	parts := make([]string, 0, len(errs))
	for _, ue := range errs {
		if len(ue.Field) > 0 {
			parts = append(parts, strings.Join(ue.Field, ".")+": "+ue.Message)
			continue
		}
		parts = append(parts, ue.Message)
	}
	return strings.Join(parts, "; ")
}
