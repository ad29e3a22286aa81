// Package governor throttles catalog calls using the cost telemetry the
// remote API returns with every response.
//
// A Governor is scoped to one run. Runs share only a Budget, which remembers
// the largest bucket size the platform has reported so a fresh run starts
// with a conservative view of what is available.
package governor

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"quickedit/internal/catalog"
)

// DefaultRestoreRate is the points-per-second refill assumed when the
// platform has not reported one.
const DefaultRestoreRate = 50.0

// Budget holds the largest cost bucket observed across runs.
type Budget struct {
	max atomic.Uint64
}

// NewBudget creates an empty Budget.
func NewBudget() *Budget {
	return &Budget{}
}

// Observe records limit if it is larger than anything seen so far.
func (b *Budget) Observe(limit float64) {
	if b == nil || limit <= 0 {
		return
	}
	for {
		cur := b.max.Load()
		if math.Float64frombits(cur) >= limit {
			return
		}
		if b.max.CompareAndSwap(cur, math.Float64bits(limit)) {
			return
		}
	}
}

// Maximum returns the largest observed limit, or 0.
func (b *Budget) Maximum() float64 {
	if b == nil {
		return 0
	}
	return math.Float64frombits(b.max.Load())
}

// State is a snapshot of a governor's tracking.
type State struct {
	Used        float64 `json:"used"`
	Available   float64 `json:"available"`
	Maximum     float64 `json:"maximum"`
	RestoreRate float64 `json:"restoreRate"`
	Known       bool    `json:"known"`
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock sets the clock used for delays.
func WithClock(c clock.Clock) Option {
	return func(g *Governor) {
		g.clock = c
	}
}

// WithMargin sets the safety margin. Zero uses the requested cost of the last call.
func WithMargin(margin float64) Option {
	return func(g *Governor) {
		g.margin = margin
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Governor) {
		g.logger = logger
	}
}

// Governor gates calls of a single run.
type Governor struct {
	gate   chan struct{}
	clock  clock.Clock
	logger *zap.Logger
	budget *Budget
	margin float64

	mu            sync.Mutex
	used          float64
	available     float64
	maximum       float64
	restoreRate   float64
	lastRequested float64
	known         bool
}

// New creates a run-scoped governor seeded from budget (which may be nil).
func New(budget *Budget, opts ...Option) *Governor {
	g := &Governor{
		gate:        make(chan struct{}, 1),
		clock:       clock.RealClock{},
		logger:      zap.NewNop(),
		budget:      budget,
		restoreRate: DefaultRestoreRate,
	}
	for _, opt := range opts {
		opt(g)
	}
	if seed := budget.Maximum(); seed > 0 {
		g.maximum = seed
		g.available = seed
		g.known = true
	}
	return g
}

// BeforeCall waits until the call may proceed. The returned release must be
// called once the call has finished; it is safe to call more than once.
func (g *Governor) BeforeCall(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case g.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := sync.OnceFunc(func() { <-g.gate })

	delay := g.Delay()
	if delay <= 0 {
		return release, nil
	}

	g.logger.Info("Rate budget low, delaying call",
		zap.Duration("delay", delay),
		zap.Float64("available", g.State().Available))

	timer := g.clock.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	case <-timer.C():
	}

	g.restored(delay)
	return release, nil
}

// AfterCall records the cost telemetry of a finished call. A nil cost is ignored.
func (g *Governor) AfterCall(cost *catalog.CostInfo) {
	if cost == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.used += cost.Used
	if cost.Requested > 0 {
		g.lastRequested = cost.Requested
	}
	if cost.RestoreRate > 0 {
		g.restoreRate = cost.RestoreRate
	}
	if cost.Limit > 0 {
		g.maximum = cost.Limit
		g.budget.Observe(cost.Limit)
	}
	if cost.Limit > 0 || cost.Available > 0 {
		g.available = cost.Available
		g.known = true
	}
}

// Delay returns how long the next call should wait, or 0.
func (g *Governor) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.known {
		return 0
	}
	margin := g.margin
	if margin <= 0 {
		margin = g.lastRequested
	}
	if margin <= 0 || g.available >= margin {
		return 0
	}

	rate := g.restoreRate
	if rate <= 0 {
		rate = DefaultRestoreRate
	}
	seconds := (margin - g.available) / rate
	return time.Duration(seconds * float64(time.Second))
}

// Used returns the cost consumed so far.
func (g *Governor) Used() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// State returns a snapshot of the tracking.
func (g *Governor) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		Used:        g.used,
		Available:   g.available,
		Maximum:     g.maximum,
		RestoreRate: g.restoreRate,
		Known:       g.known,
	}
}

// restored credits the bucket for the time spent waiting.
func (g *Governor) restored(waited time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.available += waited.Seconds() * g.restoreRate
	if g.maximum > 0 && g.available > g.maximum {
		g.available = g.maximum
	}
}
