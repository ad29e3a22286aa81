// Package history keeps the most recent run summaries in memory, newest
// first, optionally mirrored to an external store.
package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quickedit/internal/models"
)

// DefaultCap is the number of summaries kept.
const DefaultCap = 10

const mirrorTimeout = 2 * time.Second

// Log is a capped, most-recent-first record of run summaries.
type Log struct {
	mu      sync.RWMutex
	entries []models.RunSummary
	cap     int
	mirror  Mirror
	logger  *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithMirror copies every change to m.
func WithMirror(m Mirror) Option {
	return func(l *Log) {
		l.mirror = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// New creates a Log holding at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	l := &Log{
		entries: make([]models.RunSummary, 0, capacity),
		cap:     capacity,
		mirror:  nopMirror{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records s as the most recent entry, evicting the oldest on overflow.
func (l *Log) Append(s models.RunSummary) {
	l.mu.Lock()
	l.entries = append([]models.RunSummary{s}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := l.mirror.Push(ctx, s); err != nil {
		l.logger.Warn("Failed to mirror run summary", zap.String("run_id", s.ID), zap.Error(err))
	}
}

// Entries returns a snapshot, most recent first.
func (l *Log) Entries() []models.RunSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.RunSummary, len(l.entries))
	copy(out, l.entries)
	return out
}

// Export returns the entries for external persistence.
func (l *Log) Export() []models.RunSummary {
	return l.Entries()
}

// Import replaces the log with entries (most recent first), keeping at most cap.
func (l *Log) Import(entries []models.RunSummary) {
	if len(entries) > l.cap {
		entries = entries[:l.cap]
	}

	l.mu.Lock()
	l.entries = make([]models.RunSummary, len(entries), l.cap)
	copy(l.entries, entries)
	snapshot := make([]models.RunSummary, len(entries))
	copy(snapshot, entries)
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := l.mirror.Replace(ctx, snapshot); err != nil {
		l.logger.Warn("Failed to mirror imported history", zap.Error(err))
	}
}

// Restore loads the mirrored entries into the log without writing them back.
func (l *Log) Restore(ctx context.Context) (int, error) {
	entries, err := l.mirror.Load(ctx, l.cap)
	if err != nil {
		return 0, err
	}
	if len(entries) > l.cap {
		entries = entries[:l.cap]
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(make([]models.RunSummary, 0, l.cap), entries...)
	return len(entries), nil
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// UpdatedSince sums the updated-product counts of runs finished after t.
func (l *Log) UpdatedSince(t time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0
	for _, e := range l.entries {
		if e.FinishedAt.After(t) {
			total += e.Updated
		}
	}
	return total
}
