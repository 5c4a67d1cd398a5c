package dataset

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/civic-data-tour/internal/observability"
)

// Exponential backoff for the initial load: start at 200ms, double each retry, cap at 5s.
var (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

type readiness int

const (
	readinessUnknown readiness = iota
	readinessReady
	readinessUnavailable
)

// Loader loads snapshots from a directory into a Store and reports readiness
// transitions to subscribers.
type Loader struct {
	dir     string
	store   *Store
	logger  *slog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	state   readiness
	onReady []func(ready bool)
}

// NewLoader creates a Loader for dir.
func NewLoader(dir string, store *Store, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		dir:     dir,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string { return l.dir }

// OnReadyChange registers fn to run when data becomes available or unavailable.
// Callbacks run in registration order while the loader lock is held.
func (l *Loader) OnReadyChange(fn func(ready bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReady = append(l.onReady, fn)
}

// Run loads the datasets, retrying with backoff until the first load succeeds
// or the context is cancelled.
func (l *Loader) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		err := l.Reload()
		if err == nil {
			return nil
		}
		l.logger.Error("dataset load failed, retrying", "error", err, "dir", l.dir, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			l.logger.Info("dataset loader stopping", "reason", ctx.Err())
			return nil
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// Reload reads the datasets once. On failure the previous snapshot, if any,
// stays in place.
func (l *Loader) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	snap, err := Load(l.dir)
	if err != nil {
		l.metrics.DatasetReloads.WithLabelValues("error").Inc()
		if _, getErr := l.store.Get(); getErr != nil {
			l.transition(readinessUnavailable)
		}
		return err
	}

	l.store.Set(snap)
	l.metrics.DatasetReloads.WithLabelValues("success").Inc()
	l.metrics.DatasetReady.Set(1)
	l.logger.Info("datasets loaded",
		"dir", l.dir,
		"zips", len(snap.ZipList),
		"address_points", len(snap.AddressPoints),
		"duration", time.Since(start),
	)
	l.transition(readinessReady)
	return nil
}

func (l *Loader) transition(next readiness) {
	if l.state == next {
		return
	}
	l.state = next
	ready := next == readinessReady
	for _, fn := range l.onReady {
		fn(ready)
	}
}
