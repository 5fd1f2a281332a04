package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lightning-etl/internal/domain"
	"github.com/couchcryptid/lightning-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw upstream response for a feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Enricher parses a response and stamps every feature with its age.
type Enricher interface {
	Enrich(body []byte) (*domain.Document, domain.EnrichStats, error)
}

// StagingWriter persists an enriched document where the loader can read it.
type StagingWriter interface {
	Write(doc *domain.Document, path string) error
}

// Loader replaces a feed's table with the staged document.
type Loader interface {
	Load(ctx context.Context, feed domain.Feed) error
}

// Verifier counts the rows of a loaded table.
type Verifier interface {
	CountRows(ctx context.Context, table string) (int64, error)
}

// Notifier announces a completed table refresh.
type Notifier interface {
	Notify(ctx context.Context, event domain.RefreshEvent) error
}

// Stages wires the steps of a feed run. Verifier and Notifier are optional.
type Stages struct {
	Fetcher  Fetcher
	Enricher Enricher
	Writer   StagingWriter
	Loader   Loader
	Verifier Verifier
	Notifier Notifier
}

// Result is the outcome of one feed run. Err is nil on success and a
// *domain.StageError otherwise.
type Result struct {
	Feed     domain.Feed
	Stats    domain.EnrichStats
	Rows     int64 // -1 unless the load was verified
	LoadedAt time.Time
	Duration time.Duration
	Err      error
}

// OK reports whether the feed was loaded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Runner executes fetch, enrich, stage and load for each feed. Failures are
// logged and recorded, never returned, so one feed cannot affect another.
type Runner struct {
	stages  Stages
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	ready   atomic.Bool

	mu     sync.Mutex
	order  []string
	status map[string]domain.FeedStatus
}

// New creates a Runner. A nil clock uses real time.
func New(stages Stages, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		stages:  stages,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		status:  make(map[string]domain.FeedStatus),
	}
}

// CheckReadiness returns nil once any feed has loaded successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no lightning feed has loaded yet")
	}
	return nil
}

// Status returns the latest outcome per feed, in the order feeds first ran.
func (r *Runner) Status() []domain.FeedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.FeedStatus, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.status[name])
	}
	return out
}

// RunAll runs every feed concurrently and waits for all of them. Results are
// returned in feed order.
func (r *Runner) RunAll(ctx context.Context, feeds []domain.Feed) []Result {
	results := make([]Result, len(feeds))

	var g errgroup.Group
	for i, feed := range feeds {
		g.Go(func() error {
			results[i] = r.Run(ctx, feed)
			return nil
		})
	}
	_ = g.Wait() // Run never returns an error

	return results
}

// Schedule runs all feeds immediately and then on every interval tick until
// ctx is cancelled.
func (r *Runner) Schedule(ctx context.Context, feeds []domain.Feed, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("lightning refresh scheduled", "interval", interval, "feeds", len(feeds))
	for {
		r.RunAll(ctx, feeds)

		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
		}
	}
}

// Run executes one feed: fetch, enrich, write the staging file, load it.
func (r *Runner) Run(ctx context.Context, feed domain.Feed) Result {
	logger := r.logger.With("feed", feed.Name)
	res := Result{Feed: feed, Rows: -1}
	start := r.clock.Now()

	res.Err = r.extractAndLoad(ctx, logger, feed, &res)
	res.Duration = r.clock.Since(start)

	if res.Err == nil {
		r.verify(ctx, logger, &res)
		r.notify(ctx, logger, res)
	}
	r.record(logger, res)
	return res
}

func (r *Runner) extractAndLoad(ctx context.Context, logger *slog.Logger, feed domain.Feed, res *Result) error {
	logger.Info("fetching upstream lightning data", "url", feed.URL)
	var body []byte
	err := r.step(feed, domain.StageFetch, func() (err error) {
		body, err = r.stages.Fetcher.Fetch(ctx, feed.URL)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("got a response", "bytes", len(body))

	logger.Info("parsing and enhancing upstream data")
	var doc *domain.Document
	err = r.step(feed, domain.StageEnrich, func() (err error) {
		doc, res.Stats, err = r.stages.Enricher.Enrich(body)
		return err
	})
	if err != nil {
		return err
	}
	if n := res.Stats.InvalidTimestamps; n > 0 {
		logger.Warn("features without a numeric UTCDATETIME, hoursago set to null",
			"count", n, "features", res.Stats.Features)
		r.metrics.InvalidTimestamps.WithLabelValues(feed.Name).Add(float64(n))
	}

	logger.Info("writing staging GeoJSON", "path", feed.StagingPath, "features", res.Stats.Features)
	err = r.step(feed, domain.StageWrite, func() error {
		return r.stages.Writer.Write(doc, feed.StagingPath)
	})
	if err != nil {
		return err
	}

	logger.Info("importing into PostGIS", "table", feed.Table)
	err = r.step(feed, domain.StageLoad, func() error {
		return r.stages.Loader.Load(ctx, feed)
	})
	if err != nil {
		return err
	}
	res.LoadedAt = r.clock.Now()
	return nil
}

// step runs one stage, timing it and converting errors and panics into a
// *domain.StageError.
func (r *Runner) step(feed domain.Feed, stage domain.Stage, fn func() error) (err error) {
	start := r.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		r.metrics.StageDuration.WithLabelValues(feed.Name, string(stage)).Observe(r.clock.Since(start).Seconds())
		if err != nil {
			err = &domain.StageError{Feed: feed.Name, Stage: stage, Err: err}
		}
	}()
	return fn()
}

// NotifyTimeout bounds a single refresh notification.
const NotifyTimeout = 10 * time.Second

// verify compares the table row count with the staged feature count. A
// failed check is logged only; the load already happened.
func (r *Runner) verify(ctx context.Context, logger *slog.Logger, res *Result) {
	if r.stages.Verifier == nil || res.Feed.Table == "" {
		return
	}
	defer recoverBestEffort(logger, "load verification")

	rows, err := r.stages.Verifier.CountRows(ctx, res.Feed.Table)
	if err != nil {
		logger.Warn("load verification failed", "table", res.Feed.Table, "error", err)
		return
	}
	res.Rows = rows
	if rows != int64(res.Stats.Features) {
		logger.Warn("table row count differs from staged features",
			"table", res.Feed.Table, "rows", rows, "features", res.Stats.Features)
		r.metrics.RowMismatch.WithLabelValues(res.Feed.Name).Inc()
	}
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, res Result) {
	if r.stages.Notifier == nil {
		return
	}
	defer recoverBestEffort(logger, "refresh notification")

	event := domain.RefreshEvent{
		Feed:              res.Feed.Name,
		Table:             res.Feed.Table,
		Features:          res.Stats.Features,
		InvalidTimestamps: res.Stats.InvalidTimestamps,
		Extent:            res.Stats.Extent,
		Newest:            res.Stats.Newest,
		LoadedAt:          res.LoadedAt,
	}
	ctx, cancel := context.WithTimeout(ctx, NotifyTimeout)
	defer cancel()
	if err := r.stages.Notifier.Notify(ctx, event); err != nil {
		logger.Warn("refresh notification failed", "error", err)
	}
}

// recoverBestEffort turns a panic in a post-load step into a warning. Must be
// deferred directly.
func recoverBestEffort(logger *slog.Logger, what string) {
	if p := recover(); p != nil {
		logger.Warn(what+" panicked", "panic", fmt.Sprint(p))
	}
}

// record logs the outcome and updates metrics and status.
func (r *Runner) record(logger *slog.Logger, res Result) {
	name := res.Feed.Name

	if res.Err != nil {
		stage := domain.Stage("unknown")
		var se *domain.StageError
		if errors.As(res.Err, &se) {
			stage = se.Stage
		}
		logger.Error("lightning feed run failed", "stage", stage, "error", res.Err, "duration", res.Duration)
		r.metrics.Runs.WithLabelValues(name, "failure").Inc()
		r.metrics.StageErrors.WithLabelValues(name, string(stage)).Inc()
	} else {
		logger.Info("finished updating lightning data",
			"table", res.Feed.Table,
			"features", res.Stats.Features,
			"duration", res.Duration,
		)
		r.metrics.Runs.WithLabelValues(name, "success").Inc()
		r.metrics.FeaturesLoaded.WithLabelValues(name).Set(float64(res.Stats.Features))
		r.metrics.LastSuccess.WithLabelValues(name).Set(float64(res.LoadedAt.Unix()))
		r.ready.Store(true)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st, seen := r.status[name]
	if !seen {
		r.order = append(r.order, name)
	}
	st.Feed = name
	st.Table = res.Feed.Table
	st.LastRun = r.clock.Now()
	st.Error = ""
	if res.Err != nil {
		st.Error = res.Err.Error()
	} else {
		st.LastSuccess = res.LoadedAt
		st.Features = res.Stats.Features
	}
	r.status[name] = st
}
