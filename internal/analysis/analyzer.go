package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shyim/vitals-dashboard/internal/impact"
	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/synthetic"
	"github.com/shyim/vitals-dashboard/internal/vitals"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Result is what the dashboard renders for one (url, device) pair. Results
// are shared between callers and must not be modified.
type Result struct {
	ID               string                     `json:"id"`
	URL              string                     `json:"url"`
	Device           models.Device              `json:"device"`
	Outcome          OutcomeKind                `json:"outcome"`
	Source           string                     `json:"source"`
	Reason           Kind                       `json:"reason,omitempty"`
	Notice           string                     `json:"notice,omitempty"`
	PerformanceScore *int                       `json:"performanceScore,omitempty"`
	Metrics          []models.PerformanceMetric `json:"metrics"`
	History          models.HistoricalSeries    `json:"historicalData"`
	BusinessImpacts  []models.BusinessImpact    `json:"businessImpacts"`
	Recommendations  []models.Recommendation    `json:"recommendations"`
	LastUpdated      time.Time                  `json:"lastUpdated"`
	Cached           bool                       `json:"cached"`
	Stale            bool                       `json:"stale"`
}

// Archiver stores a snapshot of every fresh result.
type Archiver interface {
	SaveReport(ctx context.Context, id string, v any) error
}

type Options struct {
	// Timeout bounds one resolution, retries included.
	Timeout time.Duration
	// StaleTime is how long a result is served from cache.
	StaleTime time.Duration
	// GCTime is how long a result is kept at all; a failed refresh falls
	// back to a result younger than this.
	GCTime   time.Duration
	History  *synthetic.Generator
	Archiver Archiver
	Logger   *zap.Logger
	Now      func() time.Time
}

type entry struct {
	state     State
	result    *Result
	fetchedAt time.Time
	// start time of the flight that produced result
	appliedStart time.Time
	err          *Error
}

type Analyzer struct {
	sources   []Source
	timeout   time.Duration
	staleTime time.Duration
	gcTime    time.Duration
	history   *synthetic.Generator
	archiver  Archiver
	logger    *zap.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	// generation is bumped by Reset; flights started under an older
	// generation do not touch the cache.
	generation uint64
}

func NewAnalyzer(sources []Source, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.StaleTime <= 0 {
		opts.StaleTime = 15 * time.Minute
	}
	if opts.GCTime < opts.StaleTime {
		opts.GCTime = opts.StaleTime
	}
	if opts.History == nil {
		opts.History = synthetic.NewGenerator()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Analyzer{
		sources:   sources,
		timeout:   opts.Timeout,
		staleTime: opts.StaleTime,
		gcTime:    opts.GCTime,
		history:   opts.History,
		archiver:  opts.Archiver,
		logger:    opts.Logger,
		now:       opts.Now,
		entries:   make(map[string]*entry),
	}
}

// Analyze returns the analysis for req. Fresh cached results are returned
// without a fetch unless req.Refresh is set. Concurrent calls for the same
// key share one resolution. The returned error is an *Error for failed
// resolutions, ErrInvalidURL or ErrInvalidDevice for bad input, or the caller's context error.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	u, err := NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}
	req.URL = u
	if !req.Device.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidDevice, req.Device)
	}

	key := req.Key()
	if !req.Refresh {
		if res, ok := a.fresh(key); ok {
			return res, nil
		}
	}

	a.markLoading(key)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.run(ctx, req)
	})

	select {
	case <-ctx.Done():
		// the flight keeps running and still updates the cache
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (a *Analyzer) run(ctx context.Context, req Request) (*Result, error) {
	started := a.now()
	gen := a.currentGeneration()

	// One caller leaving must not cancel the shared flight.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	fctx, span := tracer.Start(fctx, "analysis.Resolve", trace.WithAttributes(
		attribute.String("vitals.url", req.URL),
		attribute.String("vitals.device", string(req.Device)),
		attribute.Bool("vitals.refresh", req.Refresh),
	))
	defer span.End()

	out := Resolve(fctx, a.sources, req)
	span.SetAttributes(
		attribute.String("vitals.outcome", string(out.Kind)),
		attribute.String("vitals.source", out.Source),
	)

	fields := []zap.Field{
		zap.String("url", req.URL),
		zap.String("device", string(req.Device)),
		zap.String("source", out.Source),
	}

	if out.Kind == OutcomeError {
		span.SetStatus(codes.Error, out.Reason.Error())
		a.logger.Warn("analysis failed", append(fields, zap.String("kind", string(out.Reason.Kind)), zap.Error(out.Reason))...)
		return a.fail(req, out.Reason, gen)
	}
	if out.Reason != nil {
		a.logDegraded(out.Reason, fields)
	}

	res := a.build(req, out)
	if !a.store(req.Key(), res, started, gen) {
		a.logger.Debug("discarding superseded analysis result", fields...)
		return res, nil
	}
	a.archive(ctx, res)

	a.logger.Info("analysis completed",
		append(fields, zap.String("outcome", string(out.Kind)), zap.Int("metrics", len(res.Metrics)))...)
	return res, nil
}

func (a *Analyzer) logDegraded(reason *Error, fields []zap.Field) {
	fields = append(fields, zap.String("kind", string(reason.Kind)))
	switch reason.Kind {
	case KindCredentialMissing:
		a.logger.Debug("no api key configured, using synthetic data", fields...)
	case KindCredentialInvalid:
		a.logger.Info("placeholder api key configured, using synthetic data", fields...)
	default:
		a.logger.Warn("pagespeed unavailable, using synthetic data", append(fields, zap.Error(reason))...)
		sentry.CaptureException(reason)
	}
}

func (a *Analyzer) build(req Request, out Outcome) *Result {
	metrics := vitals.Normalize(out.Report)
	recs := impact.Recommend(metrics)
	if recs == nil {
		recs = []models.Recommendation{}
	}

	res := &Result{
		ID:              uuid.NewString(),
		URL:             req.URL,
		Device:          req.Device,
		Outcome:         out.Kind,
		Source:          out.Source,
		Metrics:         metrics,
		History:         a.history.GenerateHistory(out.Report),
		BusinessImpacts: impact.Estimate(metrics),
		Recommendations: recs,
		LastUpdated:     a.now(),
	}
	if score, ok := out.Report.PerformanceScore(); ok {
		res.PerformanceScore = &score
	}
	if out.Reason != nil {
		res.Reason = out.Reason.Kind
		if out.Reason.Surfaced() {
			res.Notice = out.Reason.UserMessage(req.Device)
		}
	}
	return res
}

func (a *Analyzer) archive(ctx context.Context, res *Result) {
	if a.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := a.archiver.SaveReport(actx, res.ID, res); err != nil {
		a.logger.Warn("failed to archive report", zap.String("id", res.ID), zap.Error(err))
	}
}

func (a *Analyzer) fresh(key string) (*Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok || e.result == nil || a.now().Sub(e.fetchedAt) >= a.staleTime {
		return nil, false
	}
	res := *e.result
	res.Cached = true
	return &res, true
}

func (a *Analyzer) markLoading(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	e.state = StateLoading
}

func (a *Analyzer) currentGeneration() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// store applies res unless a flight that started later already did or the
// cache was reset since the flight started. It reports whether res was kept.
func (a *Analyzer) store(key string, res *Result, started time.Time, gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return false
	}

	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	if e.appliedStart.After(started) {
		return false
	}
	e.state = StateSuccess
	e.result = res
	e.fetchedAt = res.LastUpdated
	e.appliedStart = started
	e.err = nil
	return true
}

// fail records the error and serves the previous result when it is still
// within the gc window. A flight from before the last reset records nothing.
func (a *Analyzer) fail(req Request, reason *Error, gen uint64) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.generation {
		return nil, reason
	}

	key := req.Key()
	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	e.state = StateError
	e.err = reason

	if e.result == nil || a.now().Sub(e.fetchedAt) >= a.gcTime {
		return nil, reason
	}
	res := *e.result
	res.Stale = true
	res.Cached = true
	res.Reason = reason.Kind
	res.Notice = reason.UserMessage(req.Device)
	return &res, nil
}

// State reports the request state and last update for a (url, device) pair.
func (a *Analyzer) State(rawURL string, device models.Device) (State, *time.Time) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return StateIdle, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[Request{URL: u, Device: device}.Key()]
	if !ok {
		return StateIdle, nil
	}
	if e.result == nil {
		return e.state, nil
	}
	updated := e.result.LastUpdated
	return e.state, &updated
}

// Purge drops idle entries older than the gc window and returns how many
// were removed.
func (a *Analyzer) Purge() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	removed := 0
	for key, e := range a.entries {
		if e.state == StateLoading {
			continue
		}
		if e.result == nil || now.Sub(e.fetchedAt) >= a.gcTime {
			delete(a.entries, key)
			removed++
		}
	}
	return removed
}

// Reset forgets every cached result, e.g. after the credential changed.
// Flights still running are detached: later requests start new ones and
// their results are dropped.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.generation++
	for key, e := range a.entries {
		if e.state == StateLoading {
			a.group.Forget(key)
		}
		delete(a.entries, key)
	}
}
