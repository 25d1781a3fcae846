package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/pagespeed"
	"github.com/shyim/vitals-dashboard/internal/synthetic"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeRunner answers with the desktop mock unless a hook is set.
type fakeRunner struct {
	mu    sync.Mutex
	keys  []string
	calls atomic.Int32
	hook  func(ctx context.Context) (*models.PageSpeedResponse, error)
}

func (f *fakeRunner) Run(ctx context.Context, target string, device models.Device, key string) (*models.PageSpeedResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return synthetic.GenerateMock(models.DeviceDesktop), nil
}

func (f *fakeRunner) setHook(h func(ctx context.Context) (*models.PageSpeedResponse, error)) {
	f.mu.Lock()
	f.hook = h
	f.mu.Unlock()
}

type memArchive struct {
	mu  sync.Mutex
	ids []string
}

func (m *memArchive) SaveReport(_ context.Context, id string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

type fixture struct {
	analyzer *Analyzer
	runner   *fakeRunner
	store    *credential.Store
	clock    *clock
	archive  *memArchive
}

func newFixture(t *testing.T, key string, opts Options) *fixture {
	t.Helper()
	store := credential.NewStore(credential.NewMemoryBackend(key))
	require.NoError(t, store.Load(context.Background(), ""))

	f := &fixture{runner: &fakeRunner{}, store: store, clock: newClock(), archive: &memArchive{}}
	opts.Now = f.clock.Now
	opts.History = synthetic.NewSeededGenerator(1, 1)
	opts.Archiver = f.archive
	f.analyzer = NewAnalyzer([]Source{NewPageSpeedSource(f.runner, store), SyntheticSource{}}, opts)
	return f
}

func TestAnalyzeRealData(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})

	res, err := f.analyzer.Analyze(context.Background(), Request{URL: "example.com", Device: models.DeviceDesktop})
	require.NoError(t, err)

	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "pagespeed", res.Source)
	assert.Equal(t, "https://example.com", res.URL)
	assert.Empty(t, res.Notice)
	assert.Len(t, res.Metrics, 4)
	assert.Len(t, res.BusinessImpacts, 4)
	assert.Len(t, res.History.Datasets, 4)
	assert.Empty(t, res.Recommendations)
	require.NotNil(t, res.PerformanceScore)
	assert.Equal(t, 89, *res.PerformanceScore)
	assert.Equal(t, f.clock.Now(), res.LastUpdated)
	assert.False(t, res.Cached)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, []string{res.ID}, f.archive.ids)
}

func TestAnalyzeWithoutCredentialUsesSyntheticSilently(t *testing.T) {
	f := newFixture(t, "", Options{})

	res, err := f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceMobile})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, KindCredentialMissing, res.Reason)
	assert.Equal(t, "synthetic", res.Source)
	assert.Empty(t, res.Notice)
	assert.Equal(t, int32(0), f.runner.calls.Load())

	lcp := models.FindMetric(res.Metrics, models.MetricLCP)
	require.NotNil(t, lcp)
	assert.Equal(t, 3.2, lcp.Value)
}

func TestAnalyzePlaceholderIsSurfaced(t *testing.T) {
	f := newFixture(t, credential.Placeholder, Options{})

	res, err := f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceMobile})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, KindCredentialInvalid, res.Reason)
	assert.Contains(t, res.Notice, "placeholder")
	assert.NotEmpty(t, res.Metrics)
	assert.Equal(t, int32(0), f.runner.calls.Load())
}

func TestAnalyzeNetworkFailureDegradesSilently(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})
	f.runner.setHook(func(context.Context) (*models.PageSpeedResponse, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	res, err := f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceDesktop})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, KindNetworkOrHTTP, res.Reason)
	assert.Empty(t, res.Notice)
	assert.Equal(t, "synthetic", res.Source)
}

func TestAnalyzeTimeout(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{Timeout: 30 * time.Millisecond})
	f.runner.setHook(func(ctx context.Context) (*models.PageSpeedResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	res, err := f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceMobile})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)

	state, _ := f.analyzer.State("https://example.com", models.DeviceMobile)
	assert.Equal(t, StateError, state)
}

func TestAnalyzeServesFreshCache(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{StaleTime: 15 * time.Minute, GCTime: time.Hour})
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	first, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	second, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), f.runner.calls.Load())

	f.clock.Advance(6 * time.Minute)
	third, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, int32(2), f.runner.calls.Load())
}

func TestAnalyzeCacheIsPerDevice(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})

	_, err := f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceDesktop})
	require.NoError(t, err)
	_, err = f.analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceMobile})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.runner.calls.Load())
}

func TestAnalyzeRefreshBypassesCache(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	first, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	req.Refresh = true
	second, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int32(2), f.runner.calls.Load())
}

func TestAnalyzeCoalescesConcurrentRequests(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.runner.setHook(func(context.Context) (*models.PageSpeedResponse, error) {
		once.Do(func() { close(started) })
		<-release
		return synthetic.GenerateMock(models.DeviceDesktop), nil
	})

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.analyzer.Analyze(context.Background(), Request{URL: "example.com", Device: models.DeviceDesktop})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	<-started
	state, _ := f.analyzer.State("example.com", models.DeviceDesktop)
	assert.Equal(t, StateLoading, state)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.runner.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].ID, res.ID)
	}
}

func TestAnalyzeCallerCancelDoesNotCancelFlight(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})
	release := make(chan struct{})
	f.runner.setHook(func(ctx context.Context) (*models.PageSpeedResponse, error) {
		select {
		case <-release:
			return synthetic.GenerateMock(models.DeviceDesktop), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.analyzer.Analyze(ctx, req)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		state, _ := f.analyzer.State(req.URL, req.Device)
		return state == StateSuccess
	}, time.Second, 5*time.Millisecond)

	res, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, OutcomeOK, res.Outcome)
}

func TestAnalyzeRereadsCredentialAtUse(t *testing.T) {
	f := newFixture(t, "", Options{})
	ctx := context.Background()
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	_, err := f.store.Set(ctx, "AIzaFirst")
	require.NoError(t, err)
	_, err = f.analyzer.Analyze(ctx, req)
	require.NoError(t, err)

	_, err = f.store.Set(ctx, "AIzaSecond")
	require.NoError(t, err)
	req.Refresh = true
	_, err = f.analyzer.Analyze(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"AIzaFirst", "AIzaSecond"}, f.runner.keys)
}

func TestAnalyzeFailedRefreshServesStaleResult(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{Timeout: 20 * time.Millisecond, StaleTime: time.Minute, GCTime: time.Hour})
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	first, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	f.runner.setHook(func(ctx context.Context) (*models.PageSpeedResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f.clock.Advance(5 * time.Minute)

	res, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, first.ID, res.ID)
	assert.Equal(t, KindTimeout, res.Reason)
	assert.Contains(t, res.Notice, "timed out")

	f.clock.Advance(2 * time.Hour)
	_, err = f.analyzer.Analyze(context.Background(), req)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	f := newFixture(t, "", Options{})

	_, err := f.analyzer.Analyze(context.Background(), Request{URL: "ftp://example.com", Device: models.DeviceMobile})
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.analyzer.Analyze(context.Background(), Request{URL: "example.com", Device: "tablet"})
	assert.ErrorIs(t, err, ErrInvalidDevice)
}

func TestStateAndPurge(t *testing.T) {
	f := newFixture(t, "", Options{StaleTime: time.Minute, GCTime: 10 * time.Minute})

	state, updated := f.analyzer.State("example.com", models.DeviceMobile)
	assert.Equal(t, StateIdle, state)
	assert.Nil(t, updated)

	_, err := f.analyzer.Analyze(context.Background(), Request{URL: "example.com", Device: models.DeviceMobile})
	require.NoError(t, err)

	state, updated = f.analyzer.State("https://example.com", models.DeviceMobile)
	assert.Equal(t, StateSuccess, state)
	require.NotNil(t, updated)
	assert.Equal(t, f.clock.Now(), *updated)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, f.analyzer.Purge())

	f.clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, f.analyzer.Purge())
	state, _ = f.analyzer.State("example.com", models.DeviceMobile)
	assert.Equal(t, StateIdle, state)
}

func TestResetDropsCache(t *testing.T) {
	f := newFixture(t, "AIzaReal", Options{})
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}

	_, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	f.analyzer.Reset()

	res, err := f.analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), f.runner.calls.Load())
}

// blockFirstCall makes the first runner call wait for release and then fail;
// every later call succeeds at once.
func blockFirstCall(f *fixture) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	var first atomic.Bool
	f.runner.setHook(func(context.Context) (*models.PageSpeedResponse, error) {
		if first.CompareAndSwap(false, true) {
			close(started)
			<-release
			return nil, errors.New("connection reset by peer")
		}
		return synthetic.GenerateMock(models.DeviceDesktop), nil
	})
	return started, release
}

func TestResetDiscardsFlightStartedWithOldCredential(t *testing.T) {
	f := newFixture(t, "AIzaOld", Options{})
	ctx := context.Background()
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}
	started, release := blockFirstCall(f)

	done := make(chan *Result, 1)
	go func() {
		res, err := f.analyzer.Analyze(ctx, req)
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	_, err := f.store.Set(ctx, "AIzaNew")
	require.NoError(t, err)
	f.analyzer.Reset()
	close(release)

	old := <-done
	require.NotNil(t, old)
	assert.Equal(t, "synthetic", old.Source)

	res, err := f.analyzer.Analyze(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, "pagespeed", res.Source)
	assert.Equal(t, []string{"AIzaOld", "AIzaNew"}, f.runner.keys)
	// only the result produced with the new key was archived
	assert.Equal(t, []string{res.ID}, f.archive.ids)
}

func TestRequestAfterResetStartsNewFlight(t *testing.T) {
	f := newFixture(t, "AIzaOld", Options{})
	ctx := context.Background()
	req := Request{URL: "https://example.com", Device: models.DeviceDesktop}
	started, release := blockFirstCall(f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.analyzer.Analyze(ctx, req)
		assert.NoError(t, err)
	}()
	<-started

	_, err := f.store.Set(ctx, "AIzaNew")
	require.NoError(t, err)
	f.analyzer.Reset()

	// must not wait for the blocked flight
	fresh, err := f.analyzer.Analyze(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, fresh.Outcome)

	close(release)
	<-done

	state, _ := f.analyzer.State(req.URL, req.Device)
	assert.Equal(t, StateSuccess, state)

	cached, err := f.analyzer.Analyze(ctx, req)
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, fresh.ID, cached.ID)
	assert.Equal(t, []string{"AIzaOld", "AIzaNew"}, f.runner.keys)
}

func TestAnalyzeRateLimitedPastDeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(synthetic.GenerateMock(models.DeviceMobile))
	}))
	defer srv.Close()

	client := pagespeed.NewClient(pagespeed.Options{Endpoint: srv.URL, RequestsPerSecond: 0.01, Burst: 1})
	store := credential.NewStore(credential.NewMemoryBackend("AIzaReal"))
	require.NoError(t, store.Load(context.Background(), ""))
	analyzer := NewAnalyzer([]Source{NewPageSpeedSource(client, store), SyntheticSource{}}, Options{
		Timeout: 50 * time.Millisecond,
		History: synthetic.NewSeededGenerator(1, 1),
	})

	// spends the only token
	_, err := analyzer.Analyze(context.Background(), Request{URL: "https://example.com", Device: models.DeviceMobile})
	require.NoError(t, err)

	_, err = analyzer.Analyze(context.Background(), Request{URL: "https://example.org", Device: models.DeviceMobile})
	assert.Equal(t, KindTimeout, KindOf(err))
}
