package charts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/scheduler"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFetcher answers per kind. Kinds listed in fail return a transport
// error; others return a JSON body carrying "<prefix>-<kind>".
type fakeFetcher struct {
	mu     sync.Mutex
	prefix string
	fail   map[model.ChartKind]bool
	status map[model.ChartKind]int
	calls  atomic.Int32
}

func (f *fakeFetcher) set(prefix string, fail ...model.ChartKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefix = prefix
	f.fail = map[model.ChartKind]bool{}
	for _, k := range fail {
		f.fail[k] = true
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, kind model.ChartKind) (int, string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[kind] {
		return 0, "", errors.New("connection refused")
	}
	if code, ok := f.status[kind]; ok {
		return code, "", nil
	}
	return http.StatusOK, `{"image":"` + f.prefix + "-" + string(kind) + `"}`, nil
}

func newTestCache(t *testing.T, f Fetcher, opts Options) *Cache {
	t.Helper()
	opts.Fetcher = f
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestNewRequiresFetcher(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestFetchOneClassifiesFailures(t *testing.T) {
	f := &fakeFetcher{status: map[model.ChartKind]int{model.ChartEnergy: http.StatusBadGateway}}
	f.set("v1", model.ChartHumidity)
	c := newTestCache(t, f, Options{})
	ctx := context.Background()

	ok := c.FetchOne(ctx, model.ChartTemperature)
	require.True(t, ok.OK())
	assert.Equal(t, "v1-temperature", ok.Payload)

	assert.ErrorIs(t, c.FetchOne(ctx, model.ChartHumidity).Err, model.ErrNetwork)
	assert.ErrorIs(t, c.FetchOne(ctx, model.ChartEnergy).Err, model.ErrNetwork)

	empty := newTestCache(t, FetcherFunc(func(context.Context, model.ChartKind) (int, string, error) {
		return http.StatusOK, `{"status":"ok"}`, nil
	}), Options{})
	assert.ErrorIs(t, empty.FetchOne(ctx, model.ChartAirflow).Err, model.ErrExtraction)
}

func TestFetchOneRecoversExtractorPanic(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{Extractor: func(string) (string, error) { panic("boom") }})

	res := c.FetchOne(context.Background(), model.ChartTemperature)
	assert.ErrorIs(t, res.Err, model.ErrExtraction)
}

func TestCustomExtractorErrorsAreExtractionErrors(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{Extractor: func(string) (string, error) { return "", errors.New("nope") }})

	res := c.FetchOne(context.Background(), model.ChartTemperature)
	assert.ErrorIs(t, res.Err, model.ErrExtraction)
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{})
	ctx := context.Background()

	round := c.FetchAll(ctx)
	require.Len(t, round.Results, 6)
	assert.Len(t, c.Snapshot().Payloads, 6)

	f.set("v2", model.ChartHumidity, model.ChartSystemStatus)
	round = c.FetchAll(ctx)

	assert.ElementsMatch(t, []model.ChartKind{model.ChartHumidity, model.ChartSystemStatus}, round.Failed())
	snap := c.Snapshot()
	assert.Equal(t, []model.ChartKind{
		model.ChartTemperature, model.ChartEnergy, model.ChartEnergyPie, model.ChartAirflow,
	}, snap.Kinds())
	_, cached := snap.Payloads[model.ChartHumidity]
	assert.False(t, cached, "failed kind is dropped even though it was cached before")
	assert.Equal(t, "v2-energy", snap.Payloads[model.ChartEnergy])
	assert.Contains(t, snap.Errors[model.ChartHumidity], "connection refused")
	assert.Equal(t, round.ID, snap.RoundID)
}

func TestFetchAllRetainPolicyKeepsLastGood(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{Policy: PolicyRetain})
	ctx := context.Background()

	c.FetchAll(ctx)
	f.set("v2", model.ChartHumidity)
	c.FetchAll(ctx)

	snap := c.Snapshot()
	assert.Len(t, snap.Payloads, 6)
	assert.Equal(t, "v1-humidity", snap.Payloads[model.ChartHumidity])
	assert.Equal(t, "v2-temperature", snap.Payloads[model.ChartTemperature])
	assert.NotEmpty(t, snap.Errors[model.ChartHumidity])
}

func TestFetchSingleMergesOneKind(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{})
	ctx := context.Background()
	c.FetchAll(ctx)

	f.set("v2")
	res := c.FetchSingle(ctx, model.ChartAirflow)
	require.True(t, res.OK())

	snap := c.Snapshot()
	assert.Equal(t, "v2-airflow", snap.Payloads[model.ChartAirflow])
	assert.Equal(t, "v1-energy", snap.Payloads[model.ChartEnergy])

	f.set("v3", model.ChartAirflow)
	res = c.FetchSingle(ctx, model.ChartAirflow)
	require.False(t, res.OK())
	payload, ok := c.Payload(model.ChartAirflow)
	assert.True(t, ok)
	assert.Equal(t, "v2-airflow", payload)
	assert.NotEmpty(t, c.View(model.ChartAirflow).Error)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{})
	c.FetchAll(context.Background())

	snap := c.Snapshot()
	snap.Payloads[model.ChartEnergy] = "mutated"
	p, _ := c.Payload(model.ChartEnergy)
	assert.Equal(t, "v1-energy", p)
}

func TestViewNormalizesPayload(t *testing.T) {
	c := newTestCache(t, FetcherFunc(func(context.Context, model.ChartKind) (int, string, error) {
		return http.StatusOK, `"/9j/4AAQSkZJRg"`, nil
	}), Options{})

	v := c.View(model.ChartTemperature)
	assert.Empty(t, v.Payload)
	assert.False(t, v.Loading)

	c.FetchAll(context.Background())
	v = c.View(model.ChartTemperature)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4AAQSkZJRg", v.Payload)
	assert.False(t, v.Loading)
	assert.Empty(t, v.Error)
}

func TestViewReportsLoadingDuringFirstRound(t *testing.T) {
	release := make(chan struct{})
	c := newTestCache(t, FetcherFunc(func(context.Context, model.ChartKind) (int, string, error) {
		<-release
		return http.StatusOK, `"QUJD"`, nil
	}), Options{})

	done := make(chan struct{})
	go func() {
		c.FetchAll(context.Background())
		close(done)
	}()

	require.Eventually(t, c.Loading, time.Second, time.Millisecond)
	assert.True(t, c.View(model.ChartEnergy).Loading)
	close(release)
	<-done
	assert.False(t, c.View(model.ChartEnergy).Loading)
}

func TestSubscribeReceivesAppliedSnapshots(t *testing.T) {
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{})

	var got []Snapshot
	unsubscribe := c.Subscribe(func(s Snapshot) { got = append(got, s) })
	c.FetchAll(context.Background())
	unsubscribe()
	c.FetchAll(context.Background())

	require.Len(t, got, 1)
	assert.Len(t, got[0].Payloads, 6)
}

func TestOverlappingRoundsLastFinisherWins(t *testing.T) {
	release := make(chan struct{})
	var slowStarted sync.WaitGroup
	slowStarted.Add(6)

	var mu sync.Mutex
	label := "old"
	c := newTestCache(t, FetcherFunc(func(context.Context, model.ChartKind) (int, string, error) {
		mu.Lock()
		l := label
		mu.Unlock()
		if l == "old" {
			slowStarted.Done()
			<-release
		}
		return http.StatusOK, `{"image":"` + l + `"}`, nil
	}), Options{})

	slowDone := make(chan Round)
	go func() { slowDone <- c.FetchAll(context.Background()) }()
	slowStarted.Wait()

	mu.Lock()
	label = "new"
	mu.Unlock()
	fast := c.FetchAll(context.Background())
	p, _ := c.Payload(model.ChartEnergy)
	require.Equal(t, "new", p)

	close(release)
	slow := <-slowDone

	// The slower, older round lands last and overwrites newer data.
	p, _ = c.Payload(model.ChartEnergy)
	assert.Equal(t, "old", p)
	assert.Equal(t, slow.ID, c.Snapshot().RoundID)
	assert.NotEqual(t, fast.ID, slow.ID)
}

func TestPollingRefreshesOnInterval(t *testing.T) {
	sched := scheduler.New(nil)
	t.Cleanup(sched.Close)
	f := &fakeFetcher{}
	f.set("v1")
	c := newTestCache(t, f, Options{Scheduler: sched})

	require.NoError(t, c.StartPolling(5*time.Millisecond))
	assert.True(t, c.Polling())
	require.Eventually(t, func() bool { return len(c.Snapshot().Payloads) == 6 }, time.Second, time.Millisecond)

	assert.True(t, c.StopPolling())
	assert.False(t, c.Polling())
	assert.False(t, c.StopPolling())
}

func TestStartPollingWithoutScheduler(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestCache(t, f, Options{})
	assert.Error(t, c.StartPolling(time.Second))
	assert.False(t, c.StopPolling())
}

func TestStragglerAppliesAfterStop(t *testing.T) {
	sched := scheduler.New(nil)
	t.Cleanup(sched.Close)

	release := make(chan struct{})
	started := make(chan struct{}, 64)
	c := newTestCache(t, FetcherFunc(func(context.Context, model.ChartKind) (int, string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return http.StatusOK, `"late"`, nil
	}), Options{Scheduler: sched})

	require.NoError(t, c.StartPolling(2*time.Millisecond))
	<-started
	c.StopPolling()
	assert.Empty(t, c.Snapshot().Payloads)

	close(release)
	require.Eventually(t, func() bool {
		p, ok := c.Payload(model.ChartTemperature)
		return ok && p == "late"
	}, time.Second, time.Millisecond)
	assert.False(t, c.Polling())
}

func TestSkipOverlapSkipsBusyTicks(t *testing.T) {
	sched := scheduler.New(nil)
	t.Cleanup(sched.Close)

	release := make(chan struct{})
	var rounds atomic.Int32
	var started sync.Once
	firstStarted := make(chan struct{})
	c := newTestCache(t, FetcherFunc(func(_ context.Context, kind model.ChartKind) (int, string, error) {
		if kind == model.ChartTemperature {
			rounds.Add(1)
		}
		started.Do(func() { close(firstStarted) })
		<-release
		return http.StatusOK, `"x"`, nil
	}), Options{Scheduler: sched, SkipOverlap: true})

	require.NoError(t, c.StartPolling(2*time.Millisecond))
	<-firstStarted
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), rounds.Load(), "ticks during a running round are skipped")

	c.StopPolling()
	close(release)
	require.Eventually(t, func() bool { return !c.Loading() }, time.Second, time.Millisecond)
}

func TestHTTPFetcherAgainstServer(t *testing.T) {
	var accept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept.Store(r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/api/chart/system_status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":"iVBORw0KGgo"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestCache(t, NewHTTPFetcher(srv.URL+"/", time.Second), Options{})
	round := c.FetchAll(context.Background())

	assert.Equal(t, []model.ChartKind{model.ChartSystemStatus}, round.Succeeded())
	assert.Equal(t, "application/json, */*", accept.Load())
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo", c.View(model.ChartSystemStatus).Payload)
	assert.ErrorIs(t, round.Results[0].Err, model.ErrNetwork)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)
	p, err = ParseFailurePolicy("retain")
	require.NoError(t, err)
	assert.Equal(t, PolicyRetain, p)
	_, err = ParseFailurePolicy("keep")
	assert.Error(t, err)
}
