package charts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/scheduler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FeedID is the scheduler feed used for polling.
const FeedID = "chart-images"

// FailurePolicy decides what a failed kind does to its cached payload.
type FailurePolicy string

const (
	// PolicyDrop removes the payload of every kind that failed in a round.
	PolicyDrop FailurePolicy = "drop"
	// PolicyRetain keeps the last good payload of a failed kind.
	PolicyRetain FailurePolicy = "retain"
)

// ParseFailurePolicy maps a config value to a policy. Empty means drop.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyRetain:
		return PolicyRetain, nil
	}
	return "", fmt.Errorf("unknown cache failure policy %q", s)
}

// Result is the outcome of fetching one kind. Exactly one of Payload and Err
// is set.
type Result struct {
	Kind    model.ChartKind
	Payload string
	Err     error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Round is one batch refresh across every chart kind.
type Round struct {
	ID       uuid.UUID
	Started  time.Time
	Finished time.Time
	Results  []Result // in model.ChartKinds order
}

// Succeeded returns the kinds that produced a payload.
func (r Round) Succeeded() []model.ChartKind {
	var out []model.ChartKind
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Kind)
		}
	}
	return out
}

// Failed returns the kinds that failed.
func (r Round) Failed() []model.ChartKind {
	var out []model.ChartKind
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res.Kind)
		}
	}
	return out
}

// Snapshot is an immutable view of the cache. Payloads hold raw extracted
// strings; Errors hold the last failure message of kinds without a fresh
// payload.
type Snapshot struct {
	RoundID   uuid.UUID                  `json:"roundId"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	Payloads  map[model.ChartKind]string `json:"payloads"`
	Errors    map[model.ChartKind]string `json:"errors,omitempty"`
}

// Kinds returns the cached kinds in fetch order.
func (s Snapshot) Kinds() []model.ChartKind {
	out := make([]model.ChartKind, 0, len(s.Payloads))
	for k := range s.Payloads {
		out = append(out, k)
	}
	order := make(map[model.ChartKind]int)
	for i, k := range model.ChartKinds() {
		order[k] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i]] < order[out[j]] })
	return out
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Payloads = make(map[model.ChartKind]string, len(s.Payloads))
	for k, v := range s.Payloads {
		out.Payloads[k] = v
	}
	out.Errors = make(map[model.ChartKind]string, len(s.Errors))
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	return out
}

// ChartView is what the rendering layer receives for one visible chart.
type ChartView struct {
	Kind    model.ChartKind `json:"kind"`
	Payload string          `json:"payload,omitempty"` // normalized data URI
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

// Options configures a Cache.
type Options struct {
	Fetcher   Fetcher
	Extractor Extractor // nil means ExtractPayload
	Policy    FailurePolicy
	// SkipOverlap skips a polling tick while the previous polled round is
	// still running. By default rounds may overlap.
	SkipOverlap bool
	Scheduler   *scheduler.Scheduler
	Logger      *zap.Logger
}

// Cache holds the latest payload per chart kind. Each round replaces the
// snapshot in one step so readers never observe a half-applied round.
type Cache struct {
	fetcher   Fetcher
	extract   Extractor
	policy    FailurePolicy
	skip      bool
	sched     *scheduler.Scheduler
	logger    *zap.Logger
	inFlight  atomic.Int32
	pollBusy  atomic.Bool
	mu        sync.RWMutex
	snap      Snapshot
	subMu     sync.Mutex
	subs      map[int]func(Snapshot)
	nextSubID int
}

// New builds a cache. Fetcher is required; Scheduler is only needed for
// polling.
func New(opts Options) (*Cache, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("charts: fetcher is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = ExtractPayload
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache{
		fetcher: opts.Fetcher,
		extract: opts.Extractor,
		policy:  opts.Policy,
		skip:    opts.SkipOverlap,
		sched:   opts.Scheduler,
		logger:  opts.Logger.Named("charts"),
		snap: Snapshot{
			Payloads: map[model.ChartKind]string{},
			Errors:   map[model.ChartKind]string{},
		},
		subs: map[int]func(Snapshot){},
	}, nil
}

// Policy returns the configured failure policy.
func (c *Cache) Policy() FailurePolicy { return c.policy }

// FetchOne requests one kind and extracts its payload. Failures are returned
// in the Result, never as a panic.
func (c *Cache) FetchOne(ctx context.Context, kind model.ChartKind) (res Result) {
	res.Kind = kind
	defer func() {
		if r := recover(); r != nil {
			res = Result{Kind: kind, Err: fmt.Errorf("%w: %s: panic: %v", model.ErrExtraction, kind, r)}
		}
	}()

	status, body, err := c.fetcher.Fetch(ctx, kind)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", model.ErrNetwork, kind, err)
		return res
	}
	if status < 200 || status > 299 {
		res.Err = fmt.Errorf("%w: %s: status %d", model.ErrNetwork, kind, status)
		return res
	}
	payload, err := c.extract(body)
	if err != nil {
		if errors.Is(err, model.ErrExtraction) {
			res.Err = fmt.Errorf("%s: %w", kind, err)
		} else {
			res.Err = fmt.Errorf("%w: %s: %w", model.ErrExtraction, kind, err)
		}
		return res
	}
	if payload == "" {
		res.Err = fmt.Errorf("%w: %s: empty payload", model.ErrExtraction, kind)
		return res
	}
	res.Payload = payload
	return res
}

// FetchAll fetches every chart kind concurrently and replaces the snapshot
// with the round's outcome. Per-kind failures are reported in the Round and
// never affect other kinds.
func (c *Cache) FetchAll(ctx context.Context) Round {
	round := Round{ID: uuid.New(), Started: time.Now()}
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	kinds := model.ChartKinds()
	round.Results = make([]Result, len(kinds))
	var g errgroup.Group
	for i, kind := range kinds {
		g.Go(func() error {
			round.Results[i] = c.FetchOne(ctx, kind)
			return nil
		})
	}
	_ = g.Wait()
	round.Finished = time.Now()

	c.apply(round)

	log := c.logger.With(zap.String("round", round.ID.String()))
	for _, res := range round.Results {
		if !res.OK() {
			log.Warn("chart fetch failed", zap.String("kind", string(res.Kind)), zap.Error(res.Err))
		}
	}
	log.Debug("chart round applied",
		zap.Int("ok", len(round.Succeeded())),
		zap.Int("failed", len(round.Failed())),
		zap.Duration("took", round.Finished.Sub(round.Started)))
	return round
}

func (c *Cache) apply(round Round) {
	c.mu.Lock()
	next := Snapshot{
		RoundID:   round.ID,
		UpdatedAt: round.Finished,
		Payloads:  make(map[model.ChartKind]string, len(round.Results)),
		Errors:    map[model.ChartKind]string{},
	}
	if c.policy == PolicyRetain {
		for k, v := range c.snap.Payloads {
			next.Payloads[k] = v
		}
	}
	for _, res := range round.Results {
		if res.OK() {
			next.Payloads[res.Kind] = res.Payload
			continue
		}
		next.Errors[res.Kind] = res.Err.Error()
	}
	c.snap = next
	c.mu.Unlock()

	c.notify(next)
}

// FetchSingle refreshes one kind and merges it into the snapshot. A failure
// records the error and keeps the kind's previous payload under either policy.
func (c *Cache) FetchSingle(ctx context.Context, kind model.ChartKind) Result {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	res := c.FetchOne(ctx, kind)

	c.mu.Lock()
	next := c.snap.clone()
	next.UpdatedAt = time.Now()
	if res.OK() {
		next.Payloads[kind] = res.Payload
		delete(next.Errors, kind)
	} else {
		next.Errors[kind] = res.Err.Error()
	}
	c.snap = next
	c.mu.Unlock()

	if !res.OK() {
		c.logger.Warn("chart fetch failed", zap.String("kind", string(kind)), zap.Error(res.Err))
	}
	c.notify(next)
	return res
}

// StartPolling runs FetchAll every interval, replacing any running poll.
func (c *Cache) StartPolling(interval time.Duration) error {
	if c.sched == nil {
		return fmt.Errorf("charts: no scheduler configured")
	}
	return c.sched.Start(FeedID, interval, c.tick)
}

// StopPolling cancels the poll timer. Rounds already in flight still apply
// their results. It reports whether polling was active.
func (c *Cache) StopPolling() bool {
	if c.sched == nil {
		return false
	}
	return c.sched.Stop(FeedID)
}

// Polling reports whether the poll timer is active.
func (c *Cache) Polling() bool {
	return c.sched != nil && c.sched.Running(FeedID)
}

func (c *Cache) tick(ctx context.Context) {
	if c.skip {
		if !c.pollBusy.CompareAndSwap(false, true) {
			c.logger.Debug("skipping tick, previous round in flight")
			return
		}
		defer c.pollBusy.Store(false)
	}
	c.FetchAll(ctx)
}

// Loading reports whether any fetch is in flight.
func (c *Cache) Loading() bool {
	return c.inFlight.Load() > 0
}

// Snapshot returns a copy of the current snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.clone()
}

// Payload returns the raw cached payload for kind.
func (c *Cache) Payload(kind model.ChartKind) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.snap.Payloads[kind]
	return p, ok
}

// View returns the render tuple for kind.
func (c *Cache) View(kind model.ChartKind) ChartView {
	c.mu.RLock()
	payload, ok := c.snap.Payloads[kind]
	errMsg := c.snap.Errors[kind]
	c.mu.RUnlock()

	v := ChartView{Kind: kind, Error: errMsg}
	if ok {
		v.Payload = Normalize(payload)
	} else {
		v.Loading = c.Loading()
	}
	return v
}

// Subscribe registers fn to be called with every applied snapshot. The
// returned function unregisters it.
func (c *Cache) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) notify(s Snapshot) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(s.clone())
	}
}
