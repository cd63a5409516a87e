// Package dashboard ties the template repository, the visibility set and the
// chart cache together for a UI driver.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/layout"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/templates"
	"github.com/tinytelemetry/canopy/internal/visibility"
	"go.uber.org/zap"
)

// OverviewName is the name of the built-in all-charts view.
const OverviewName = "Overview"

const emptyGuidance = "No charts are visible. Enable a chart kind or select a template that uses chart components."

// Options wires an Engine.
type Options struct {
	Repository      *templates.Repository
	Visibility      *visibility.Set
	Cache           *charts.Cache
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

// Engine is the dashboard state machine shared by the HTTP API and the TUI.
type Engine struct {
	repo   *templates.Repository
	vis    *visibility.Set
	cache  *charts.Cache
	logger *zap.Logger

	mu       sync.Mutex
	selected int64 // 0 means the overview
	interval time.Duration
	paused   bool
}

// New validates opts and returns an engine showing the overview.
func New(opts Options) (*Engine, error) {
	if opts.Repository == nil || opts.Visibility == nil || opts.Cache == nil {
		return nil, errors.New("dashboard: repository, visibility and cache are required")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = model.DefaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		repo:     opts.Repository,
		vis:      opts.Visibility,
		cache:    opts.Cache,
		logger:   opts.Logger.Named("dashboard"),
		interval: opts.RefreshInterval,
	}, nil
}

// Overview returns the built-in view holding one grid cell per chart kind.
func Overview() model.Template {
	t := model.NewTemplateDraft()
	t.Name = OverviewName
	t.Description = "All chart kinds"
	t.Preview = "overview"
	for i, kind := range model.VisibilityKinds() {
		c := model.NewComponent(fmt.Sprintf("overview-%s", kind), kind, 0)
		chart, _ := kind.Chart()
		c.Title = chart.Title()
		c.Position = model.Position{X: (i % 2) * 6, Y: (i / 2) * 4, W: 6, H: 4}
		t.Config.Components = append(t.Config.Components, c)
	}
	return t
}

// SelectTemplate makes the template with id current and shows exactly the
// chart kinds it uses. A visibility persistence failure is returned but the
// selection still takes effect.
func (e *Engine) SelectTemplate(ctx context.Context, id int64) (model.Template, error) {
	t, err := e.repo.Get(ctx, id)
	if err != nil {
		return model.Template{}, err
	}

	e.mu.Lock()
	e.selected = id
	e.mu.Unlock()

	e.logger.Info("template selected", zap.Int64("id", id), zap.String("name", t.Name))
	if err := e.vis.SetExact(t.ComponentKinds()); err != nil {
		return t, err
	}
	return t, nil
}

// SelectOverview returns to the overview and makes every chart kind visible.
func (e *Engine) SelectOverview() error {
	e.mu.Lock()
	e.selected = 0
	e.mu.Unlock()
	return e.vis.ToggleAll(true)
}

// Selected returns the id of the current template, or 0 for the overview.
func (e *Engine) Selected() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// current loads the selected template. A template deleted since selection
// falls back to the overview.
func (e *Engine) current(ctx context.Context) (model.Template, error) {
	id := e.Selected()
	if id == 0 {
		return Overview(), nil
	}
	t, err := e.repo.Get(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		e.logger.Warn("selected template no longer exists", zap.Int64("id", id))
		e.mu.Lock()
		if e.selected == id {
			e.selected = 0
		}
		e.mu.Unlock()
		return Overview(), nil
	}
	return t, err
}

// RefreshState describes the polling loop.
type RefreshState struct {
	Running  bool          `json:"running"`
	Paused   bool          `json:"paused"`
	Interval time.Duration `json:"interval"`
	Loading  bool          `json:"loading"`
}

// Frame is everything a renderer needs for one paint.
type Frame struct {
	TemplateID   int64              `json:"templateId"`
	TemplateName string             `json:"templateName"`
	Theme        model.Theme        `json:"theme"`
	Layout       layout.Layout      `json:"layout"`
	Charts       []charts.ChartView `json:"charts"` // aligned with Layout.Items
	Empty        bool               `json:"empty"`
	Guidance     string             `json:"guidance,omitempty"`
	Visibility   visibility.Stats   `json:"visibility"`
	Refresh      RefreshState       `json:"refresh"`
}

// Render resolves the current template against the visible kinds and pairs
// every item with its cached chart.
func (e *Engine) Render(ctx context.Context) (Frame, error) {
	t, err := e.current(ctx)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		TemplateID:   t.ID,
		TemplateName: t.Name,
		Theme:        t.Config.Theme,
		Visibility:   e.vis.Stats(),
		Refresh:      e.RefreshState(),
	}

	l, err := layout.Resolve(t, e.vis.VisibleKinds())
	if errors.Is(err, layout.ErrEmptySelection) {
		f.Layout = l
		f.Empty = true
		f.Guidance = emptyGuidance
		return f, nil
	}
	if err != nil {
		return Frame{}, err
	}

	f.Layout = l
	f.Charts = make([]charts.ChartView, len(l.Items))
	for i, it := range l.Items {
		f.Charts[i] = e.cache.View(it.Chart)
	}
	return f, nil
}

// StartRefresh fetches every chart once and then polls at the current
// interval.
func (e *Engine) StartRefresh(ctx context.Context) error {
	e.cache.FetchAll(ctx)
	return e.ResumeRefresh()
}

// RefreshNow runs one batch round outside the polling loop.
func (e *Engine) RefreshNow(ctx context.Context) charts.Round {
	return e.cache.FetchAll(ctx)
}

// RefreshKind refreshes a single chart kind.
func (e *Engine) RefreshKind(ctx context.Context, kind model.ChartKind) (charts.Result, error) {
	if !kind.Valid() {
		return charts.Result{}, fmt.Errorf("%w: unknown chart kind %q", model.ErrInvalid, kind)
	}
	return e.cache.FetchSingle(ctx, kind), nil
}

// SetRefreshInterval changes the polling interval. A running poll is stopped
// and restarted.
func (e *Engine) SetRefreshInterval(d time.Duration) error {
	ms := int(d / time.Millisecond)
	if ms < model.MinRefreshIntervalMs || ms > model.MaxRefreshIntervalMs {
		return fmt.Errorf("%w: refresh interval %s outside [%dms, %dms]",
			model.ErrInvalid, d, model.MinRefreshIntervalMs, model.MaxRefreshIntervalMs)
	}

	e.mu.Lock()
	e.interval = d
	paused := e.paused
	e.mu.Unlock()

	if paused || !e.cache.Polling() {
		return nil
	}
	e.cache.StopPolling()
	e.logger.Info("refresh interval changed", zap.Duration("interval", d))
	return e.cache.StartPolling(d)
}

// PauseRefresh stops polling until ResumeRefresh.
func (e *Engine) PauseRefresh() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.cache.StopPolling()
}

// ResumeRefresh starts polling at the current interval.
func (e *Engine) ResumeRefresh() error {
	e.mu.Lock()
	e.paused = false
	d := e.interval
	e.mu.Unlock()
	return e.cache.StartPolling(d)
}

// RefreshState reports the polling loop state.
func (e *Engine) RefreshState() RefreshState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RefreshState{
		Running:  e.cache.Polling(),
		Paused:   e.paused,
		Interval: e.interval,
		Loading:  e.cache.Loading(),
	}
}

// Repository exposes the template repository.
func (e *Engine) Repository() *templates.Repository { return e.repo }

// Visibility exposes the visibility set.
func (e *Engine) Visibility() *visibility.Set { return e.vis }

// Cache exposes the chart cache.
func (e *Engine) Cache() *charts.Cache { return e.cache }
