package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/visibility"
)

// refreshSteps are the intervals the +/- keys cycle through.
var refreshSteps = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// frameMsg carries a freshly rendered frame.
type frameMsg struct {
	frame dashboard.Frame
	err   error
}

// roundMsg reports a manual refresh round.
type roundMsg charts.Round

// DashboardPage shows the selected template's charts next to the visibility
// checklist.
type DashboardPage struct {
	ctx    context.Context
	engine *dashboard.Engine
	keys   KeyMap
	help   help.Model

	frame    dashboard.Frame
	rendered bool
	lastErr  error
	status   string
	cursor   int
	spinning bool
}

// NewDashboardPage creates the dashboard page.
func NewDashboardPage(ctx context.Context, engine *dashboard.Engine) *DashboardPage {
	return &DashboardPage{
		ctx:    ctx,
		engine: engine,
		keys:   DefaultKeyMap(),
		help:   help.New(),
	}
}

func (d *DashboardPage) ID() string { return PageDashboard }

func (d *DashboardPage) Init() tea.Cmd { return d.renderCmd() }

func (d *DashboardPage) renderCmd() tea.Cmd {
	return func() tea.Msg {
		f, err := d.engine.Render(d.ctx)
		return frameMsg{frame: f, err: err}
	}
}

func (d *DashboardPage) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return roundMsg(d.engine.RefreshNow(d.ctx))
	}
}

func (d *DashboardPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case frameMsg:
		d.lastErr = msg.err
		if msg.err == nil {
			d.frame = msg.frame
			d.rendered = true
		}
		return d.startSpinnerIfNeeded(), nil
	case snapshotMsg:
		return d.renderCmd(), nil
	case SpinnerTickMsg:
		d.spinning = false
		return d.renderCmd(), nil
	case roundMsg:
		r := charts.Round(msg)
		d.status = fmt.Sprintf("refreshed %d/%d charts", len(r.Succeeded()), len(r.Results))
		return d.renderCmd(), nil
	case tea.KeyMsg:
		if key.Matches(msg, d.keys.SwitchPage) {
			return nil, &PageNav{PageID: PageTemplates}
		}
		return d.handleKey(msg), nil
	}
	return nil, nil
}

func (d *DashboardPage) handleKey(msg tea.KeyMsg) tea.Cmd {
	kinds := model.VisibilityKinds()
	switch {
	case key.Matches(msg, d.keys.Help):
		d.help.ShowAll = !d.help.ShowAll
		return nil
	case key.Matches(msg, d.keys.Up):
		if d.cursor > 0 {
			d.cursor--
		}
		return nil
	case key.Matches(msg, d.keys.Down):
		if d.cursor < len(kinds)-1 {
			d.cursor++
		}
		return nil
	case key.Matches(msg, d.keys.Enter):
		return d.toggle(kinds[d.cursor])
	case key.Matches(msg, d.keys.ToggleKind):
		idx := int(msg.String()[0] - '1')
		if idx < 0 || idx >= len(kinds) {
			return nil
		}
		d.cursor = idx
		return d.toggle(kinds[idx])
	case key.Matches(msg, d.keys.ToggleAll):
		all := d.engine.Visibility().Stats().SelectAll()
		d.setErr(d.engine.Visibility().ToggleAll(all != visibility.SelectAll))
		return d.renderCmd()
	case key.Matches(msg, d.keys.Overview):
		d.setErr(d.engine.SelectOverview())
		return d.renderCmd()
	case key.Matches(msg, d.keys.Refresh):
		d.status = "refreshing..."
		return d.refreshCmd()
	case key.Matches(msg, d.keys.Pause):
		return d.togglePause()
	case key.Matches(msg, d.keys.IntervalDown):
		return d.stepInterval(-1)
	case key.Matches(msg, d.keys.IntervalUp):
		return d.stepInterval(1)
	}
	return nil
}

func (d *DashboardPage) toggle(kind model.ComponentKind) tea.Cmd {
	_, err := d.engine.Visibility().Toggle(kind)
	d.setErr(err)
	return d.renderCmd()
}

func (d *DashboardPage) togglePause() tea.Cmd {
	st := d.engine.RefreshState()
	if st.Running {
		d.engine.PauseRefresh()
		d.status = "refresh paused"
	} else {
		d.setErr(d.engine.ResumeRefresh())
		d.status = "refresh resumed"
	}
	return d.renderCmd()
}

// stepInterval moves to the next slower (dir > 0) or faster (dir < 0) step.
func (d *DashboardPage) stepInterval(dir int) tea.Cmd {
	cur := d.engine.RefreshState().Interval
	idx := len(refreshSteps) - 1
	for i, s := range refreshSteps {
		if s >= cur {
			idx = i
			break
		}
	}
	if refreshSteps[idx] == cur || dir < 0 {
		idx += dir
	}
	idx = max(0, min(idx, len(refreshSteps)-1))
	if err := d.engine.SetRefreshInterval(refreshSteps[idx]); err != nil {
		d.setErr(err)
		return nil
	}
	d.status = "refresh every " + refreshSteps[idx].String()
	return d.renderCmd()
}

func (d *DashboardPage) setErr(err error) {
	if err != nil {
		d.lastErr = err
	}
}

// View renders the dashboard.
func (d *DashboardPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing dashboard..."
	}
	if height < 12 || width < 60 {
		return "Terminal too small. Resize to at least 60x12."
	}

	statusLine := d.renderStatusLine(width)
	helpView := mutedStyle.Render(d.help.View(dashboardHelp{d.keys}))
	bodyHeight := height - lipgloss.Height(statusLine) - lipgloss.Height(helpView)

	sidebar := d.renderSidebar(bodyHeight)
	contentWidth := width - lipgloss.Width(sidebar)

	var content string
	if !d.rendered {
		content = renderLoadingPlaceholder(contentWidth, bodyHeight)
	} else {
		content = d.renderContent(contentWidth, bodyHeight)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, body, statusLine, helpView)
}

func (d *DashboardPage) renderContent(width, height int) string {
	f := d.frame
	header := titleStyle.Foreground(themeColor(f.Theme.PrimaryColor)).Render(f.TemplateName) +
		mutedStyle.Render(fmt.Sprintf("  %s layout", f.Layout.Mode))
	gridHeight := height - 1

	if f.Empty {
		guidance := lipgloss.Place(width, gridHeight, lipgloss.Center, lipgloss.Center,
			warnStyle.Render(f.Guidance))
		return lipgloss.JoinVertical(lipgloss.Left, header, guidance)
	}

	grid := renderLayout(f, width, gridHeight)
	return lipgloss.JoinVertical(lipgloss.Left, header, grid)
}

func (d *DashboardPage) renderStatusLine(width int) string {
	st := d.engine.RefreshState()
	var parts []string
	switch {
	case st.Paused:
		parts = append(parts, warnStyle.Render("⏸ paused"))
	case st.Running:
		parts = append(parts, okStyle.Render("● live"))
	default:
		parts = append(parts, mutedStyle.Render("○ idle"))
	}
	parts = append(parts, mutedStyle.Render("every "+st.Interval.String()))
	if st.Loading {
		parts = append(parts, mutedStyle.Render("fetching"))
	}
	if d.status != "" {
		parts = append(parts, d.status)
	}
	if d.lastErr != nil {
		parts = append(parts, errorStyle.Render(d.lastErr.Error()))
	}
	return lipgloss.NewStyle().Width(width).MaxHeight(1).Render(strings.Join(parts, "  "))
}
