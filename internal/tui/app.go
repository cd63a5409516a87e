package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
)

// snapshotMsg announces that the chart cache applied a new snapshot.
type snapshotMsg struct{}

// App is the top-level Bubble Tea model that routes between pages.
type App struct {
	pages      map[string]Page
	activePage string
	keys       KeyMap
	width      int
	height     int
}

// NewApp creates a new App with the given pages. The first page is the default.
func NewApp(pages ...Page) *App {
	pageMap := make(map[string]Page, len(pages))
	var firstID string
	for i, p := range pages {
		pageMap[p.ID()] = p
		if i == 0 {
			firstID = p.ID()
		}
	}
	return &App{
		pages:      pageMap,
		activePage: firstID,
		keys:       DefaultKeyMap(),
	}
}

// ActivePage returns the ID of the page receiving key input.
func (a *App) ActivePage() string { return a.activePage }

func (a *App) Init() tea.Cmd {
	if p, ok := a.pages[a.activePage]; ok {
		return p.Init()
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil
	case tea.KeyMsg:
		if key.Matches(msg, a.keys.ForceQuit, a.keys.Quit) {
			return a, tea.Quit
		}
	default:
		// Data messages reach every page so hidden pages stay current. Only
		// the active page may navigate.
		var cmds []tea.Cmd
		var nav *PageNav
		for id, p := range a.pages {
			cmd, n := p.Update(msg)
			cmds = append(cmds, cmd)
			if id == a.activePage {
				nav = n
			}
		}
		return a, tea.Batch(append(cmds, a.navigate(nav))...)
	}

	p, ok := a.pages[a.activePage]
	if !ok {
		return a, nil
	}

	cmd, nav := p.Update(msg)
	return a, tea.Batch(cmd, a.navigate(nav))
}

func (a *App) navigate(nav *PageNav) tea.Cmd {
	if nav == nil {
		return nil
	}
	if _, exists := a.pages[nav.PageID]; !exists {
		return nil
	}
	a.activePage = nav.PageID
	return a.pages[a.activePage].Init()
}

func (a *App) View() string {
	if p, ok := a.pages[a.activePage]; ok {
		return p.View(a.width, a.height)
	}
	return "No active page"
}

// Run drives the dashboard until the user quits or ctx is cancelled. Every
// snapshot the chart cache applies triggers a repaint.
func Run(ctx context.Context, engine *dashboard.Engine, opts ...tea.ProgramOption) error {
	app := NewApp(NewDashboardPage(ctx, engine), NewTemplatesPage(ctx, engine))
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(app, opts...)

	unsubscribe := engine.Cache().Subscribe(func(charts.Snapshot) {
		// Send blocks until the event loop reads it; never stall a fetch round.
		go p.Send(snapshotMsg{})
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
