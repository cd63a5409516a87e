package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/model"
)

type templatesMsg struct {
	rows []model.Template
	err  error
}

type templateOpMsg struct {
	status string
	err    error
}

type templateSelectedMsg struct {
	template model.Template
	err      error
}

// TemplatesPage lists stored templates and applies one to the dashboard.
type TemplatesPage struct {
	ctx    context.Context
	engine *dashboard.Engine
	keys   KeyMap
	help   help.Model

	rows    []model.Template
	cursor  int
	loaded  bool
	status  string
	lastErr error
}

// NewTemplatesPage creates the template browser page.
func NewTemplatesPage(ctx context.Context, engine *dashboard.Engine) *TemplatesPage {
	return &TemplatesPage{
		ctx:    ctx,
		engine: engine,
		keys:   DefaultKeyMap(),
		help:   help.New(),
	}
}

func (p *TemplatesPage) ID() string { return PageTemplates }

func (p *TemplatesPage) Init() tea.Cmd { return p.loadCmd() }

func (p *TemplatesPage) loadCmd() tea.Cmd {
	return func() tea.Msg {
		rows, err := p.engine.Repository().List(p.ctx)
		return templatesMsg{rows: rows, err: err}
	}
}

// opCmd runs a repository mutation and reports it with status.
func (p *TemplatesPage) opCmd(status string, op func() error) tea.Cmd {
	return func() tea.Msg {
		return templateOpMsg{status: status, err: op()}
	}
}

func (p *TemplatesPage) selected() (model.Template, bool) {
	if p.cursor < 0 || p.cursor >= len(p.rows) {
		return model.Template{}, false
	}
	return p.rows[p.cursor], true
}

func (p *TemplatesPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case templatesMsg:
		p.loaded = true
		if msg.err != nil {
			p.lastErr = msg.err
			return nil, nil
		}
		p.rows = msg.rows
		p.cursor = max(0, min(p.cursor, len(p.rows)-1))
		return nil, nil
	case templateOpMsg:
		p.lastErr = msg.err
		if msg.err == nil {
			p.status = msg.status
		}
		return p.loadCmd(), nil
	case templateSelectedMsg:
		if msg.err != nil {
			p.lastErr = msg.err
			return nil, nil
		}
		p.status = "showing " + msg.template.Name
		return nil, &PageNav{PageID: PageDashboard}
	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return nil, nil
}

func (p *TemplatesPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	repo := p.engine.Repository()
	switch {
	case key.Matches(msg, p.keys.SwitchPage):
		return nil, &PageNav{PageID: PageDashboard}
	case key.Matches(msg, p.keys.Help):
		p.help.ShowAll = !p.help.ShowAll
	case key.Matches(msg, p.keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, p.keys.Down):
		if p.cursor < len(p.rows)-1 {
			p.cursor++
		}
	case key.Matches(msg, p.keys.Overview):
		return func() tea.Msg {
			return templateSelectedMsg{template: dashboard.Overview(), err: p.engine.SelectOverview()}
		}, nil
	}

	t, ok := p.selected()
	if !ok {
		return nil, nil
	}
	switch {
	case key.Matches(msg, p.keys.Enter):
		return func() tea.Msg {
			sel, err := p.engine.SelectTemplate(p.ctx, t.ID)
			return templateSelectedMsg{template: sel, err: err}
		}, nil
	case key.Matches(msg, p.keys.Duplicate):
		return p.opCmd("duplicated "+t.Name, func() error {
			_, err := repo.Duplicate(p.ctx, t.ID, "")
			return err
		}), nil
	case key.Matches(msg, p.keys.ToggleActive):
		return p.opCmd("toggled "+t.Name, func() error {
			return repo.ToggleActive(p.ctx, t.ID)
		}), nil
	case key.Matches(msg, p.keys.Delete):
		return p.opCmd("deleted "+t.Name, func() error {
			return repo.Remove(p.ctx, t.ID)
		}), nil
	}
	return nil, nil
}

// View renders the template list.
func (p *TemplatesPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Initializing dashboard..."
	}
	if !p.loaded {
		return renderLoadingPlaceholder(width, height)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Templates"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d stored", len(p.rows))))
	b.WriteString("\n\n")

	if len(p.rows) == 0 {
		b.WriteString(mutedStyle.Render("No templates yet. Run `canopy templates bootstrap` to load the built-ins."))
		b.WriteString("\n")
	}

	selectedID := p.engine.Selected()
	for i, t := range p.rows {
		state := okStyle.Render("active  ")
		if !t.IsActive {
			state = mutedStyle.Render("inactive")
		}
		marker := "  "
		if t.ID == selectedID {
			marker = "★ "
		}
		swatch := lipgloss.NewStyle().Foreground(themeColor(t.Config.Theme.PrimaryColor)).Render("■")
		line := fmt.Sprintf("%s%s %-28s %s %-6s %2d charts  %s",
			marker, swatch, truncate(t.Name, 28), state, t.Config.Layout,
			len(t.ComponentKinds()), mutedStyle.Render(truncate(t.Description, 40)))
		if i == p.cursor {
			line = cursorStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	status := p.status
	if p.lastErr != nil {
		status = errorStyle.Render(p.lastErr.Error())
	}
	helpView := mutedStyle.Render(p.help.View(templatesHelp{p.keys}))
	list := lipgloss.NewStyle().
		Width(width).
		Height(max(height-1-lipgloss.Height(helpView), 1)).
		Render(b.String())
	return lipgloss.JoinVertical(lipgloss.Left, list, status, helpView)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
