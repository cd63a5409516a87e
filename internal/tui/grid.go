package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/layout"
	"github.com/tinytelemetry/canopy/internal/model"
)

const minCardHeight = 5

type card struct {
	item  layout.Item
	view  charts.ChartView
	width int
}

// arrangeRows groups a frame's items into terminal rows following the layout
// mode. Widths are in terminal cells.
func arrangeRows(f dashboard.Frame, width int) [][]card {
	items := f.Layout.Items
	cardAt := func(i, w int) card {
		c := card{item: items[i], width: max(w, 12)}
		if i < len(f.Charts) {
			c.view = f.Charts[i]
		}
		return c
	}

	var rows [][]card
	switch f.Layout.Mode {
	case model.LayoutFlex:
		var row []card
		for i, it := range items {
			if it.FullRow {
				if len(row) > 0 {
					rows = append(rows, row)
					row = nil
				}
				rows = append(rows, []card{cardAt(i, width)})
				continue
			}
			row = append(row, cardAt(i, width/2))
			if len(row) == 2 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}

	case model.LayoutCustom:
		order := make([]int, len(items))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			ia, ib := items[order[a]], items[order[b]]
			if ia.TopPx != ib.TopPx {
				return ia.TopPx < ib.TopPx
			}
			return ia.Left < ib.Left
		})
		top := -1
		for _, i := range order {
			w := int(items[i].Width * float64(width) / 100)
			if items[i].TopPx != top {
				rows = append(rows, nil)
				top = items[i].TopPx
			}
			rows[len(rows)-1] = append(rows[len(rows)-1], cardAt(i, w))
		}

	default:
		cols := f.Layout.Columns
		if cols <= 0 {
			cols = layout.GridColumns
		}
		used := 0
		var row []card
		for i, it := range items {
			if used+it.Span > cols && len(row) > 0 {
				rows = append(rows, row)
				row, used = nil, 0
			}
			row = append(row, cardAt(i, width*it.Span/cols))
			used += it.Span
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// renderLayout draws every chart as a bordered card.
func renderLayout(f dashboard.Frame, width, height int) string {
	rows := arrangeRows(f, width)
	if len(rows) == 0 {
		return ""
	}
	rowHeight := max(height/len(rows), minCardHeight)
	border := themeColor(f.Theme.PrimaryColor)

	rendered := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, renderCard(c, rowHeight, border))
		}
		rendered = append(rendered, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.NewStyle().MaxHeight(height).MaxWidth(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, rendered...))
}

func renderCard(c card, height int, border lipgloss.TerminalColor) string {
	innerW, innerH := c.width-2, height-2

	title := c.item.Component.Title
	if title == "" {
		title = c.item.Chart.Title()
	}

	var body string
	switch {
	case c.view.Payload != "":
		format, size := describePayload(c.view.Payload)
		body = okStyle.Render(fmt.Sprintf("● %s chart · %s", format, formatBytes(size)))
	case c.view.Loading:
		body = renderLoadingPlaceholder(innerW, max(innerH-2, 1))
	case c.view.Error != "":
		body = errorStyle.Render("✗ " + c.view.Error)
	default:
		body = mutedStyle.Render("no data")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		mutedStyle.Render(string(c.item.Chart)),
		body,
	)
	return lipgloss.NewStyle().
		Width(innerW).
		Height(innerH).
		MaxHeight(height).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Render(content)
}

// describePayload returns the image format and decoded size of a data URI.
func describePayload(uri string) (string, int) {
	format := "image"
	rest := uri
	if strings.HasPrefix(uri, "data:image/") {
		rest = strings.TrimPrefix(uri, "data:image/")
		if end := strings.IndexAny(rest, ";,"); end > 0 {
			format = rest[:end]
		}
	}
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		rest = rest[comma+1:]
	}
	return format, len(rest) * 3 / 4
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
