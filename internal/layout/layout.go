// Package layout projects a template's visible components onto render
// geometry for one of the three layout modes.
package layout

import (
	"errors"
	"sort"

	"github.com/tinytelemetry/canopy/internal/model"
)

// ErrEmptySelection is returned when no component survives filtering, so the
// caller can show guidance instead of an empty grid.
var ErrEmptySelection = errors.New("layout: no visible components")

const (
	GridColumns     = 24
	MinGridSpan     = 6
	RowHeightPx     = 60
	MinItemWidthPx  = 300
	MinItemHeightPx = 200
	MinCanvasPx     = 600

	fullRowThreshold = 6
	fullRowBasis     = "100%"
	halfRowBasis     = "45%"
)

// Item is one positioned component. Only the fields of the layout's mode are
// set.
type Item struct {
	Component model.ComponentConfig `json:"component"`
	Chart     model.ChartKind       `json:"chart"`

	// grid
	Span int `json:"span,omitempty"`

	// flex
	Basis   string `json:"basis,omitempty"`
	FullRow bool   `json:"fullRow,omitempty"`

	// custom: Left and Width are percentages of the canvas width.
	Left     float64 `json:"left,omitempty"`
	Width    float64 `json:"width,omitempty"`
	TopPx    int     `json:"topPx,omitempty"`
	HeightPx int     `json:"heightPx,omitempty"`
}

// Layout is the resolved geometry for a template.
type Layout struct {
	Mode  model.LayoutMode `json:"mode"`
	Items []Item           `json:"items"`

	Columns           int `json:"columns,omitempty"`           // grid
	MinItemWidthPx    int `json:"minItemWidthPx,omitempty"`    // flex
	MinItemHeightPx   int `json:"minItemHeightPx,omitempty"`   // custom
	CanvasMinHeightPx int `json:"canvasMinHeightPx,omitempty"` // custom
}

// Resolve keeps the components whose visible flag is set and whose kind is in
// visible, then lays them out by the template's mode. Unknown modes are laid
// out as grid.
func Resolve(t model.Template, visible []model.ComponentKind) (Layout, error) {
	allowed := make(map[model.ComponentKind]bool, len(visible))
	for _, k := range visible {
		allowed[k] = true
	}

	var items []Item
	for _, c := range t.Config.Components {
		if !c.Visible || !allowed[c.Kind] {
			continue
		}
		chart, ok := c.Kind.Chart()
		if !ok {
			continue
		}
		items = append(items, Item{Component: c, Chart: chart})
	}
	if len(items) == 0 {
		return Layout{Mode: t.Config.Layout}, ErrEmptySelection
	}

	switch t.Config.Layout {
	case model.LayoutFlex:
		return flex(items), nil
	case model.LayoutCustom:
		return custom(items), nil
	default:
		return grid(items), nil
	}
}

func grid(items []Item) Layout {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Component.Position, items[j].Component.Position
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	for i := range items {
		items[i].Span = min(GridColumns, max(MinGridSpan, items[i].Component.Position.W))
	}
	return Layout{Mode: model.LayoutGrid, Items: items, Columns: GridColumns}
}

func flex(items []Item) Layout {
	for i := range items {
		if items[i].Component.Position.W > fullRowThreshold {
			items[i].FullRow = true
			items[i].Basis = fullRowBasis
		} else {
			items[i].Basis = halfRowBasis
		}
	}
	return Layout{Mode: model.LayoutFlex, Items: items, MinItemWidthPx: MinItemWidthPx}
}

func custom(items []Item) Layout {
	for i := range items {
		p := items[i].Component.Position
		items[i].Left = float64(p.X) / model.GridUnits * 100
		items[i].Width = float64(p.W) / model.GridUnits * 100
		items[i].TopPx = p.Y * RowHeightPx
		items[i].HeightPx = p.H * RowHeightPx
	}
	return Layout{
		Mode:              model.LayoutCustom,
		Items:             items,
		MinItemHeightPx:   MinItemHeightPx,
		CanvasMinHeightPx: MinCanvasPx,
	}
}

// Kinds returns the chart kinds of the resolved items, without duplicates.
func (l Layout) Kinds() []model.ChartKind {
	seen := make(map[model.ChartKind]bool, len(l.Items))
	var out []model.ChartKind
	for _, it := range l.Items {
		if !seen[it.Chart] {
			seen[it.Chart] = true
			out = append(out, it.Chart)
		}
	}
	return out
}
