package model

import (
	"maps"
	"slices"
	"time"
)

// LayoutMode selects the positioning algorithm used to render a template.
type LayoutMode string

const (
	LayoutGrid   LayoutMode = "grid"
	LayoutFlex   LayoutMode = "flex"
	LayoutCustom LayoutMode = "custom"
)

// Valid reports whether m is one of the known layout modes.
func (m LayoutMode) Valid() bool {
	switch m {
	case LayoutGrid, LayoutFlex, LayoutCustom:
		return true
	}
	return false
}

// Template is a named, persisted bundle of layout, component, theme and
// refresh configuration. It is the canonical record for storage, the HTTP API
// and export files.
type Template struct {
	ID          int64          `json:"id" yaml:"id,omitempty" toml:"id,omitempty"`
	Name        string         `json:"name" yaml:"name" toml:"name"`
	Description string         `json:"description" yaml:"description" toml:"description"`
	Preview     string         `json:"preview" yaml:"preview" toml:"preview"`
	IsActive    bool           `json:"isActive" yaml:"isActive" toml:"isActive"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"createdAt,omitempty" toml:"createdAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"updatedAt,omitempty" toml:"updatedAt,omitempty"`
	Config      TemplateConfig `json:"config" yaml:"config" toml:"config"`
}

// TemplateConfig holds the render configuration of a template.
type TemplateConfig struct {
	Layout            LayoutMode        `json:"layout" yaml:"layout" toml:"layout"`
	Components        []ComponentConfig `json:"components" yaml:"components" toml:"components"`
	Theme             Theme             `json:"theme" yaml:"theme" toml:"theme"`
	RefreshIntervalMs int               `json:"refreshInterval" yaml:"refreshInterval" toml:"refreshInterval"`
	DataSource        string            `json:"dataSource" yaml:"dataSource" toml:"dataSource"`
}

// RefreshInterval returns the configured refresh interval as a duration.
func (c TemplateConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// Theme carries the template colour tokens. They are passed through to the
// rendering layer untouched.
type Theme struct {
	PrimaryColor    string `json:"primaryColor" yaml:"primaryColor" toml:"primaryColor"`
	BackgroundColor string `json:"backgroundColor" yaml:"backgroundColor" toml:"backgroundColor"`
	TextColor       string `json:"textColor" yaml:"textColor" toml:"textColor"`
}

// Position places a component in the 12-unit coordinate space.
type Position struct {
	X int `json:"x" yaml:"x" toml:"x"`
	Y int `json:"y" yaml:"y" toml:"y"`
	W int `json:"w" yaml:"w" toml:"w"`
	H int `json:"h" yaml:"h" toml:"h"`
}

// ComponentConfig is one widget placed on a template.
type ComponentConfig struct {
	ID       string         `json:"id" yaml:"id" toml:"id"`
	Kind     ComponentKind  `json:"type" yaml:"type" toml:"type"`
	Position Position       `json:"position" yaml:"position" toml:"position"`
	Title    string         `json:"title" yaml:"title" toml:"title"`
	Visible  bool           `json:"visible" yaml:"visible" toml:"visible"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty" toml:"config,omitempty"`
}

// Clone returns a deep copy of t. Component config maps are copied recursively
// so a duplicate never aliases the source record.
func (t Template) Clone() Template {
	out := t
	out.Config.Components = make([]ComponentConfig, len(t.Config.Components))
	for i, c := range t.Config.Components {
		c.Config = cloneMap(c.Config)
		out.Config.Components[i] = c
	}
	return out
}

// ComponentKinds returns the distinct component kinds used by the template, in
// declaration order.
func (t Template) ComponentKinds() []ComponentKind {
	var kinds []ComponentKind
	for _, c := range t.Config.Components {
		if !slices.Contains(kinds, c.Kind) {
			kinds = append(kinds, c.Kind)
		}
	}
	return kinds
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return cloneMap(vv)
	case []any:
		s := make([]any, len(vv))
		for i, e := range vv {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}
