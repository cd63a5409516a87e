package model

import "time"

// Shared defaults used by the server, the TUI and the template editor paths.
const (
	DefaultRefreshInterval  = 5 * time.Second
	DefaultFetchTimeout     = 15 * time.Second
	DefaultChartBaseURL     = "http://127.0.0.1:8000"
	DefaultDataSource       = "websocket"
	DefaultPrimaryColor     = "#1890ff"
	DefaultBackgroundColor  = "rgba(0, 0, 0, 0.8)"
	DefaultTextColor        = "#ffffff"
	MinRefreshIntervalMs    = 1000
	MaxRefreshIntervalMs    = 60000
	DefaultRefreshMs        = 5000
	GridUnits               = 12
	VisibilityStorageKey    = "component-visibility-storage"
	defaultComponentRowStep = 4
)

// DefaultVisibility returns the first-run visibility map.
func DefaultVisibility() map[ComponentKind]bool {
	return map[ComponentKind]bool{
		KindTemperature: true,
		KindHumidity:    true,
		KindEnergy:      true,
		KindEnergyPie:   false,
		KindAirflow:     true,
		KindStatus:      false,
	}
}

// NewTemplateDraft returns a template pre-filled with editor defaults.
// The caller sets name, description and preview before creating it.
func NewTemplateDraft() Template {
	return Template{
		IsActive: true,
		Config: TemplateConfig{
			Layout:     LayoutGrid,
			Components: []ComponentConfig{},
			Theme: Theme{
				PrimaryColor:    DefaultPrimaryColor,
				BackgroundColor: DefaultBackgroundColor,
				TextColor:       DefaultTextColor,
			},
			RefreshIntervalMs: DefaultRefreshMs,
			DataSource:        DefaultDataSource,
		},
	}
}

// NewComponent returns a visible component of the given kind stacked below
// index existing components.
func NewComponent(id string, kind ComponentKind, index int) ComponentConfig {
	return ComponentConfig{
		ID:       id,
		Kind:     kind,
		Position: Position{X: 0, Y: index * defaultComponentRowStep, W: 6, H: 4},
		Title:    "New component",
		Visible:  true,
		Config:   map[string]any{},
	}
}
