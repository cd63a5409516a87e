package model

// ComponentKind is the widget type of a template component.
type ComponentKind string

const (
	KindTemperature ComponentKind = "temperature"
	KindHumidity    ComponentKind = "humidity"
	KindEnergy      ComponentKind = "energy"
	KindEnergyPie   ComponentKind = "energy_pie"
	KindAirflow     ComponentKind = "airflow"
	KindPressure    ComponentKind = "pressure"
	KindStatus      ComponentKind = "status"
	KindWeather     ComponentKind = "weather"
	KindAlerts      ComponentKind = "alerts"
	KindRealtime    ComponentKind = "realtime"
)

var componentKinds = []ComponentKind{
	KindTemperature, KindHumidity, KindEnergy, KindEnergyPie, KindAirflow,
	KindPressure, KindStatus, KindWeather, KindAlerts, KindRealtime,
}

// visibilityKinds is the fixed domain of the visibility set. Order is the
// display order used by sidebars and VisibleKinds.
var visibilityKinds = []ComponentKind{
	KindTemperature, KindHumidity, KindEnergy, KindEnergyPie, KindAirflow, KindStatus,
}

// ComponentKinds returns every known component kind.
func ComponentKinds() []ComponentKind {
	return append([]ComponentKind(nil), componentKinds...)
}

// VisibilityKinds returns the chart-backed component kinds governed by the
// visibility set.
func VisibilityKinds() []ComponentKind {
	return append([]ComponentKind(nil), visibilityKinds...)
}

// Valid reports whether k is a known component kind.
func (k ComponentKind) Valid() bool {
	for _, known := range componentKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Chart returns the chart kind fetched for this component kind. Components
// without a chart image (weather, alerts, ...) report false.
func (k ComponentKind) Chart() (ChartKind, bool) {
	switch k {
	case KindTemperature:
		return ChartTemperature, true
	case KindHumidity:
		return ChartHumidity, true
	case KindEnergy:
		return ChartEnergy, true
	case KindEnergyPie:
		return ChartEnergyPie, true
	case KindAirflow:
		return ChartAirflow, true
	case KindStatus:
		return ChartSystemStatus, true
	}
	return "", false
}

// ChartKind is one of the fixed categories of monitored chart data served by
// the chart endpoint.
type ChartKind string

const (
	ChartTemperature  ChartKind = "temperature"
	ChartHumidity     ChartKind = "humidity"
	ChartEnergy       ChartKind = "energy"
	ChartEnergyPie    ChartKind = "energy_pie"
	ChartAirflow      ChartKind = "airflow"
	ChartSystemStatus ChartKind = "system_status"
)

var chartKinds = []ChartKind{
	ChartTemperature, ChartHumidity, ChartEnergy, ChartEnergyPie, ChartAirflow, ChartSystemStatus,
}

// ChartKinds returns every chart kind in fetch order.
func ChartKinds() []ChartKind {
	return append([]ChartKind(nil), chartKinds...)
}

// Valid reports whether k is a known chart kind.
func (k ChartKind) Valid() bool {
	for _, known := range chartKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Component returns the component kind that displays this chart.
func (k ChartKind) Component() ComponentKind {
	if k == ChartSystemStatus {
		return KindStatus
	}
	return ComponentKind(k)
}

// Title is the default human readable chart title.
func (k ChartKind) Title() string {
	switch k {
	case ChartTemperature:
		return "Temperature trend"
	case ChartHumidity:
		return "Humidity trend"
	case ChartEnergy:
		return "Energy consumption"
	case ChartEnergyPie:
		return "Energy distribution"
	case ChartAirflow:
		return "Air flow"
	case ChartSystemStatus:
		return "System status"
	}
	return string(k)
}
