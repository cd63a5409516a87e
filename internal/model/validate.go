package model

import (
	"fmt"
	"strings"
)

// Validate checks the fields the template editor requires. It returns an error
// wrapping ErrInvalid describing the first violation found.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if strings.TrimSpace(t.Preview) == "" {
		return fmt.Errorf("%w: preview is required", ErrInvalid)
	}
	return t.Config.Validate()
}

// Validate checks layout, refresh interval and component placement.
func (c TemplateConfig) Validate() error {
	if !c.Layout.Valid() {
		return fmt.Errorf("%w: unknown layout %q", ErrInvalid, c.Layout)
	}
	if c.RefreshIntervalMs < MinRefreshIntervalMs || c.RefreshIntervalMs > MaxRefreshIntervalMs {
		return fmt.Errorf("%w: refresh interval %dms outside [%d, %d]",
			ErrInvalid, c.RefreshIntervalMs, MinRefreshIntervalMs, MaxRefreshIntervalMs)
	}

	seen := make(map[string]bool, len(c.Components))
	for i, comp := range c.Components {
		if comp.ID == "" {
			return fmt.Errorf("%w: component %d has no id", ErrInvalid, i)
		}
		if seen[comp.ID] {
			return fmt.Errorf("%w: duplicate component id %q", ErrInvalid, comp.ID)
		}
		seen[comp.ID] = true
		if !comp.Kind.Valid() {
			return fmt.Errorf("%w: component %q has unknown type %q", ErrInvalid, comp.ID, comp.Kind)
		}
		if err := comp.Position.validate(); err != nil {
			return fmt.Errorf("%w: component %q: %v", ErrInvalid, comp.ID, err)
		}
	}
	return nil
}

func (p Position) validate() error {
	switch {
	case p.X < 0 || p.X >= GridUnits:
		return fmt.Errorf("x=%d outside [0, %d]", p.X, GridUnits-1)
	case p.Y < 0:
		return fmt.Errorf("y=%d is negative", p.Y)
	case p.W < 1 || p.W > GridUnits:
		return fmt.Errorf("w=%d outside [1, %d]", p.W, GridUnits)
	case p.H < 1 || p.H > GridUnits:
		return fmt.Errorf("h=%d outside [1, %d]", p.H, GridUnits)
	}
	return nil
}
