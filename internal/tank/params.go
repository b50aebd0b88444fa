// Package tank defines the request and response shapes exchanged with the
// quoting backend, along with the normalization that keeps every numeric
// field finite before it reaches a caller.
package tank

import (
	"errors"
	"fmt"

	"github.com/iwvelando/tank-quote/pkg/constants"
)

// RoofType selects the roof geometry.
type RoofType string

const (
	RoofFlat RoofType = constants.RoofTypeFlat
	RoofCone RoofType = constants.RoofTypeCone
)

// ManwaySpec describes an access cutout on the tank shell.
type ManwaySpec struct {
	Width        float64  `json:"width" yaml:"width"`
	Height       float64  `json:"height" yaml:"height"`
	OffsetUp     *float64 `json:"offset_up,omitempty" yaml:"offset_up,omitempty"`
	CornerRadius *float64 `json:"corner_radius,omitempty" yaml:"corner_radius,omitempty"`
}

// TankParams is the geometry/material input for a quote or STEP generation.
// Optional fields left nil are defaulted by the backend, or locally by WithDefaults.
type TankParams struct {
	Diameter        float64     `json:"diameter" yaml:"diameter"`
	Height          float64     `json:"height" yaml:"height"`
	WallThickness   *float64    `json:"wall_thickness,omitempty" yaml:"wall_thickness,omitempty"`
	BottomThickness *float64    `json:"bottom_thickness,omitempty" yaml:"bottom_thickness,omitempty"`
	RoofType        RoofType    `json:"roof_type,omitempty" yaml:"roof_type,omitempty"`
	RoofThickness   *float64    `json:"roof_thickness,omitempty" yaml:"roof_thickness,omitempty"`
	RoofSlope       *float64    `json:"roof_slope,omitempty" yaml:"roof_slope,omitempty"`
	Manway          *ManwaySpec `json:"manway,omitempty" yaml:"manway,omitempty"`
	MaterialKey     *string     `json:"material_key,omitempty" yaml:"material_key,omitempty"`
}

// WithDefaults returns a copy with every optional field filled in.
func (p TankParams) WithDefaults() TankParams {
	out := p
	out.WallThickness = orDefault(p.WallThickness, constants.DefaultPlateThickness)
	out.BottomThickness = orDefault(p.BottomThickness, constants.DefaultPlateThickness)
	out.RoofThickness = orDefault(p.RoofThickness, constants.DefaultPlateThickness)
	out.RoofSlope = orDefault(p.RoofSlope, constants.DefaultRoofSlope)
	if out.RoofType == "" {
		out.RoofType = RoofFlat
	}
	if p.Manway != nil {
		m := *p.Manway
		m.OffsetUp = orDefault(m.OffsetUp, constants.DefaultManwayOffsetUp)
		m.CornerRadius = orDefault(m.CornerRadius, constants.DefaultManwayRadius)
		out.Manway = &m
	}
	return out
}

// Validate reports the first structural problem with the parameters.
func (p TankParams) Validate() error {
	if p.Diameter <= 0 {
		return errors.New("diameter must be greater than zero")
	}
	if p.Height <= 0 {
		return errors.New("height must be greater than zero")
	}
	switch p.RoofType {
	case "", RoofFlat, RoofCone:
	default:
		return fmt.Errorf("unsupported roof type %q, expected %s or %s", p.RoofType, RoofFlat, RoofCone)
	}
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"wall_thickness", p.WallThickness},
		{"bottom_thickness", p.BottomThickness},
		{"roof_thickness", p.RoofThickness},
	} {
		if field.value != nil && *field.value <= 0 {
			return fmt.Errorf("%s must be greater than zero", field.name)
		}
	}
	if p.Manway != nil && (p.Manway.Width <= 0 || p.Manway.Height <= 0) {
		return errors.New("manway width and height must be greater than zero")
	}
	return nil
}

func orDefault(v *float64, def float64) *float64 {
	if v != nil {
		out := *v
		return &out
	}
	return &def
}

// Preset is a named, reusable set of tank parameters.
type Preset struct {
	Name   string     `json:"name" yaml:"name"`
	Params TankParams `json:"params" yaml:"params"`
}

// PresetListResponse is the backend's preset listing shape.
type PresetListResponse struct {
	Presets map[string]TankParams `json:"presets"`
}

// PresetResponse is the backend's single-preset shape.
type PresetResponse = Preset
