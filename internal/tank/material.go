package tank

import (
	"encoding/json"
	"errors"

	"github.com/iwvelando/tank-quote/pkg/mathutil"
	"gopkg.in/yaml.v3"
)

var errNotObject = errors.New("expected a JSON object")

// MaterialDefinition is one entry of the materials listing. Fields the
// backend sends that are not modelled here are kept in Extra and written
// back out unchanged.
type MaterialDefinition struct {
	Name            string
	DensityLbFt3    *float64
	DensityLbPerIn3 *float64
	Extra           map[string]interface{}
}

// MaterialMap keys material definitions by material key.
type MaterialMap map[string]MaterialDefinition

// MaterialsResponse is the shape served by GET /api/materials.
type MaterialsResponse struct {
	Materials MaterialMap `json:"materials"`
}

func (m *MaterialDefinition) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*m = materialDefinitionFromMap(raw)
	return nil
}

func (m *MaterialDefinition) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*m = materialDefinitionFromMap(raw)
	return nil
}

func (m MaterialDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.asMap())
}

func (m MaterialDefinition) MarshalYAML() (interface{}, error) {
	return m.asMap(), nil
}

func (m MaterialDefinition) asMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.DensityLbFt3 != nil {
		out["density_lb_ft3"] = *m.DensityLbFt3
	}
	if m.DensityLbPerIn3 != nil {
		out["density_lb_per_in3"] = *m.DensityLbPerIn3
	}
	return out
}

func materialDefinitionFromMap(raw map[string]interface{}) MaterialDefinition {
	var m MaterialDefinition
	for k, v := range raw {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				m.Name = s
				continue
			}
		case "density_lb_ft3":
			if v != nil {
				n := mathutil.ToNumber(v, 0)
				m.DensityLbFt3 = &n
			}
			continue
		case "density_lb_per_in3":
			if v != nil {
				n := mathutil.ToNumber(v, 0)
				m.DensityLbPerIn3 = &n
			}
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]interface{})
		}
		m.Extra[k] = v
	}
	return m
}

// MaterialPricing is the per-material density and price entry of a PricingConfig.
type MaterialPricing struct {
	DensityLbPerIn3 float64
	PricePerLb      float64
	Extra           map[string]interface{}
}

func (m *MaterialPricing) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*m = materialPricingFromMap(raw)
	return nil
}

func (m *MaterialPricing) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*m = materialPricingFromMap(raw)
	return nil
}

func (m MaterialPricing) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.asMap())
}

func (m MaterialPricing) MarshalYAML() (interface{}, error) {
	return m.asMap(), nil
}

func (m MaterialPricing) asMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["density_lb_per_in3"] = m.DensityLbPerIn3
	out["price_per_lb"] = m.PricePerLb
	return out
}

func materialPricingFromMap(raw map[string]interface{}) MaterialPricing {
	m := MaterialPricing{
		DensityLbPerIn3: mathutil.ToNumber(raw["density_lb_per_in3"], 0),
		PricePerLb:      mathutil.ToNumber(raw["price_per_lb"], 0),
	}
	for k, v := range raw {
		if k == "density_lb_per_in3" || k == "price_per_lb" {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]interface{})
		}
		m.Extra[k] = v
	}
	return m
}
