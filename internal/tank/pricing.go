package tank

import (
	"github.com/iwvelando/tank-quote/pkg/mathutil"
)

// LaborPricing holds the labor rate parameters.
type LaborPricing struct {
	WeldDollarsPerInch float64 `json:"weld_dollars_per_inch" yaml:"weld_dollars_per_inch"`
	WeldPassesPerJoint float64 `json:"weld_passes_per_joint" yaml:"weld_passes_per_joint"`
	AssemblyHours      float64 `json:"assembly_hours" yaml:"assembly_hours"`
	ShopRatePerHour    float64 `json:"shop_rate_per_hour" yaml:"shop_rate_per_hour"`
}

// PricingAdders are percentage additions applied on top of material and labor.
type PricingAdders struct {
	OverheadPct float64 `json:"overhead_pct" yaml:"overhead_pct"`
	ProfitPct   float64 `json:"profit_pct" yaml:"profit_pct"`
	PaintPct    float64 `json:"paint_pct" yaml:"paint_pct"`
}

// PricingDefaults holds pricing-wide defaults.
type PricingDefaults struct {
	MaterialKey string `json:"material_key" yaml:"material_key"`
}

// PricingConfig is the editable pricing table.
type PricingConfig struct {
	Materials map[string]MaterialPricing `json:"materials" yaml:"materials"`
	Labor     LaborPricing               `json:"labor" yaml:"labor"`
	Adders    PricingAdders              `json:"adders" yaml:"adders"`
	Defaults  PricingDefaults            `json:"defaults" yaml:"defaults"`
}

// NormalizePricingConfig builds a PricingConfig from an arbitrary decoded
// JSON value. Every numeric field is coerced to a finite number, missing
// nested objects become zero values and material entries that are not
// objects are dropped.
func NormalizePricingConfig(raw interface{}) PricingConfig {
	data, _ := raw.(map[string]interface{})

	cfg := PricingConfig{Materials: make(map[string]MaterialPricing)}
	if materials, ok := data["materials"].(map[string]interface{}); ok {
		for key, value := range materials {
			if entry, ok := value.(map[string]interface{}); ok {
				cfg.Materials[key] = materialPricingFromMap(entry)
			}
		}
	}

	labor, _ := data["labor"].(map[string]interface{})
	cfg.Labor = LaborPricing{
		WeldDollarsPerInch: mathutil.ToNumber(labor["weld_dollars_per_inch"], 0),
		WeldPassesPerJoint: mathutil.ToNumber(labor["weld_passes_per_joint"], 0),
		AssemblyHours:      mathutil.ToNumber(labor["assembly_hours"], 0),
		ShopRatePerHour:    mathutil.ToNumber(labor["shop_rate_per_hour"], 0),
	}

	adders, _ := data["adders"].(map[string]interface{})
	cfg.Adders = PricingAdders{
		OverheadPct: mathutil.ToNumber(adders["overhead_pct"], 0),
		ProfitPct:   mathutil.ToNumber(adders["profit_pct"], 0),
		PaintPct:    mathutil.ToNumber(adders["paint_pct"], 0),
	}

	defaults, _ := data["defaults"].(map[string]interface{})
	if key, ok := defaults["material_key"].(string); ok {
		cfg.Defaults.MaterialKey = key
	}

	return cfg
}
