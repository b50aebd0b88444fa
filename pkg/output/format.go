// Package output provides utilities for formatting and displaying quotes,
// materials, pricing and presets.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/iwvelando/tank-quote/internal/tank"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Render writes v in the requested format. Pretty output is only available
// for the types this package knows how to tabulate; anything else falls
// back to JSON.
func Render(w io.Writer, outputFormat string, v interface{}) error {
	switch outputFormat {
	case constants.OutputFormatJSON:
		return JSONFormat(w, v)
	case constants.OutputFormatYAML:
		return YAMLFormat(w, v)
	case constants.OutputFormatPretty, "":
		switch val := v.(type) {
		case tank.QuoteResult:
			PrettyQuote(w, val)
		case *tank.QuoteResult:
			PrettyQuote(w, *val)
		case tank.MaterialMap:
			PrettyMaterials(w, val)
		case tank.PricingConfig:
			PrettyPricing(w, val)
		case []tank.Preset:
			PrettyPresets(w, val)
		case tank.Preset:
			PrettyPreset(w, val)
		case *tank.Preset:
			PrettyPreset(w, *val)
		default:
			return JSONFormat(w, v)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

// JSONFormat writes v as indented JSON.
func JSONFormat(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAMLFormat writes v as YAML.
func YAMLFormat(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// PrettyQuote outputs a human-readable quote with its line items.
func PrettyQuote(w io.Writer, q tank.QuoteResult) {
	p := message.NewPrinter(language.English)
	_, _ = fmt.Fprintf(w, "--- Quote (%s) ---\n", q.Currency)
	if q.MaterialKey != "" {
		_, _ = fmt.Fprintf(w, "Material       | %s\n", q.MaterialKey)
	}
	_, _ = p.Fprintf(w, "Material weight | %.1f lb\n", q.MaterialLb)
	_, _ = p.Fprintf(w, "Weld length    | %.1f in\n", q.WeldInches)
	_, _ = p.Fprintf(w, "Radius (o/i)   | %.3f / %.3f in\n", q.OuterRadius, q.InnerRadius)
	_, _ = fmt.Fprintf(w, "Material cost  | %s\n", format.Money(q.MaterialCost, q.Currency))
	_, _ = fmt.Fprintf(w, "Labor cost     | %s\n", format.Money(q.LaborCost, q.Currency))
	_, _ = fmt.Fprintf(w, "Adders         | %s\n", format.Money(q.AddersCost, q.Currency))
	_, _ = fmt.Fprintf(w, "Subtotal       | %s\n", format.Money(q.Subtotal, q.Currency))
	_, _ = fmt.Fprintf(w, "Total          | %s\n", format.Money(q.Total, q.Currency))

	if len(q.LineItems) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nItem | Qty | Unit | Rate | Amount\n")
	_, _ = fmt.Fprintf(w, "____ | ___ | ____ | ____ | ______\n")
	for _, item := range q.LineItems {
		_, _ = p.Fprintf(w, "%s | %.2f | %s | %s | %s\n",
			item.Label, item.Qty, item.Unit,
			format.Money(item.Rate, q.Currency), format.Money(item.Amount, q.Currency))
	}
}

// PrettyMaterials outputs the material catalog sorted by key.
func PrettyMaterials(w io.Writer, materials tank.MaterialMap) {
	p := message.NewPrinter(language.English)
	keys := make([]string, 0, len(materials))
	for key := range materials {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(w, "Key | Name | Density\n")
	_, _ = fmt.Fprintf(w, "___ | ____ | _______\n")
	for _, key := range keys {
		m := materials[key]
		density := "-"
		switch {
		case m.DensityLbPerIn3 != nil:
			density = p.Sprintf("%.4f lb/in³", *m.DensityLbPerIn3)
		case m.DensityLbFt3 != nil:
			density = p.Sprintf("%.1f lb/ft³", *m.DensityLbFt3)
		}
		name := m.Name
		if name == "" {
			name = constants.PlaceholderLabel
		}
		_, _ = fmt.Fprintf(w, "%s | %s | %s\n", key, name, density)
	}
}

// PrettyPricing outputs the pricing configuration.
func PrettyPricing(w io.Writer, cfg tank.PricingConfig) {
	p := message.NewPrinter(language.English)
	keys := make([]string, 0, len(cfg.Materials))
	for key := range cfg.Materials {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(w, "--- Materials ---\n")
	_, _ = fmt.Fprintf(w, "Key | Density (lb/in³) | Price per lb\n")
	_, _ = fmt.Fprintf(w, "___ | ________________ | ____________\n")
	for _, key := range keys {
		m := cfg.Materials[key]
		_, _ = p.Fprintf(w, "%s | %.4f | %s\n", key, m.DensityLbPerIn3, format.Currency(m.PricePerLb))
	}

	_, _ = fmt.Fprintf(w, "\n--- Labor ---\n")
	_, _ = fmt.Fprintf(w, "Weld $/in        | %s\n", format.Currency(cfg.Labor.WeldDollarsPerInch))
	_, _ = p.Fprintf(w, "Weld passes      | %v\n", cfg.Labor.WeldPassesPerJoint)
	_, _ = p.Fprintf(w, "Assembly hours   | %v\n", cfg.Labor.AssemblyHours)
	_, _ = fmt.Fprintf(w, "Shop rate per hr | %s\n", format.Currency(cfg.Labor.ShopRatePerHour))

	_, _ = fmt.Fprintf(w, "\n--- Adders ---\n")
	_, _ = p.Fprintf(w, "Overhead | %v%%\n", cfg.Adders.OverheadPct)
	_, _ = p.Fprintf(w, "Profit   | %v%%\n", cfg.Adders.ProfitPct)
	_, _ = p.Fprintf(w, "Paint    | %v%%\n", cfg.Adders.PaintPct)

	if cfg.Defaults.MaterialKey != "" {
		_, _ = fmt.Fprintf(w, "\nDefault material: %s\n", cfg.Defaults.MaterialKey)
	}
}

// PrettyPresets outputs one line per preset in list order.
func PrettyPresets(w io.Writer, presets []tank.Preset) {
	if len(presets) == 0 {
		_, _ = fmt.Fprintf(w, "No presets saved.\n")
		return
	}
	p := message.NewPrinter(language.English)
	_, _ = fmt.Fprintf(w, "Name | Diameter | Height | Roof | Material\n")
	_, _ = fmt.Fprintf(w, "____ | ________ | ______ | ____ | ________\n")
	for _, preset := range presets {
		params := preset.Params
		roof := string(params.RoofType)
		if roof == "" {
			roof = constants.PlaceholderLabel
		}
		material := constants.PlaceholderLabel
		if params.MaterialKey != nil && *params.MaterialKey != "" {
			material = *params.MaterialKey
		}
		_, _ = p.Fprintf(w, "%s | %v in | %v in | %s | %s\n",
			preset.Name, params.Diameter, params.Height, roof, material)
	}
}

// PrettyPreset outputs a single preset with its parameters.
func PrettyPreset(w io.Writer, preset tank.Preset) {
	_, _ = fmt.Fprintf(w, "--- Preset %s ---\n", preset.Name)
	_ = YAMLFormat(w, preset.Params)
}
