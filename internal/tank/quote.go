package tank

import (
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/mathutil"
)

// LineItem is one row of a quote breakdown.
type LineItem struct {
	Label  string  `json:"label" yaml:"label"`
	Qty    float64 `json:"qty" yaml:"qty"`
	Unit   string  `json:"unit" yaml:"unit"`
	Rate   float64 `json:"rate" yaml:"rate"`
	Amount float64 `json:"amount" yaml:"amount"`
}

// QuoteResult is the computed cost of one TankParams request.
type QuoteResult struct {
	MaterialLb   float64    `json:"material_lb" yaml:"material_lb"`
	MaterialCost float64    `json:"material_cost" yaml:"material_cost"`
	LaborCost    float64    `json:"labor_cost" yaml:"labor_cost"`
	AddersCost   float64    `json:"adders_cost" yaml:"adders_cost"`
	Subtotal     float64    `json:"subtotal" yaml:"subtotal"`
	Total        float64    `json:"total" yaml:"total"`
	Currency     string     `json:"currency" yaml:"currency"`
	OuterRadius  float64    `json:"outer_radius" yaml:"outer_radius"`
	InnerRadius  float64    `json:"inner_radius" yaml:"inner_radius"`
	WeldInches   float64    `json:"weld_inches" yaml:"weld_inches"`
	MaterialKey  string     `json:"material_key" yaml:"material_key"`
	LineItems    []LineItem `json:"line_items" yaml:"line_items"`
}

// NormalizeLineItem maps the backend's field aliases onto a LineItem.
// Backends have sent name/label, quantity/qty, uom/unit, unit_cost/rate
// and extended/amount; the first alias present wins.
func NormalizeLineItem(raw map[string]interface{}) LineItem {
	return LineItem{
		Label:  mathutil.FirstString(raw, constants.PlaceholderLabel, "name", "label"),
		Qty:    mathutil.FirstNumber(raw, 0, "quantity", "qty"),
		Unit:   mathutil.FirstString(raw, constants.PlaceholderLabel, "uom", "unit"),
		Rate:   mathutil.FirstNumber(raw, 0, "unit_cost", "rate"),
		Amount: mathutil.FirstNumber(raw, 0, "extended", "amount"),
	}
}

// NormalizeQuote builds a QuoteResult from a decoded backend response,
// zero-filling anything missing or malformed.
func NormalizeQuote(data map[string]interface{}) QuoteResult {
	q := QuoteResult{
		MaterialLb:   mathutil.FirstNumber(data, 0, "material_lb"),
		MaterialCost: mathutil.FirstNumber(data, 0, "material_cost"),
		LaborCost:    mathutil.FirstNumber(data, 0, "labor_cost"),
		AddersCost:   mathutil.FirstNumber(data, 0, "adders_cost"),
		Subtotal:     mathutil.FirstNumber(data, 0, "subtotal"),
		Total:        mathutil.FirstNumber(data, 0, "total"),
		Currency:     mathutil.FirstString(data, constants.DefaultCurrency, "currency"),
		OuterRadius:  mathutil.FirstNumber(data, 0, "outer_radius"),
		InnerRadius:  mathutil.FirstNumber(data, 0, "inner_radius"),
		WeldInches:   mathutil.FirstNumber(data, 0, "weld_inches"),
		MaterialKey:  mathutil.FirstString(data, "", "material_key"),
		LineItems:    []LineItem{},
	}

	items, _ := data["line_items"].([]interface{})
	for _, item := range items {
		entry, _ := item.(map[string]interface{})
		q.LineItems = append(q.LineItems, NormalizeLineItem(entry))
	}
	return q
}
