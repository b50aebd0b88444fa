package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/tank-quote/internal/tank"
	"gopkg.in/yaml.v3"
)

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// loadParams reads tank parameters from a YAML or JSON file, fills the
// optional fields with their defaults and validates the result.
func loadParams(path string, stdin io.Reader) (tank.TankParams, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return tank.TankParams{}, fmt.Errorf("failed to read params file %s: %w", path, err)
	}

	var params tank.TankParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return tank.TankParams{}, fmt.Errorf("failed to parse params file %s: %w", path, err)
	}

	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return tank.TankParams{}, fmt.Errorf("invalid params in %s: %w", path, err)
	}
	return params, nil
}

// loadPricing reads a pricing configuration from a YAML or JSON file and
// normalizes it the same way fetched pricing is.
func loadPricing(path string, stdin io.Reader) (tank.PricingConfig, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return tank.PricingConfig{}, fmt.Errorf("failed to read pricing file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return tank.PricingConfig{}, fmt.Errorf("failed to parse pricing file %s: %w", path, err)
	}
	return tank.NormalizePricingConfig(raw), nil
}
