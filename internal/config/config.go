// Package config defines the runtime configuration for tank-quote and
// loads it from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iwvelando/tank-quote/internal/telemetry"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for tank-quote.
type Configuration struct {
	Server    ServerConfig     `mapstructure:"server" yaml:"server"`
	Backend   BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Client    ClientConfig     `mapstructure:"client" yaml:"client"`
	Presets   PresetsConfig    `mapstructure:"presets" yaml:"presets"`
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig    `mapstructure:"logging" yaml:"logging,omitempty"`
	Output    OutputConfig     `mapstructure:"output" yaml:"output,omitempty"`

	maxBodySizeBytes int64
}

// ServerConfig defines runtime parameters for the proxy HTTP server.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	MaxBodySize     string        `mapstructure:"maxBodySize" yaml:"maxBodySize"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout"`
	// PublicOrigin is the scheme://host a path-prefix backend.baseURL resolves
	// against. When empty the incoming request's origin is used and absolute
	// download URLs are refused.
	PublicOrigin string `mapstructure:"publicOrigin" yaml:"publicOrigin"`
}

// BackendConfig locates the quoting backend. BaseURL is either absolute or a
// path prefix resolved against the incoming request's origin. A zero Timeout
// means no timeout.
type BackendConfig struct {
	BaseURL string        `mapstructure:"baseURL" yaml:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ClientConfig locates the proxy for the CLI commands.
type ClientConfig struct {
	BaseURL string `mapstructure:"baseURL" yaml:"baseURL"`
}

// PresetsConfig selects where the CLI keeps presets.
type PresetsConfig struct {
	Source   string `mapstructure:"source" yaml:"source"`     // backend, local
	Database string `mapstructure:"database" yaml:"database"` // libsql DSN for the local source
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level,omitempty"`           // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format,omitempty"`         // json, console
	OutputFile string `mapstructure:"outputFile" yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format,omitempty"` // pretty, json, yaml
}

func setDefaults(v *viper.Viper) {
	shutdown, _ := time.ParseDuration(constants.DefaultShutdownTimeout)

	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("server.maxBodySize", strconv.FormatInt(constants.DefaultMaxBodySizeBytes, 10))
	v.SetDefault("server.shutdownTimeout", shutdown)
	v.SetDefault("server.publicOrigin", "")
	v.SetDefault("backend.baseURL", constants.DefaultBackendBaseURL)
	v.SetDefault("backend.timeout", time.Duration(0))
	v.SetDefault("client.baseURL", constants.DefaultClientBaseURL)
	v.SetDefault("presets.source", constants.PresetSourceBackend)
	v.SetDefault("presets.database", constants.DefaultPresetDatabase)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
}

// LoadConfiguration reads the YAML file at configPath and applies
// TANKQUOTE_* environment overrides (TANKQUOTE_BACKEND_BASEURL and so on).
// A missing file yields the defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file, %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file, %w", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := configuration.normalize(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// MaxBodySizeBytes returns the parsed request body limit.
func (c *Configuration) MaxBodySizeBytes() int64 {
	if c.maxBodySizeBytes <= 0 {
		return constants.DefaultMaxBodySizeBytes
	}
	return c.maxBodySizeBytes
}

func (c *Configuration) normalize() error {
	c.Server.Address = strings.TrimSpace(c.Server.Address)
	if c.Server.Address == "" {
		c.Server.Address = constants.DefaultServerAddress
	}

	size, err := ParseSize(c.Server.MaxBodySize)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = constants.DefaultMaxBodySizeBytes
	}
	c.maxBodySizeBytes = size

	c.Server.PublicOrigin = strings.TrimRight(strings.TrimSpace(c.Server.PublicOrigin), "/")
	c.Backend.BaseURL = strings.TrimSpace(c.Backend.BaseURL)
	c.Client.BaseURL = strings.TrimSpace(c.Client.BaseURL)
	c.Presets.Source = strings.ToLower(strings.TrimSpace(c.Presets.Source))
	if c.Presets.Source == "" {
		c.Presets.Source = constants.PresetSourceBackend
	}
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
	return nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Backend.BaseURL == "" {
		warnings = append(warnings, "backend.baseURL is empty; the proxy cannot reach the backend")
	} else if validation.IsAbsoluteURL(c.Backend.BaseURL) {
		if _, err := url.Parse(c.Backend.BaseURL); err != nil {
			warnings = append(warnings, fmt.Sprintf("backend.baseURL %q is not a valid URL: %v", c.Backend.BaseURL, err))
		}
	} else {
		if !strings.HasPrefix(c.Backend.BaseURL, "/") {
			warnings = append(warnings, fmt.Sprintf("backend.baseURL %q is neither an http(s) URL nor an absolute path", c.Backend.BaseURL))
		}
		if c.Server.PublicOrigin == "" {
			warnings = append(warnings, "server.publicOrigin is empty; backend.baseURL will resolve against the request Host and absolute download URLs are refused")
		}
	}
	if c.Server.PublicOrigin != "" {
		if u, err := url.Parse(c.Server.PublicOrigin); err != nil || !validation.IsAbsoluteURL(c.Server.PublicOrigin) || u.Host == "" {
			warnings = append(warnings, fmt.Sprintf("server.publicOrigin %q should be an http(s) origin", c.Server.PublicOrigin))
		}
	}
	if c.Backend.Timeout < 0 {
		warnings = append(warnings, "backend.timeout is negative; no timeout will be applied")
	}

	if !validation.IsAbsoluteURL(c.Client.BaseURL) {
		warnings = append(warnings, fmt.Sprintf("client.baseURL %q should be an http(s) URL", c.Client.BaseURL))
	}

	switch c.Presets.Source {
	case constants.PresetSourceBackend:
	case constants.PresetSourceLocal:
		if strings.TrimSpace(c.Presets.Database) == "" {
			warnings = append(warnings, "presets.database is empty; the local preset source needs a database")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("presets.source %q is unknown; expected %s or %s",
			c.Presets.Source, constants.PresetSourceBackend, constants.PresetSourceLocal))
	}

	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		warnings = append(warnings, "telemetry is enabled without an endpoint; metrics will not be exported")
	}

	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		warnings = append(warnings, err.Error())
	}

	if c.Server.ShutdownTimeout <= 0 {
		warnings = append(warnings, "server.shutdownTimeout is not positive; shutdown will not wait for in-flight requests")
	}
	return warnings
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.DefaultMaxBodySizeBytes, nil
	}

	upper := strings.ToUpper(trimmed)
	idx := len(upper)
	for idx > 0 && !unicode.IsDigit(rune(upper[idx-1])) {
		idx--
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(upper[:idx])
	unitPart := strings.TrimSpace(upper[idx:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	var multiplier int64
	switch unitPart {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if result < 0 || (n != 0 && result/multiplier != n) {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
