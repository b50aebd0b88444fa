// Package constants provides shared constants for the tank-quote application.
package constants

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "tankquote.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "tankquote.yaml.example"

	// EnvPrefix prefixes every environment override (e.g. TANKQUOTE_BACKEND_BASEURL)
	EnvPrefix = "TANKQUOTE"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the proxy
	DefaultServerAddress = ":8080"

	// DefaultMaxBodySizeBytes is the default maximum request body forwarded upstream (1 MB)
	DefaultMaxBodySizeBytes int64 = 1024 * 1024

	// DefaultShutdownTimeout is how long in-flight requests get on shutdown
	DefaultShutdownTimeout = "5s"

	// DefaultBackendBaseURL is the backend service used when none is configured
	DefaultBackendBaseURL = "http://localhost:8000"

	// DefaultClientBaseURL is where CLI commands find the proxy
	DefaultClientBaseURL = "http://localhost:8080"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"

	// OutputFormatYAML is the YAML output format
	OutputFormatYAML = "yaml"
)

// Preset sources
const (
	// PresetSourceBackend keeps presets in the backend service
	PresetSourceBackend = "backend"

	// PresetSourceLocal keeps presets under a single local key
	PresetSourceLocal = "local"

	// DefaultPresetDatabase is the libsql database used by the local preset source
	DefaultPresetDatabase = "file:tankquote-presets.db"

	// PresetStorageKey is the single key the local preset source persists under
	PresetStorageKey = "tank-presets"
)

// Proxy route paths
const (
	APIPrefix          = "/api"
	DownloadStepRoute  = "/api/download-step"
	GeneratedRoute     = "/generated/"
	CadOutputRoute     = "/cadmodels/output/"
	BackendOutputPath  = "/cadmodels/output/"
	LegacyPricingPath  = "/cadmodels/pricing/pricing.json"
	DefaultStepName    = "tank.step"
	DefaultCurrency    = "USD"
	PlaceholderLabel   = "-"
	FileCacheControl   = "public, max-age=3600"
	ContentTypeJSON    = "application/json"
	ContentTypeBinary  = "application/octet-stream"
	ContentTypeStep    = "model/step"
	RequestIDHeader    = "X-Request-ID"
	CORSAllowedMethods = "GET, OPTIONS"
	CORSAllowedHeaders = "Content-Type"
)

// Tank parameter defaults
const (
	DefaultPlateThickness = 0.25
	DefaultRoofSlope      = 0.5
	DefaultManwayOffsetUp = 18.0
	DefaultManwayRadius   = 2.0

	RoofTypeFlat = "flat"
	RoofTypeCone = "cone"
)
