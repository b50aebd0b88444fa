package telemetry

// Config holds OTLP metrics exporter configuration.
type Config struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}
