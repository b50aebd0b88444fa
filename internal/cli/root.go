// Package cli wires configuration, logging and the tank-quote components
// into the tankquote command.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/iwvelando/tank-quote/internal/client"
	"github.com/iwvelando/tank-quote/internal/config"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/iwvelando/tank-quote/pkg/output"
	"github.com/iwvelando/tank-quote/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every subcommand needs once the root has loaded config.
type app struct {
	version string

	configPath   string
	logLevel     string
	apiURL       string
	outputFormat string

	conf   *config.Configuration
	logger *zap.Logger
}

// NewRootCommand builds the tankquote command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "tankquote",
		Short: "Quote, configure and model steel tanks",
		Long: `tankquote runs the proxy that sits between the tank-quote UI and the
quoting backend, and talks to that proxy from the command line.

Quote a tank, manage pricing and presets, and generate STEP models.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.Version = version

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.apiURL, "api", "", "proxy base URL override for client commands")
	flags.StringVarP(&a.outputFormat, "output", "o", "", "output format override: pretty, json, yaml")

	root.AddCommand(
		a.newServeCommand(),
		a.newMaterialsCommand(),
		a.newQuoteCommand(),
		a.newPricingCommand(),
		a.newPresetsCommand(),
		a.newStepCommand(),
	)
	return root
}

// Execute runs the tankquote command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	conf, err := config.LoadConfiguration(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", a.configPath, err)
	}

	logger, err := InitializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// CLI overrides take precedence over config
	if a.apiURL != "" {
		conf.Client.BaseURL = a.apiURL
	}
	if a.outputFormat != "" {
		conf.Output.Format = a.outputFormat
	}
	if err := validation.ValidateOutputFormat(conf.Output.Format); err != nil {
		return err
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "cli.setup"),
		)
	}

	a.conf = conf
	a.logger = logger
	return nil
}

func (a *app) apiClient() (*client.Client, error) {
	return client.New(a.conf.Client.BaseURL, 0)
}

func (a *app) render(w io.Writer, v interface{}) error {
	return output.Render(w, a.conf.Output.Format, v)
}
