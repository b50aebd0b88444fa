package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iwvelando/tank-quote/internal/client"
	"github.com/iwvelando/tank-quote/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) newMaterialsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "materials",
		Short: "List available materials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.apiClient()
			if err != nil {
				return err
			}
			materials, err := api.FetchMaterials(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), materials)
		},
	}
}

func (a *app) newQuoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quote <params-file>",
		Short: "Price a tank",
		Long: `Price the tank described by a YAML or JSON params file ("-" reads stdin).

Example params file:
  diameter: 96
  height: 120
  roof_type: cone
  material_key: a36`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := a.apiClient()
			if err != nil {
				return err
			}
			quote, err := api.RequestQuote(cmd.Context(), params)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), quote)
		},
	}
}

func (a *app) newPricingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show or replace the pricing configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the pricing configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.apiClient()
			if err != nil {
				return err
			}
			pricing, err := api.FetchPricing(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), pricing)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <pricing-file>",
		Short: "Replace the pricing configuration from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pricing, err := loadPricing(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := a.apiClient()
			if err != nil {
				return err
			}
			if err := api.UpdatePricing(cmd.Context(), pricing); err != nil {
				return err
			}
			a.logger.Info("pricing updated",
				zap.String("op", "cli.pricing.set"),
				zap.Int("materials", len(pricing.Materials)),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Pricing updated.")
			return err
		},
	})
	return cmd
}

func (a *app) newStepCommand() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "step <params-file>",
		Short: "Generate and download a STEP model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			api, err := a.apiClient()
			if err != nil {
				return err
			}

			result, err := api.GenerateStep(cmd.Context(), params)
			if err != nil {
				return err
			}

			var file *client.File
			if result.IsFile() {
				file = &client.File{Filename: result.Filename, ContentType: result.ContentType, Data: result.Data}
			} else {
				a.logger.Debug("downloading generated model",
					zap.String("op", "cli.step"),
					zap.String("href", result.Href),
					zap.String("view_url", result.ViewURL),
				)
				if file, err = api.Download(cmd.Context(), result.Href); err != nil {
					return err
				}
				if result.Filename != "" {
					file.Filename = result.Filename
				}
			}

			dest := filepath.Join(outDir, validation.SanitizeFilename(file.Filename))
			if err := os.WriteFile(dest, file.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}
			a.logger.Info("STEP model saved",
				zap.String("op", "cli.step"),
				zap.String("path", dest),
				zap.Int("bytes", len(file.Data)),
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dest)
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "d", ".", "directory to write the model into")
	return cmd
}
