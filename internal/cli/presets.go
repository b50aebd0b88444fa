package cli

import (
	"fmt"

	"github.com/iwvelando/tank-quote/internal/client"
	"github.com/iwvelando/tank-quote/internal/presets"
	"github.com/iwvelando/tank-quote/pkg/constants"
	"github.com/spf13/cobra"
)

func (a *app) newPresetsCommand() *cobra.Command {
	var local bool

	// openStore builds the store over the configured source. The client is
	// nil for the local source; the returned func releases the source.
	openStore := func(cmd *cobra.Command) (*presets.Store, *client.Client, func(), error) {
		source := a.conf.Presets.Source
		if local {
			source = constants.PresetSourceLocal
		}

		switch source {
		case constants.PresetSourceLocal:
			src, err := presets.OpenLocalSource(cmd.Context(), a.conf.Presets.Database)
			if err != nil {
				return nil, nil, nil, err
			}
			return presets.NewStore(src, a.logger), nil, func() { _ = src.Close() }, nil
		case constants.PresetSourceBackend:
			api, err := a.apiClient()
			if err != nil {
				return nil, nil, nil, err
			}
			return presets.NewStore(presets.NewRemoteSource(api), a.logger), api, func() {}, nil
		default:
			return nil, nil, nil, fmt.Errorf("unknown preset source %q", source)
		}
	}

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage saved tank presets",
	}
	cmd.PersistentFlags().BoolVar(&local, "local", false, "use the local preset database instead of the backend")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			list, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), list)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Show one preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, api, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			if api != nil {
				preset, err := api.GetPreset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), preset)
			}
			list, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range list {
				if p.Name == args[0] {
					return a.render(cmd.OutOrStdout(), p)
				}
			}
			return fmt.Errorf("preset %q not found", args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <params-file>",
		Short: "Save a preset, replacing any with the same name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadParams(args[1], cmd.InOrStdin())
			if err != nil {
				return err
			}
			store, _, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := store.Save(cmd.Context(), args[0], params); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %s.\n", args[0])
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, done, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer done()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %s.\n", args[0])
			return err
		},
	})
	return cmd
}
