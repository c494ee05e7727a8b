package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/config"
)

func addConfigCommand(parent *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after layering defaults, ~/.forge/config.yaml,
.forge/config.yaml (or --config), and FORGE_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.Context(), a)
		},
	})
	parent.AddCommand(cmd)
}

func runConfigShow(ctx context.Context, a *app) error {
	cfg, err := LoadConfig(GetLogger().WithContext(ctx), a.flags)
	if err != nil {
		return err
	}
	if a.flags.Output == OutputJSON {
		return a.output().JSON(cfg)
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = a.out.Write(data)
	return err
}
