package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harmony-graphql/internal/serverapp"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and compile the model file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := serverapp.SchemaSDL(cfg); err != nil {
				return fmt.Errorf("model file %s: %w", cfg.Models.File, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration and model file %s are valid\n", cfg.Models.File)
			return nil
		},
	}
}
