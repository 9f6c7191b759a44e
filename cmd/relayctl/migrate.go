package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tipvault/relayer/src/app"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate <up|down>",
	Short:     "Apply or roll back the relay table migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
		config, err := app.LoadAppConfig(os.Getenv)
		if err != nil {
			return err
		}

		if args[0] == "down" {
			if err := app.MigrationDown(config.DSN, config.MigrationPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
			return nil
		}

		version, err := app.MigrationUp(config.DSN, config.MigrationPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
