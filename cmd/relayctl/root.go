package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tipvault/relayer/src/app"
)

var (
	envFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "relayctl",
		Short: "Relay contract calls without a running server",
		Long: `relayctl runs the relay pipeline in-process against the configured
node, bundler and paymaster. It reads the same environment as the server
but needs no database or cache.

Such as "relayctl send --caller 0x.. --function claim --arg 100" or "relayctl receipt 0x.."
`,
		SilenceUsage: true,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")
}

// loadPipeline reads the configuration and connects the relay stages.
func loadPipeline(ctx context.Context) (context.Context, *app.AppConfig, *app.RelayPipeline, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Overload(envFile); err != nil {
			return ctx, nil, nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	config, err := app.LoadPipelineConfig(os.Getenv)
	if err != nil {
		return ctx, nil, nil, err
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	ctx = logger.WithContext(ctx)

	pipeline, err := app.NewRelayPipeline(ctx, config)
	if err != nil {
		return ctx, nil, nil, err
	}
	return ctx, config, pipeline, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
