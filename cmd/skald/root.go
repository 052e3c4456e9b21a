package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skaldlabs/skald-sub002/internal/config"
	"github.com/skaldlabs/skald-sub002/internal/logger"
)

var (
	configFile string
	debug      bool
	pretty     bool
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Skald memo ingestion and retrieval",
	Long:  `Skald turns stored memos into searchable chunks, tags and summaries, and retrieves ranked passages for search and chat.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv(config.ConfigFileEnv), "YAML configuration overlay")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable log output")
}

// setup loads the configuration and installs the logger in ctx.
func setup(ctx context.Context) (context.Context, *config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return ctx, nil, zerolog.Nop(), err
	}

	l := logger.New(logger.Options{
		Debug:  debug || cfg.Log.Debug,
		Pretty: pretty || cfg.Log.Pretty,
		Output: os.Stderr,
	})
	return logger.WithContext(ctx, l), cfg, l, nil
}
