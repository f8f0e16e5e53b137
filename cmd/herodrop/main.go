/**
 * @description
 * Entry point for the HeroDrop+ rewards service. Subcommands:
 *   serve      HTTP API, donation-event consumer and reminder scheduler
 *   migrate    apply the embedded PostgreSQL migrations
 *   broadcast  send one admin broadcast SMS
 *
 * @dependencies
 * - github.com/spf13/cobra: command tree and flags.
 * - github.com/joho/godotenv: loads .env during local development.
 */

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/herodrop/rewards-service/internal/config"
	"github.com/herodrop/rewards-service/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "herodrop",
	Short:         "HeroDrop+ donor rewards service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
		}
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding an optional .env file")
	rootCmd.AddCommand(serveCmd, migrateCmd, broadcastCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
