package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/galactic-archives/internal/config"
	"github.com/dukerupert/galactic-archives/internal/logging"
)

var Version = "1.0.0"

func main() {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "archives",
		Short:         "Galactic Archives notes API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read for unset variables (ignored when missing)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat, nil), nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(migrateCmd(load))
	rootCmd.AddCommand(seedCmd(load))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loader func() (*config.Config, *slog.Logger, error)
