package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agungkristd/session-switcher/logger"
	"github.com/agungkristd/session-switcher/mcp"
	"github.com/agungkristd/session-switcher/session"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve session tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				DataDir: cfg.DataDir,
				DevMode: cfg.DevMode,
				Level:   cfg.Log.Level,
				Format:  cfg.Log.Format,
				File:    cfg.Log.File,
				Console: os.Stderr,
			})

			store, closeStore, err := openStore(cfg, false)
			if err != nil {
				return err
			}
			defer closeStore()

			driver, closeDriver := openDriver(cfg)
			defer closeDriver()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return mcp.NewServer(session.NewRegistry(store, driver), version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
