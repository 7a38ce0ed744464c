package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/beacon/internal/config"
	"github.com/user/beacon/pkg/engine"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "agent",
		Short: "beacon is a metrics and log collection agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the TOML pipeline configuration")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := engine.NewDefaultLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("agent: load config: %w", err)
	}

	eng := engine.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		if err := eng.Shutdown(); err != nil {
			logger.Warn("shutdown request failed", "err", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
