package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/doctor/internal/bus"
	"github.com/normanking/doctor/internal/metrics"
	"github.com/normanking/doctor/internal/script"
	"github.com/normanking/doctor/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		host       string
		port       int
		path       string
		scriptPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("path") {
				cfg.Server.Path = path
			}
			if flags.Changed("script") {
				cfg.Script.Path = scriptPath
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			s, err := script.Load(cfg.Script.Path)
			if err != nil {
				log.Error().Err(err).Str("script", cfg.Script.Path).Msg("script rejected")
				return err
			}
			name := cfg.Script.Path
			if name == "" {
				name = "built-in"
			}
			log.Info().
				Str("script", name).
				Int("rules", len(s.Rules())).
				Msg("script loaded")

			events := bus.NewBus()
			defer events.Close()
			if cfg.Metrics.Enabled {
				collector := metrics.Attach(events)
				defer collector.Detach()
			}

			srv := server.New(cfg, s, events)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, server.ErrShuttingDown) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("shutdown incomplete")
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().StringVar(&path, "path", "", "WebSocket path (overrides server.path)")
	cmd.Flags().StringVar(&scriptPath, "script", "", "rule script file (overrides script.path)")
	return cmd
}
