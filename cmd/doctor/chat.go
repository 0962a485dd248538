package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/doctor/internal/client"
	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/logging"
	"github.com/normanking/doctor/internal/script"
	"github.com/normanking/doctor/internal/tui"
)

func chatCmd() *cobra.Command {
	var (
		scriptPath string
		plain      bool
	)

	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Talk to the doctor in this terminal",
		Annotations: map[string]string{"fullscreen": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if scriptPath == "" {
				scriptPath = cfg.Script.Path
			}
			s, err := script.Load(scriptPath)
			if err != nil {
				return err
			}

			engine := eliza.New(s,
				eliza.WithSessionID("local"),
				eliza.WithMemorySize(cfg.Session.MemorySize),
				eliza.WithLogger(logging.WithComponent("eliza")),
			)
			sess := tui.NewLocalSession(engine)
			defer sess.Close()

			if plain {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return runPlain(ctx, sess, os.Stdin, os.Stdout)
			}
			return tui.Run(sess, tui.Options{Mode: "local", CharLimit: int(cfg.Server.MaxMessageBytes)})
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "rule script file (default: script.path or the built-in DOCTOR)")
	cmd.Flags().BoolVar(&plain, "plain", false, "line mode: read stdin, print replies")
	return cmd
}

func connectCmd() *cobra.Command {
	var (
		plain     bool
		separator string
		retries   int
	)

	cmd := &cobra.Command{
		Use:         "connect [url]",
		Short:       "Talk to a running doctor server",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"fullscreen": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("ws://localhost:%d%s", cfg.Server.Port, cfg.Server.Path)
			if len(args) == 1 {
				url = args[0]
			}
			if !cmd.Flags().Changed("separator") {
				separator = cfg.Session.Separator
			}

			opts := client.DefaultOptions()
			opts.MaxRetries = retries
			opts.MaxMessageBytes = cfg.Server.MaxMessageBytes

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			c, err := client.Dial(dialCtx, url, opts)
			cancel()
			if err != nil {
				return err
			}
			sess := tui.NewRemoteSession(c, separator)
			defer sess.Close()

			if plain {
				return runPlain(ctx, sess, os.Stdin, os.Stdout)
			}
			return tui.Run(sess, tui.Options{Mode: url, CharLimit: int(opts.MaxMessageBytes)})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "line mode: read stdin, print replies")
	cmd.Flags().StringVar(&separator, "separator", "", "frame to hide between replies (default: session.separator)")
	cmd.Flags().IntVar(&retries, "retries", 3, "connection attempts")
	return cmd
}
