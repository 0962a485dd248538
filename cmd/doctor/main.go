// Package main is the doctor command: the WebSocket ELIZA server plus local
// and remote chat front ends.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/normanking/doctor/internal/config"
	"github.com/normanking/doctor/internal/logging"
	"github.com/normanking/doctor/internal/server"
)

var (
	// Version information (set at build time)
	version = "dev"

	cfgPath string
	verbose bool
	logFile string
	noColor bool

	cfg    *config.Config
	logger *logging.Logger

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#0d7377"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

func main() {
	server.Version = version

	rootCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Doctor - the ELIZA psychotherapist over WebSocket",
		Long: titleStyle.Render("Doctor") + `

A rule-driven ELIZA conversation server:
  • One independent conversation per WebSocket connection
  • Scripts in YAML, with the classic DOCTOR script built in
  • Terminal chat against a local engine or a remote server

Start the server:   doctor serve
Chat locally:       doctor chat
Chat with a server: doctor connect ws://localhost:8080/eliza`,
		Version:           version,
		PersistentPreRunE: initLogging,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ./config.yaml or ~/.config/doctor/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("doctor %s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(scriptCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// initLogging loads the configuration and installs the global logger.
// Full-screen commands keep the console quiet unless a log file is set.
func initLogging(cmd *cobra.Command, args []string) error {
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	lc := &logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	}
	if verbose {
		lc = logging.VerboseConfig()
		lc.FilePath = cfg.Logging.File
	}
	if logFile != "" {
		lc.FilePath = logFile
	}
	if cmd.Annotations["fullscreen"] == "true" {
		if plain, _ := cmd.Flags().GetBool("plain"); !plain {
			lc.Quiet = true
		}
	}

	logger, err = logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Debug().Str("config", cfgPath).Str("command", cmd.Name()).Msg("doctor starting")
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(titleStyle.Render("Doctor Configuration"))
			fmt.Println("────────────────────")
			fmt.Printf("Listen:        %s%s\n", cfg.Addr(), cfg.Server.Path)
			fmt.Printf("Events:        %s\n", orNone(cfg.Server.EventsPath))
			fmt.Printf("Max message:   %d bytes\n", cfg.Server.MaxMessageBytes)
			fmt.Printf("Script:        %s\n", orDefault(cfg.Script.Path, "built-in DOCTOR"))
			fmt.Printf("Memory size:   %s\n", orDefault(intString(cfg.Session.MemorySize), "from script"))
			fmt.Printf("Separator:     %s\n", orNone(cfg.Session.Separator))
			fmt.Printf("Log level:     %s (%s)\n", cfg.Logging.Level, cfg.Logging.Format)
			if cfg.Metrics.Enabled {
				fmt.Printf("Metrics:       %s\n", cfg.Metrics.Path)
			} else {
				fmt.Printf("Metrics:       %s\n", dimStyle.Render("disabled"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.GetConfigPath())
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = config.GetConfigPath()
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Default().SaveToFile(path); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("✓ Wrote " + path))
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func orNone(s string) string {
	return orDefault(s, "none")
}

func orDefault(s, def string) string {
	if s == "" {
		return dimStyle.Render(def)
	}
	return s
}

func intString(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}
