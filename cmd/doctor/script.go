package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/script"
)

func scriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Inspect and check rule scripts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a script without starting the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.Script.Path
			if len(args) == 1 {
				path = args[0]
			}
			s, err := script.Load(path)
			if err != nil {
				var me *script.MalformedRuleError
				if errors.As(err, &me) {
					fmt.Println(errorStyle.Render("✗ " + orDefault(path, "built-in") + " is invalid"))
					if me.Keyword != "" {
						fmt.Printf("  Rule:   %s\n", me.Keyword)
					}
					if me.Field != "" {
						fmt.Printf("  Field:  %s\n", me.Field)
					}
					fmt.Printf("  Reason: %s\n", me.Reason)
				}
				return err
			}
			fmt.Println(successStyle.Render("✓ " + orDefault(path, "built-in") + " is valid"))
			fmt.Printf("  Rules:       %d\n", len(s.Rules()))
			fmt.Printf("  Memory size: %d\n", s.MemorySize())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the built-in DOCTOR script as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(script.DoctorSource())
			return err
		},
	})

	var tryScript string
	tryCmd := &cobra.Command{
		Use:   "try <utterance>...",
		Short: "Run utterances through one conversation and print the replies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tryScript == "" {
				tryScript = cfg.Script.Path
			}
			s, err := script.Load(tryScript)
			if err != nil {
				return err
			}
			return tryUtterances(cmd.OutOrStdout(), eliza.New(s, eliza.WithMemorySize(cfg.Session.MemorySize)), args)
		},
	}
	tryCmd.Flags().StringVar(&tryScript, "script", "", "rule script file")
	cmd.AddCommand(tryCmd)

	return cmd
}

// tryUtterances prints each utterance with the reply and the rule that
// produced it.
func tryUtterances(w io.Writer, e *eliza.Engine, utterances []string) error {
	fmt.Fprintln(w, e.Greet())
	for _, u := range utterances {
		reply, err := e.Turn(u)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "> %s\n%s %s\n", u, reply.Text, dimStyle.Render(describe(reply)))
		if reply.Final {
			break
		}
	}
	return nil
}

func describe(r eliza.Reply) string {
	switch {
	case r.Recovered != nil:
		return fmt.Sprintf("[%s, recovered: %v]", r.Source, r.Recovered)
	case r.Keyword != "":
		return fmt.Sprintf("[%s %s]", r.Source, r.Keyword)
	default:
		return fmt.Sprintf("[%s]", r.Source)
	}
}
