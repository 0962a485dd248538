package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/normanking/doctor/internal/config"
	"github.com/normanking/doctor/internal/server"
)

const (
	colID      = "id"
	colRemote  = "remote"
	colState   = "state"
	colTurns   = "turns"
	colStarted = "started"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions [base-url]",
		Short: "List the live sessions of a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			if len(args) == 1 {
				base = args[0]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			sessions, err := fetchSessions(ctx, base)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println(dimStyle.Render("No live sessions."))
				return nil
			}
			fmt.Println(renderSessions(sessions, time.Now()))
			return nil
		},
	}
}

func fetchSessions(ctx context.Context, base string) ([]server.SessionInfo, error) {
	url := strings.TrimSuffix(base, "/") + config.SessionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", url, resp.Status)
	}

	var sr server.SessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sr.Sessions, nil
}

func renderSessions(sessions []server.SessionInfo, now time.Time) string {
	t := table.New([]table.Column{
		table.NewColumn(colID, "ID", 36),
		table.NewColumn(colRemote, "Remote", 22),
		table.NewColumn(colState, "State", 10),
		table.NewColumn(colTurns, "Turns", 6),
		table.NewColumn(colStarted, "Age", 10),
	})

	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, table.NewRow(table.RowData{
			colID:      s.ID,
			colRemote:  s.RemoteAddr,
			colState:   s.State,
			colTurns:   s.Turns,
			colStarted: now.Sub(s.CreatedAt).Round(time.Second).String(),
		}))
	}
	return t.WithRows(rows).View()
}
