package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/soyeahso/qbridge/internal/config"
	"github.com/soyeahso/qbridge/internal/domain"
	"github.com/soyeahso/qbridge/internal/gateway"
	"github.com/soyeahso/qbridge/internal/store"
	"github.com/soyeahso/qbridge/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		live  bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "qbridge %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Core:    %s tls=%v\n", cfg.Core.Address, cfg.Core.TLS.Enabled)
			fmt.Fprintf(out, "Gateway: listen=%s tls=%v\n", cfg.Gateway.Listen, cfg.Gateway.TLS.Enabled)
			if cfg.Gateway.HTTP.Enabled {
				fmt.Fprintf(out, "HTTP:    listen=%s\n", cfg.Gateway.HTTP.Listen)
			}
			fmt.Fprintf(out, "Bridge:  mode=%s backlog=%d\n", cfg.Bridge.Mode, cfg.Bridge.BacklogLimit)
			fmt.Fprintf(out, "Store:   %s\n", cfg.Store.Driver)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			var sessions []domain.SessionInfo
			title := "Recent sessions"
			if live {
				title = "Live sessions"
				sessions, err = fetchLive(cmd.Context(), cfg)
			} else {
				sessions, err = recentSessions(&cfg, limit)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s (%d):\n", title, len(sessions))
			printSessions(out, sessions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "ask the running gateway instead of reading the session log")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of logged sessions to show")

	return cmd
}

// recentSessions reads the session log. Nothing is created when the
// database does not exist yet.
func recentSessions(cfg *config.Config, limit int) ([]domain.SessionInfo, error) {
	if cfg.Store.Driver != "sqlite" {
		return nil, nil
	}
	dbPath := paths.StorePath(cfg)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return store.NewSessionLog(db).Recent(limit)
}

func fetchLive(ctx context.Context, cfg config.Config) ([]domain.SessionInfo, error) {
	if !cfg.Gateway.HTTP.Enabled {
		return nil, errors.New("gateway.http is not enabled")
	}
	auth := gateway.ResolveAuth(cfg.Gateway.Auth)
	if auth.Token == "" {
		return nil, errors.New("no gateway token configured (gateway.auth.token or QBRIDGE_GATEWAY_TOKEN)")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.Gateway.HTTP.Listen+"/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+auth.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querying gateway: %s", resp.Status)
	}

	var st gateway.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return st.Sessions, nil
}

func printSessions(w io.Writer, sessions []domain.SessionInfo) {
	for _, s := range sessions {
		fmt.Fprintf(w, "  %s  %-10s %-12s %s", s.StartedAt.Local().Format(time.DateTime), s.Status, s.User, s.Remote)
		if s.Protocol != "" {
			fmt.Fprintf(w, " %s", s.Protocol)
		}
		if s.NetworkID.Valid() {
			fmt.Fprintf(w, " network=%s", s.NetworkID)
		}
		if s.LastError != "" {
			fmt.Fprintf(w, " error=%q", s.LastError)
		}
		fmt.Fprintln(w)
	}
}
