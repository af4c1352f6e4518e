package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/qbridge/internal/config"
	"github.com/soyeahso/qbridge/internal/gateway"
	"github.com/soyeahso/qbridge/internal/hooks"
	"github.com/soyeahso/qbridge/internal/logging"
	"github.com/soyeahso/qbridge/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		listen string
		core   string
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway and bridge IRC clients to the core",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if listen != "" {
				cfg.Gateway.Listen = listen
			}
			if core != "" {
				cfg.Core.Address = core
			}
			if mode != "" {
				cfg.Bridge.Mode = mode
			}

			if err := reportIssues(config.Validate(&cfg)); err != nil {
				return err
			}

			// The config file decides the level unless --log-level was given.
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}

			w, closeLog, err := logging.Output(cfg.Logging.ConsoleStyle, paths.LogFile(&cfg))
			if err != nil {
				return err
			}
			defer closeLog()
			log = logging.New(w, level)

			hookMgr := hooks.NewManager(log)
			hookMgr.FromConfig(cfg.Hooks)

			opts := []gateway.ServerOption{gateway.WithHooks(hookMgr)}

			switch cfg.Store.Driver {
			case "memory":
				opts = append(opts, gateway.WithState(store.NewMemoryState()))
				log.Info().Msg("using in-memory state; resume cursors are lost on restart")
			default:
				dbPath := paths.StorePath(&cfg)
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				opts = append(opts,
					gateway.WithState(store.NewSQLiteState(db)),
					gateway.WithSessionLog(store.NewSessionLog(db)),
				)
				log.Info().Str("path", dbPath).Msg("using SQLite state")
			}

			srv, err := gateway.New(cfg, log, opts...)
			if err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "IRC listen address (overrides config)")
	cmd.Flags().StringVar(&core, "core", "", "Quassel core address (overrides config)")
	cmd.Flags().StringVar(&mode, "mode", "", "outbound translation mode: rich, quote or strict")

	return cmd
}

func reportIssues(issues []config.ValidationIssue) error {
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}
