package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/qbridge/internal/bridge"
	"github.com/soyeahso/qbridge/internal/config"
	"github.com/soyeahso/qbridge/internal/gateway"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var (
		core    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Ask the core which protocol it speaks, without logging in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if core != "" {
				cfg.Core.Address = core
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d := gateway.CoreDialer(cfg.Core)
			res, err := bridge.Probe(ctx, d, log)
			if err != nil {
				return fmt.Errorf("probing %s: %w", cfg.Core.Address, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Core:     %s (tls=%v)\n", cfg.Core.Address, d.Encrypted())
			fmt.Fprintf(out, "Protocol: %s\n", res.Candidate)
			if res.Fallback {
				fmt.Fprintln(out, "Note:     the core closed the connection on the probe; sessions will use the legacy protocol")
			} else {
				fmt.Fprintf(out, "Features: %#04x\n", res.Candidate.Features)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&core, "core", "", "Quassel core address (overrides config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "give up after this long")

	return cmd
}
