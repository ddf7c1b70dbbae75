package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Agent iterations: %d, metrics: %v\n", cfg.Agent.MaxIterations, cfg.Server.MetricsEnabled)

			if gitPath, err := exec.LookPath("git"); err != nil {
				fmt.Fprintln(out, "git: NOT FOUND (repository snapshots will fail)")
			} else {
				fmt.Fprintf(out, "git: %s\n", gitPath)
			}
			return nil
		},
	}
}
