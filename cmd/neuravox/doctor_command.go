package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"neuravox/internal/preflight"
)

func newDoctorCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, directories, and provider reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			colorize := isTerminal(os.Stdout)
			failures := 0
			for _, result := range results {
				label := "OK"
				color := ansiGreen
				if !result.Passed {
					failures++
					label = "FAIL"
					color = ansiRed
				}
				if colorize {
					label = color + label + ansiReset
				}
				fmt.Fprintf(out, "  %-22s [%s] %s\n", result.Name+":", label, result.Detail)
			}
			if failures > 0 {
				return fmt.Errorf("%d preflight checks failed", failures)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
