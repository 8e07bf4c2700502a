package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"neuravox/internal/state"
)

func newCleanupCommand(cmdCtx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed and failed records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := state.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.CleanupOldRecords(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records older than %s\n", removed, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove terminal records older than this")
	return cmd
}
