package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"neuravox/internal/pipeline"
)

func newResumeCommand(cmdCtx *commandContext) *cobra.Command {
	var model string
	var retry bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "List failed files, or re-run them with --retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withPipeline(func(ctx context.Context, o *pipeline.Orchestrator) error {
				out := cmd.OutOrStdout()
				if !retry {
					failed, err := o.ListFailed(ctx)
					if err != nil {
						return err
					}
					if len(failed) == 0 {
						fmt.Fprintln(out, "No failed files to resume")
						return nil
					}
					rows := make([][]string, 0, len(failed))
					for _, entry := range failed {
						rows = append(rows, []string{
							entry.FileID, entry.OriginalPath, entry.ErrorMessage,
							entry.UpdatedAt.Local().Format(time.DateTime),
						})
					}
					fmt.Fprintln(out, renderTable([]string{"File", "Source", "Error", "Failed At"}, rows))
					fmt.Fprintln(out, "Run `neuravox resume --retry` to re-process these files")
					return nil
				}

				results, err := o.ResumeFailed(ctx, model)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No failed files to resume")
					return nil
				}
				return reportResults(out, results)
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Transcription model override")
	cmd.Flags().BoolVar(&retry, "retry", false, "Re-process the failed files instead of listing them")
	return cmd
}
