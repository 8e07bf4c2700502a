package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"neuravox/internal/pipeline"
)

func newProcessCommand(cmdCtx *commandContext) *cobra.Command {
	var model string
	var concurrency int

	cmd := &cobra.Command{
		Use:   "process <file> [file...]",
		Short: "Split audio files on silence and optionally transcribe them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency > 0 {
				cfg, err := cmdCtx.ensureConfig()
				if err != nil {
					return err
				}
				cfg.Pipeline.MaxConcurrent = concurrency
			}
			return cmdCtx.withPipeline(func(ctx context.Context, o *pipeline.Orchestrator) error {
				results := o.ProcessBatch(ctx, args, model)
				return reportResults(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Transcription model override")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override the configured concurrency ceiling")
	return cmd
}

// reportResults renders one row per input file and returns an error when any
// file failed, so the process exit code reflects partial failures.
func reportResults(out io.Writer, results []pipeline.FileResult) error {
	rows := make([][]string, 0, len(results))
	failures := 0
	for _, res := range results {
		chunks := "-"
		if res.Metadata != nil {
			chunks = strconv.Itoa(len(res.Metadata.Chunks))
		}
		transcript := "-"
		if res.Transcript != nil {
			transcript = res.Transcript.TranscriptPath
		}
		outcome := "ok"
		if res.Err != nil {
			failures++
			outcome = res.Err.Error()
		}
		rows = append(rows, []string{filepath.Base(res.Path), res.FileID, chunks, transcript, outcome})
	}

	fmt.Fprintln(out, renderTable([]string{"File", "ID", "Chunks", "Transcript", "Result"}, rows, 2))
	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(results))
	}
	return nil
}
