package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"neuravox/internal/pipeline"
	"neuravox/internal/state"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status [file-id]",
		Short: "Show pipeline state, or one file's stage history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withPipeline(func(ctx context.Context, o *pipeline.Orchestrator) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					status, err := o.FileStatus(ctx, args[0])
					if err != nil {
						return err
					}
					renderFileStatus(out, status)
					return nil
				}

				summary, err := o.Status(ctx, recent)
				if err != nil {
					return err
				}
				renderSummary(out, summary)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 10, "Number of recent stage events to show")
	return cmd
}

func renderSummary(out io.Writer, summary *state.Summary) {
	order := []state.Status{
		state.StatusPending, state.StatusProcessing, state.StatusProcessed,
		state.StatusTranscribing, state.StatusTranscribed,
		state.StatusCompleted, state.StatusFailed,
	}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		count, ok := summary.StatusCounts[status]
		if !ok {
			continue
		}
		rows = append(rows, []string{colorStatus(string(status)), strconv.Itoa(count)})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No files tracked yet")
		return
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Files"}, rows, 1))

	if len(summary.RecentActivity) > 0 {
		activity := make([][]string, 0, len(summary.RecentActivity))
		for _, row := range summary.RecentActivity {
			activity = append(activity, []string{
				row.FileID, row.Stage, colorStatus(string(row.Status)),
				row.StartedAt.Local().Format(time.DateTime),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"File", "Stage", "Status", "Started"}, activity))
	}
}

func renderFileStatus(out io.Writer, status *state.FileStatus) {
	fmt.Fprintf(out, "File:    %s\n", status.File.FileID)
	fmt.Fprintf(out, "Source:  %s\n", status.File.OriginalPath)
	fmt.Fprintf(out, "Status:  %s\n", colorStatus(string(status.File.Status)))
	if status.File.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:   %s\n", status.File.ErrorMessage)
	}

	rows := make([][]string, 0, len(status.Stages))
	for _, row := range status.Stages {
		completed := "-"
		if row.CompletedAt != nil {
			completed = row.CompletedAt.Local().Format(time.DateTime)
		}
		detail := row.Metadata
		if row.ErrorMessage != "" {
			detail = row.ErrorMessage
		}
		rows = append(rows, []string{
			row.Stage, colorStatus(string(row.Status)),
			row.StartedAt.Local().Format(time.DateTime), completed, detail,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Status", "Started", "Completed", "Detail"}, rows))
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func colorStatus(status string) string {
	if !isTerminal(os.Stdout) {
		return status
	}
	switch status {
	case "completed":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "processing", "transcribing", "started":
		return ansiYellow + status + ansiReset
	default:
		return status
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
