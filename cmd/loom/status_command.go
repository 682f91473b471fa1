package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			running := "stopped"
			if status.Running {
				running = "running"
			}
			if stdoutIsTerminal() {
				color := ansiRed
				if status.Running {
					color = ansiGreen
				}
				running = color + running + ansiReset
			}
			fmt.Fprintf(out, "Daemon: %s (pid %d)\n", running, status.PID)
			fmt.Fprintf(out, "Database: %s\n", status.DatabasePath)
			if status.Workflow.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", status.Workflow.LastError)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderStageHealth(status.Workflow.StageHealth))
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderQueueStats(status.Workflow.QueueStats))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func renderStageHealth(health []api.StageHealth) string {
	rows := make([][]string, 0, len(health))
	for _, item := range health {
		ready := "ready"
		if !item.Ready {
			ready = "not ready"
		}
		rows = append(rows, []string{item.Name, ready, item.Detail})
	}
	return renderTable([]string{"Stage", "State", "Detail"}, rows)
}

func renderQueueStats(stats map[string]int) string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprint(stats[key])})
	}
	if len(rows) == 0 {
		return "Queue is empty."
	}
	return renderTable([]string{"Status", "Count"}, rows)
}

func truncate(value string, max int) string {
	trimmed := strings.TrimSpace(value)
	if max <= 3 || len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max-3] + "..."
}
