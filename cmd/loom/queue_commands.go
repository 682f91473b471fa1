package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the workflow queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var state string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow items",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			items, err := client.List(cmd.Context(), state)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.WorkflowListResponse{Items: items})
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No workflow items.")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ID,
					item.EntityID,
					truncate(item.Title, 32),
					item.Status,
					fmt.Sprintf("%.0f%%", item.Progress.Percent),
					truncate(item.ErrorMessage, 40),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Entity", "Title", "Status", "Progress", "Error"}, rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by status, or the views 'active' and 'stuck'")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show one workflow item in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			item, err := client.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, item)
		},
	}
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove failed workflow items",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			removed, err := client.ClearFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d failed workflow item(s)\n", removed)
			return nil
		},
	}
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <workflow-id>",
		Short: "Requeue a failed workflow item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			updated, err := client.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d workflow item(s)\n", updated)
			return nil
		},
	}
	return cmd
}
