package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var title string
	var sourceRef string
	var payloadFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <entity-id>",
		Short: "Enqueue a product sheet for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID := strings.TrimSpace(args[0])
			if entityID == "" {
				return fmt.Errorf("entity id is required")
			}

			payload := ""
			if payloadFile != "" {
				data, err := os.ReadFile(payloadFile)
				if err != nil {
					return fmt.Errorf("read payload file: %w", err)
				}
				payload = string(data)
			}

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), api.SubmitRequest{
				EntityID:    entityID,
				Title:       strings.TrimSpace(title),
				SourceRef:   strings.TrimSpace(sourceRef),
				PayloadJSON: payload,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if resp.Existing {
				fmt.Fprintf(out, "Entity %s already has an active workflow %s (%s)\n",
					entityID, resp.Item.ID, resp.Item.Status)
				return nil
			}
			fmt.Fprintf(out, "Queued workflow %s for entity %s\n", resp.Item.ID, entityID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Display title for the entity")
	cmd.Flags().StringVar(&sourceRef, "source", "", "Reference to the source product sheet")
	cmd.Flags().StringVar(&payloadFile, "payload", "", "Path to a JSON payload to attach")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}
