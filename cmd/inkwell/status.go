package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project's sync status",
	Long: `Show the current sync status, pending queue depth, and last
successful sync time for the project.

Example usage:
  inkwell status
  inkwell status --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := openEnv(ctx, cmd, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		snap := e.engine.Snapshot()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		fmt.Printf("Project: %s (%s)\n", e.proj.Title, e.proj.ID)
		fmt.Print(ui.RenderSnapshot(snap))
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}
