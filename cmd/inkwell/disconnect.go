package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the project from cloud sync",
	Long: `Remove all sync state for the project: the pending queue, the
identifier mappings, and the link to the remote project. Local files are
untouched. A later sync re-uploads everything as new remote objects.

Example usage:
  inkwell disconnect
  inkwell disconnect --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := openEnv(ctx, cmd, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Disconnect %q from cloud sync?", e.proj.Title)).
				Description("Pending changes and remote links will be forgotten. Local files stay.").
				Affirmative("Disconnect").
				Negative("Cancel").
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		if !confirmed {
			fmt.Println("Cancelled")
			return
		}

		if err := e.engine.Disconnect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Disconnected %q from cloud sync\n", e.proj.Title)
	},
}

func init() {
	disconnectCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(disconnectCmd)
}
