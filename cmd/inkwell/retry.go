package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/syncengine"
	"github.com/inkwell-app/inkwell/internal/ui"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry operations that exhausted their automatic retries",
	Long: `Clear the failure state of operations that exhausted automatic
retries and attempt them again immediately.

Example usage:
  inkwell retry`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := openEnv(ctx, cmd, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		failed := e.engine.Snapshot().FailedCount
		if failed == 0 {
			fmt.Println("Nothing to retry")
			return
		}

		fmt.Printf("Retrying %d failed operation(s)...\n", failed)
		if err := e.engine.ManualRetry(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(ui.RenderSnapshot(e.engine.Snapshot()))
		if e.engine.Status() == syncengine.StatusFailed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
