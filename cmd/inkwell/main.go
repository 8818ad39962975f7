// Command inkwell manages the cloud sync subsystem of an Inkwell writing
// project: initializing projects, running the sync daemon, and inspecting
// or repairing sync state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Local-first writing projects with cloud sync",
	Long: `Inkwell keeps writing projects on disk as plain JSON files and
mirrors them to the cloud when a connection and credentials are
available. All editing works offline; sync happens in the background.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().String("project", ".", "Path to the project directory")
}

// loadConfig reads the config file named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
