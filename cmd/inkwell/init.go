package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [title]",
	Short: "Create a new Inkwell project in the current directory",
	Long: `Create a new Inkwell project: a project.json metadata file plus
empty chapters/ and entities/ directories.

Example usage:
  inkwell init "My Novel"
  inkwell init "My Novel" --project ~/writing/novel`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root, _ := cmd.Flags().GetString("project")
		layout := project.Layout{Root: root}

		if _, err := os.Stat(layout.ProjectPath()); err == nil {
			fmt.Fprintf(os.Stderr, "Error: project already exists at %s\n", layout.ProjectPath())
			os.Exit(1)
		}

		proj := project.NewProject(args[0])
		if author, _ := cmd.Flags().GetString("author"); author != "" {
			proj.Author = author
		}

		if err := project.WriteProjectFile(layout, proj); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, dir := range []string{layout.ChaptersDir(), layout.EntitiesDir()} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		// Write a default config the first time, so 'inkwell sync' works
		// out of the box. An existing config is left alone.
		cfgPath, _ := cmd.Flags().GetString("config")
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := config.WriteDefault(cfgPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not write default config: %v\n", err)
			} else {
				fmt.Printf("Wrote default config to %s\n", cfgPath)
			}
		}

		fmt.Printf("Initialized project %q (%s)\n", proj.Title, proj.ID)
	},
}

func init() {
	initCmd.Flags().String("author", "", "Project author")
	rootCmd.AddCommand(initCmd)
}
