package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"midiseq/sequencer"
)

func init() {
	projectsCmd.AddCommand(savesCmd, newProjectCmd, rmProjectCmd, mvProjectCmd, rmSaveCmd, mvSaveCmd)
	rootCmd.AddCommand(projectsCmd)
}

func projectStore() (*sequencer.ProjectStore, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	dir, err := cfg.ProjectsDir()
	if err != nil {
		return nil, "", err
	}
	return sequencer.NewProjectStore(dir), cfg.Project.Name, nil
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List and manage saved projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, current, err := projectStore()
		if err != nil {
			return err
		}
		names, err := store.ListProjects()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "(no projects)")
		}
		for _, n := range names {
			marker := " "
			if n == current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, n)
		}
		return nil
	},
}

var savesCmd = &cobra.Command{
	Use:   "saves [project]",
	Short: "List the saves of a project, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, name, err := projectStore()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			name = args[0]
		}
		saves, err := store.ListSaves(name)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(saves) == 0 {
			fmt.Fprintf(out, "(no saves in %s)\n", name)
		}
		for _, s := range saves {
			fmt.Fprintf(out, "%s  %s  %s\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Filename, s.Name)
		}
		return nil
	},
}

var newProjectCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create an empty project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := projectStore()
		if err != nil {
			return err
		}
		name, err := store.CreateProject(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
		return nil
	},
}

var rmProjectCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a project and all of its saves",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := projectStore()
		if err != nil {
			return err
		}
		if err := store.DeleteProject(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var mvProjectCmd = &cobra.Command{
	Use:   "mv <name> <new-name>",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := projectStore()
		if err != nil {
			return err
		}
		name, err := store.RenameProject(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], name)
		return nil
	},
}

var rmSaveCmd = &cobra.Command{
	Use:   "rm-save <project> <file>",
	Short: "Delete one save",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := projectStore()
		if err != nil {
			return err
		}
		if err := store.DeleteSave(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", args[0], args[1])
		return nil
	},
}

var mvSaveCmd = &cobra.Command{
	Use:   "mv-save <project> <file> <label>",
	Short: "Label a save, keeping its timestamp",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := projectStore()
		if err != nil {
			return err
		}
		file, err := store.RenameSave(args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[1], file)
		return nil
	},
}
