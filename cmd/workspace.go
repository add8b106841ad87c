package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/babelcloud/screenrec/internal/util"
)

func NewWorkspaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Show or clean the recording workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteWorkspaceShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the workspace directory and its files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ExecuteWorkspaceShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove intermediate and merged files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ExecuteWorkspaceClean(cmd)
			},
		},
	)

	return cmd
}

func ExecuteWorkspaceShow(cmd *cobra.Command) error {
	ws, err := workspaceFromConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace: %s\n\n", color.New(color.FgCyan).Sprint(ws.Dir()))

	table := util.NewTable("ROLE", "PATH", "SIZE")
	for _, f := range []struct{ role, path string }{
		{"video", ws.VideoPath()},
		{"audio", ws.AudioPath()},
		{"output", ws.OutputPath()},
	} {
		size := color.New(color.Faint).Sprint("-")
		if info, err := os.Stat(f.path); err == nil {
			size = fmt.Sprintf("%d", info.Size())
		}
		table.AddRow(f.role, f.path, size)
	}
	table.Render(out)
	return nil
}

func ExecuteWorkspaceClean(cmd *cobra.Command) error {
	ws, err := workspaceFromConfig()
	if err != nil {
		return err
	}
	if err := ws.ClearAll(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleaned %s\n", ws.Dir())
	return nil
}
