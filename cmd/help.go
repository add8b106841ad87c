package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// Setup help command
func setupHelpCommand(rootCmd *cobra.Command) {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != cmd.Root() {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		printRootHelpOrdered(cmd.OutOrStdout(), cmd)
	})
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:   "help",
		Short: "Show help information",
		Run: func(cmd *cobra.Command, args []string) {
			printRootHelpOrdered(cmd.OutOrStdout(), cmd.Root())
		},
	})
}

// printRootHelpOrdered prints the root help with commands ordered by a custom priority
func printRootHelpOrdered(w io.Writer, cmd *cobra.Command) {
	priority := []string{"record", "inspect", "workspace", "version", "completion", "help"}
	priorityIndex := map[string]int{}
	for i, name := range priority {
		priorityIndex[name] = i
	}

	if cmd.Long != "" {
		fmt.Fprintln(w, cmd.Long)
	} else if cmd.Short != "" {
		fmt.Fprintln(w, cmd.Short)
	}

	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintf(w, "  %s [flags]\n", cmd.Name())
	fmt.Fprintf(w, "  %s [command]\n", cmd.Name())

	commands := []*cobra.Command{}
	for _, c := range cmd.Commands() {
		if !c.IsAvailableCommand() || c.Hidden {
			continue
		}
		commands = append(commands, c)
	}

	// Custom sort by priority, then by name
	sort.SliceStable(commands, func(i, j int) bool {
		ci, cj := commands[i], commands[j]
		pi, okI := priorityIndex[ci.Name()]
		pj, okJ := priorityIndex[cj.Name()]
		if okI && okJ {
			return pi < pj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return ci.Name() < cj.Name()
	})

	fmt.Fprintln(w, "\nAvailable Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.Name(), c.Short)
	}

	fmt.Fprintln(w, "\nFlags:")
	fmt.Fprint(w, cmd.Flags().FlagUsages())

	fmt.Fprintf(w, "\nUse \"%s [command] --help\" for more information about a command.\n", cmd.Name())
}
