package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babelcloud/screenrec/config"
	"github.com/babelcloud/screenrec/internal/util"
	"github.com/babelcloud/screenrec/internal/version"
)

func NewRootCommand() *cobra.Command {
	var (
		verbose    bool
		configFile string
	)

	rootCmd := &cobra.Command{
		Use:   "screenrec",
		Short: "Screen recording writer and merger",
		Long: `screenrec records a screen capture stream into two intermediate MP4 files,
one with the video track and one with the application and microphone audio
tracks, and merges them into a single MP4 once the recording is finalized.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(verbose)
			if configFile != "" {
				return config.LoadFile(configFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("version").Changed {
				fmt.Fprintln(cmd.OutOrStdout(), version.Get())
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file")
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewWorkspaceCommand())
	rootCmd.AddCommand(NewVersionCommand())

	// Enable custom help output ordering
	setupHelpCommand(rootCmd)

	return rootCmd
}

func Execute() error {
	return NewRootCommand().Execute()
}
