package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/screenrec/internal/mp4box"
	"github.com/babelcloud/screenrec/internal/util"
)

func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the tracks of a merged MP4 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteInspect(cmd, args[0])
		},
	}
}

func ExecuteInspect(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	res, err := mp4box.Probe(f)
	if err != nil {
		return errors.Wrapf(err, "failed to probe %s", path)
	}

	out := cmd.OutOrStdout()
	layout := color.New(color.FgYellow).Sprint("mdat first")
	if res.FastStart {
		layout = color.New(color.FgGreen).Sprint("moov first")
	}
	fmt.Fprintf(out, "%s: brand %s, %s, duration %s\n\n", path, res.MajorBrand, layout, res.Duration)

	table := util.NewTable("ID", "KIND", "CODEC", "TIMESCALE", "DURATION", "SAMPLES")
	for _, t := range res.Tracks {
		table.AddRow(t.ID, trackKind(t.Codec), t.Codec, t.TimeScale, t.Duration, t.Samples)
	}
	table.Render(out)
	return nil
}

func trackKind(codec string) string {
	switch codec {
	case "avc1":
		return "video"
	case "mp4a":
		return "audio"
	}
	return "unknown"
}
