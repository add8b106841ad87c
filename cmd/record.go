package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/screenrec/config"
	"github.com/babelcloud/screenrec/internal/capture"
	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/progress"
	"github.com/babelcloud/screenrec/internal/session"
	"github.com/babelcloud/screenrec/internal/util"
)

type RecordOptions struct {
	VideoPath    string
	AppAudioPath string
	MicAudioPath string
	FrameRate    float64
	Realtime     bool
	Output       string
	ProgressAddr string
	PauseAt      time.Duration
	ResumeAt     time.Duration
}

func NewRecordCommand() *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "record --video FILE [flags]",
		Short: "Record elementary streams into a merged MP4",
		Long: `Record replays an H.264 Annex-B video stream and optional ADTS AAC audio
streams through a recording session. The video goes to one intermediate file,
both audio streams to another, and the two are merged into a single MP4 when
the input ends or the command is interrupted.`,
		Example: `  # Record a video stream with application audio
  screenrec record --video screen.h264 --app-audio app.aac

  # Pace input in real time and stream progress over websocket
  screenrec record --video screen.h264 --realtime --progress-addr 127.0.0.1:8089

  # Drop everything between 2s and 4s of capture time
  screenrec record --video screen.h264 --pause-at 2s --resume-at 4s -o out.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteRecord(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.VideoPath, "video", "", "H.264 Annex-B video stream")
	flags.StringVar(&opts.AppAudioPath, "app-audio", "", "ADTS AAC application audio stream")
	flags.StringVar(&opts.MicAudioPath, "mic-audio", "", "ADTS AAC microphone audio stream")
	flags.Float64Var(&opts.FrameRate, "fps", capture.DefaultFrameRate, "Video frame rate used to derive timestamps")
	flags.BoolVar(&opts.Realtime, "realtime", false, "Deliver samples at capture pace")
	flags.StringVarP(&opts.Output, "output", "o", "", "Move the merged file to this path")
	flags.StringVar(&opts.ProgressAddr, "progress-addr", "", "Serve elapsed time over websocket on this address")
	flags.DurationVar(&opts.PauseAt, "pause-at", 0, "Pause the recording at this capture time")
	flags.DurationVar(&opts.ResumeAt, "resume-at", 0, "Resume the recording at this capture time")
	cmd.MarkFlagRequired("video")

	return cmd
}

func ExecuteRecord(cmd *cobra.Command, opts *RecordOptions) error {
	return recordFrom(cmd, opts, &capture.FileSource{
		VideoPath:    opts.VideoPath,
		AppAudioPath: opts.AppAudioPath,
		MicAudioPath: opts.MicAudioPath,
		FrameRate:    opts.FrameRate,
		Realtime:     opts.Realtime,
	})
}

// recordFrom runs src through a session and finalizes it. When src fails
// after samples were recorded, the partial recording is kept in the
// workspace and its path is part of the returned error.
func recordFrom(cmd *cobra.Command, opts *RecordOptions, src media.Source) error {
	logger := util.GetLogger()

	if opts.ResumeAt != 0 && opts.ResumeAt < opts.PauseAt {
		return errors.New("--resume-at must not be before --pause-at")
	}
	if opts.ProgressAddr == "" {
		opts.ProgressAddr = config.GetProgressAddr()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := workspaceFromConfig()
	if err != nil {
		return err
	}
	videoSettings, err := videoSettingsFromConfig()
	if err != nil {
		return err
	}
	audioSettings, err := audioSettingsFromConfig()
	if err != nil {
		return err
	}
	exportSettings, err := exportSettingsFromConfig()
	if err != nil {
		return err
	}

	hub := progress.NewHub()
	defer hub.Close()

	sess, err := session.New(ws,
		session.WithVideoSettings(videoSettings),
		session.WithAudioSettings(audioSettings),
		session.WithExportSettings(exportSettings),
		session.WithWriterOptions(writerOptionsFromConfig()...),
		session.WithProgress(hub.Publish),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create recording session")
	}

	if opts.ProgressAddr != "" {
		shutdown, err := serveProgress(opts.ProgressAddr, hub)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	sp := NewUISpinner(util.IsVerbose(), "Recording...")
	sess.OnElapsed(func(seconds float64) {
		sp.Update(fmt.Sprintf("Recording... %.1fs", seconds))
	})

	runErr := src.Run(ctx, pauseWindow(sess, opts.PauseAt, opts.ResumeAt))
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		logger.Warn("Capture source stopped", "error", runErr)
	}

	sp.Update("Merging...")
	sess.Finalize(hub.Complete)
	path, err := sess.Wait(context.Background())
	if runErr != nil {
		if err == nil {
			sp.Fail(fmt.Sprintf("Capture failed, partial recording kept at %s", path))
			return errors.Wrapf(runErr, "capture failed, partial recording kept at %s", path)
		}
		sp.Fail("Recording failed")
		return errors.Wrap(runErr, "failed to read capture input")
	}
	if err != nil {
		sp.Fail("Recording failed")
		return err
	}

	if opts.Output != "" {
		if err := moveFile(path, opts.Output); err != nil {
			sp.Fail("Failed to move recording")
			return err
		}
		path = opts.Output
	}

	sp.Success(fmt.Sprintf("Saved %s (%.2fs)", path, sess.Elapsed().Seconds()))
	printStats(cmd.OutOrStdout(), sess.Stats())
	return nil
}

// pauseWindow routes samples to the session, pausing it while the sample
// timestamp lies in [pauseAt, resumeAt). A zero resumeAt pauses until the end.
func pauseWindow(sess *session.Session, pauseAt, resumeAt time.Duration) media.Sink {
	if pauseAt <= 0 {
		return sess
	}
	return media.SinkFunc(func(buf *media.SampleBuffer, t media.SampleType) {
		paused := buf.PTS >= pauseAt && (resumeAt == 0 || buf.PTS < resumeAt)
		if paused != sess.Paused() {
			sess.SetPaused(paused)
		}
		sess.Submit(buf, t)
	})
}

func serveProgress(addr string, hub *progress.Hub) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/progress", hub)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          util.NewStdLogger(slog.LevelWarn),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.GetLogger().Error("Progress server stopped", "error", err)
		}
	}()

	fmt.Printf("Progress stream: %s\n", color.New(color.FgCyan).Sprintf("ws://%s/progress", ln.Addr()))

	return func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// moveFile renames src to dst, copying through an atomically replaced file
// when the rename crosses file systems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", dst)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer out.Cleanup()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy recording to %s", dst)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return errors.Wrapf(err, "failed to replace %s", dst)
	}
	in.Close()
	return os.Remove(src)
}

func printStats(w io.Writer, stats session.Stats) {
	faint := color.New(color.Faint)
	for _, t := range []media.SampleType{
		media.SampleTypeVideo,
		media.SampleTypeApplicationAudio,
		media.SampleTypeMicrophoneAudio,
	} {
		c := stats.For(t)
		if c.Appended == 0 && c.DroppedPaused == 0 && c.DroppedNotReady == 0 {
			continue
		}
		faint.Fprintf(w, "  %-16s appended %d, paused %d, not ready %d, early %d, failed %d\n",
			t, c.Appended, c.DroppedPaused, c.DroppedNotReady, c.DroppedEarly, c.AppendFailed)
	}
}
