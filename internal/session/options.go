package session

import (
	"log/slog"

	"k8s.io/utils/clock"

	"github.com/babelcloud/screenrec/internal/merge"
	"github.com/babelcloud/screenrec/internal/writer"
)

const (
	// DefaultWidth and DefaultHeight are the pixel geometry of the presenting
	// display used when no video settings are given.
	DefaultWidth  = 1170
	DefaultHeight = 2532

	applicationAudioInput = "application-audio"
	microphoneAudioInput  = "microphone-audio"
)

// Option configures a Session.
type Option func(*options)

type options struct {
	writerFactory  WriterFactory
	writerOptions  []writer.FileWriterOption
	exporter       merge.Exporter
	exportSettings merge.ExportSettings
	videoSettings  writer.VideoSettings
	audioSettings  writer.AudioSettings
	logger         *slog.Logger
	onProgress     []func(seconds float64)
	clock          clock.WithTicker
}

func defaultOptions() options {
	return options{
		exportSettings: merge.DefaultExportSettings(),
		videoSettings:  writer.DefaultVideoSettings(DefaultWidth, DefaultHeight),
		audioSettings:  writer.DefaultAudioSettings(),
		clock:          clock.RealClock{},
	}
}

// WithWriterFactory replaces the file writer used by both pipelines.
func WithWriterFactory(f WriterFactory) Option {
	return func(o *options) {
		o.writerFactory = f
	}
}

// WithWriterOptions passes options to the default file writer.
func WithWriterOptions(opts ...writer.FileWriterOption) Option {
	return func(o *options) {
		o.writerOptions = append(o.writerOptions, opts...)
	}
}

// WithExporter replaces the MP4 exporter used by the merge.
func WithExporter(e merge.Exporter) Option {
	return func(o *options) {
		o.exporter = e
	}
}

// WithExportSettings replaces the default export settings.
func WithExportSettings(s merge.ExportSettings) Option {
	return func(o *options) {
		o.exportSettings = s
	}
}

// WithVideoSettings sets the settings of the video input.
func WithVideoSettings(s writer.VideoSettings) Option {
	return func(o *options) {
		o.videoSettings = s
	}
}

// WithAudioSettings sets the settings shared by both audio inputs.
func WithAudioSettings(s writer.AudioSettings) Option {
	return func(o *options) {
		o.audioSettings = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProgress registers a callback receiving the elapsed seconds after
// every routed video sample.
func WithProgress(cb func(seconds float64)) Option {
	return func(o *options) {
		o.onProgress = append(o.onProgress, cb)
	}
}

// WithClock sets the clock of the default file writer.
func WithClock(c clock.WithTicker) Option {
	return func(o *options) {
		o.clock = c
	}
}
