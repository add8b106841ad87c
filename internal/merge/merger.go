package merge

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/util"
	"github.com/babelcloud/screenrec/internal/workspace"
)

// ErrNoVideoTrack is returned when the video intermediate has no video track.
var ErrNoVideoTrack = errors.New("video intermediate has no video track")

// Option configures a Merger.
type Option func(*Merger)

// WithExporter replaces the MP4 exporter.
func WithExporter(e Exporter) Option {
	return func(m *Merger) {
		m.exporter = e
	}
}

// WithExportSettings replaces the default export settings.
func WithExportSettings(s ExportSettings) Option {
	return func(m *Merger) {
		m.settings = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = logger
	}
}

// Merger combines the intermediates of a workspace into its output file.
type Merger struct {
	ws       *workspace.Manager
	exporter Exporter
	settings ExportSettings
	logger   *slog.Logger
}

func NewMerger(ws *workspace.Manager, opts ...Option) *Merger {
	m := &Merger{
		ws:       ws,
		settings: DefaultExportSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = util.GetLogger()
	}
	if m.exporter == nil {
		m.exporter = NewMP4Exporter(m.logger)
	}
	return m
}

// Merge builds a composition of the video track and every usable audio
// track, each placed at time zero, and exports it to the workspace output.
// On success the intermediates are removed and the output path returned.
// On failure every session file is removed.
func (m *Merger) Merge(ctx context.Context) (string, error) {
	comp := NewComposition()

	if err := m.insertVideo(comp); err != nil {
		m.clearAll()
		return "", err
	}

	m.insertAudio(comp)

	if err := m.ws.ClearOutput(); err != nil {
		m.clearAll()
		return "", errors.Wrap(err, "failed to remove stale output")
	}

	output := m.ws.OutputPath()
	if err := m.exporter.Export(ctx, comp, output, m.settings); err != nil {
		m.clearAll()
		return "", errors.Wrap(err, "export failed")
	}

	if err := m.ws.ClearIntermediates(); err != nil {
		m.logger.Warn("Failed to remove intermediate files", "error", err)
	}

	m.logger.Info("Merge completed",
		"path", output,
		"tracks", len(comp.Tracks),
		"duration", comp.Duration())
	return output, nil
}

func (m *Merger) insertVideo(comp *Composition) error {
	asset, err := OpenAsset(m.ws.VideoPath())
	if err != nil {
		return errors.Wrap(err, "failed to open video intermediate")
	}

	tracks := asset.TracksOf(TrackKindVideo)
	if len(tracks) == 0 {
		return ErrNoVideoTrack
	}
	src := tracks[0]

	track := comp.AddTrack(TrackKindVideo)
	if err := track.InsertTimeRange(src, TimeRange{Duration: asset.Duration}, 0); err != nil {
		return errors.Wrap(err, "failed to insert video track")
	}
	track.PreferredTransform = src.Transform

	return nil
}

// insertAudio adds one composition track per audio track. Failures only
// drop the affected track.
func (m *Merger) insertAudio(comp *Composition) {
	asset, err := OpenAsset(m.ws.AudioPath())
	if err != nil {
		m.logger.Warn("Audio intermediate unavailable, merging video only", "error", err)
		return
	}

	for _, src := range asset.Tracks {
		track := comp.AddTrack(TrackKindAudio)
		if err := track.InsertTimeRange(src, TimeRange{Duration: asset.Duration}, 0); err != nil {
			m.logger.Warn("Skipping audio track", "track", src.ID, "error", err)
			comp.RemoveTrack(track)
		}
	}
}

func (m *Merger) clearAll() {
	if err := m.ws.ClearAll(); err != nil {
		m.logger.Warn("Failed to remove session files", "error", err)
	}
}
