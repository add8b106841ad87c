package merge

import (
	"context"
	"log/slog"
	"math"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/mp4box"
	"github.com/babelcloud/screenrec/internal/util"
)

// Preset selects the export quality.
type Preset string

// PresetHighestQuality keeps the source samples as they are.
const PresetHighestQuality Preset = "highest"

// FileType is the output container.
type FileType string

const FileTypeMP4 FileType = "mp4"

// ExportSettings configures an export.
type ExportSettings struct {
	Preset Preset
	// OptimizeForNetworkUse places the movie header before the media data.
	OptimizeForNetworkUse bool
	FileType              FileType
}

// DefaultExportSettings returns highest quality, network optimized MP4.
func DefaultExportSettings() ExportSettings {
	return ExportSettings{
		Preset:                PresetHighestQuality,
		OptimizeForNetworkUse: true,
		FileType:              FileTypeMP4,
	}
}

func (s ExportSettings) Validate() error {
	if s.Preset != PresetHighestQuality {
		return errors.Errorf("unsupported export preset %q", s.Preset)
	}
	if s.FileType != FileTypeMP4 {
		return errors.Errorf("unsupported export file type %q", s.FileType)
	}
	return nil
}

// Exporter renders a composition into a file.
type Exporter interface {
	Export(ctx context.Context, comp *Composition, dst string, settings ExportSettings) error
}

// MP4Exporter writes progressive MP4 files. The movie header always precedes
// the media data, so every export is network optimized.
type MP4Exporter struct {
	logger *slog.Logger
}

// NewMP4Exporter creates an exporter. A nil logger uses the default one.
func NewMP4Exporter(logger *slog.Logger) *MP4Exporter {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &MP4Exporter{logger: logger}
}

// presentation converts the composition into a pmp4 presentation. Track IDs
// are renumbered from 1 in composition order.
func presentation(comp *Composition) (*pmp4.Presentation, error) {
	p := &pmp4.Presentation{}

	for i, ct := range comp.Tracks {
		if len(ct.Samples) == 0 {
			return nil, errors.Errorf("track %d has no samples", ct.ID)
		}

		offset := ct.Samples[0].DTS
		if offset < 0 || offset > math.MaxInt32 {
			return nil, errors.Errorf("track %d start offset %d exceeds the edit range", ct.ID, offset)
		}

		track := &pmp4.Track{
			ID:         i + 1,
			TimeScale:  ct.TimeScale,
			TimeOffset: int32(offset),
			Codec:      ct.Codec,
			Samples:    make([]*pmp4.Sample, len(ct.Samples)),
		}

		for j, s := range ct.Samples {
			duration := s.Duration
			if j+1 < len(ct.Samples) {
				delta := ct.Samples[j+1].DTS - s.DTS
				if delta < 0 {
					delta = 0
				}
				duration = uint32(delta)
			}

			payload := s.Payload
			track.Samples[j] = &pmp4.Sample{
				Duration:        duration,
				PTSOffset:       s.PTSOffset,
				IsNonSyncSample: s.IsNonSyncSample,
				PayloadSize:     uint32(len(payload)),
				GetPayload: func() ([]byte, error) {
					return payload, nil
				},
			}
		}

		p.Tracks = append(p.Tracks, track)
	}

	return p, nil
}

func (e *MP4Exporter) Export(ctx context.Context, comp *Composition, dst string, settings ExportSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if len(comp.Tracks) == 0 {
		return errors.New("composition has no tracks")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "export not started")
	}

	p, err := presentation(comp)
	if err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(dst, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, "failed to create pending output")
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			e.logger.Debug("Failed to clean up pending output", "error", err)
		}
	}()

	if err := p.Marshal(pendingFile); err != nil {
		return errors.Wrap(err, "failed to write movie")
	}

	for i, ct := range comp.Tracks {
		if ct.Kind != TrackKindVideo || ct.PreferredTransform.IsIdentity() {
			continue
		}
		if err := mp4box.PatchTrackMatrix(pendingFile.File, i+1, ct.PreferredTransform); err != nil {
			return errors.Wrap(err, "failed to set video transform")
		}
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return errors.Wrap(err, "failed to commit output")
	}

	e.logger.Debug("Export finished", "path", dst, "tracks", len(comp.Tracks), "duration", comp.Duration())
	return nil
}
