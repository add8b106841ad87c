package merge

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/mp4box"
)

// TimeRange is a span of source time.
type TimeRange struct {
	Start    time.Duration
	Duration time.Duration
}

// End returns the exclusive end of the range.
func (r TimeRange) End() time.Duration {
	return r.Start + r.Duration
}

// CompositionTrack is an output track assembled from source time ranges.
type CompositionTrack struct {
	ID                 int
	Kind               TrackKind
	TimeScale          uint32
	Codec              mp4.Codec
	PreferredTransform media.Transform
	Samples            []*Sample
}

// InsertTimeRange copies the samples of src whose decode time falls inside
// r, placing the start of r at the given output time.
func (t *CompositionTrack) InsertTimeRange(src *AssetTrack, r TimeRange, at time.Duration) error {
	if src == nil {
		return errors.New("source track is nil")
	}
	if src.TimeScale == 0 {
		return errors.Errorf("source track %d has zero timescale", src.ID)
	}
	if kind := src.Kind(); kind == TrackKindUnknown || kind != t.Kind {
		return errors.Errorf("source track %d has unsupported codec for a %s track", src.ID, t.Kind)
	}
	if len(src.Samples) == 0 {
		return errors.Errorf("source track %d has no samples", src.ID)
	}
	if r.Duration <= 0 {
		return errors.Errorf("invalid time range duration %v", r.Duration)
	}
	if t.Codec != nil && t.TimeScale != src.TimeScale {
		return errors.Errorf("timescale %d does not match track timescale %d", src.TimeScale, t.TimeScale)
	}

	start := mp4box.DurationGoToMp4(r.Start, src.TimeScale)
	end := mp4box.DurationGoToMp4(r.End(), src.TimeScale)
	offset := mp4box.DurationGoToMp4(at, src.TimeScale) - start

	var inserted []*Sample
	for _, s := range src.Samples {
		if s.DTS < start || s.DTS >= end {
			continue
		}
		cp := *s
		cp.DTS += offset
		inserted = append(inserted, &cp)
	}

	if len(inserted) == 0 {
		return errors.Errorf("time range %v-%v of track %d contains no samples", r.Start, r.End(), src.ID)
	}

	if n := len(t.Samples); n > 0 {
		last := t.Samples[n-1]
		if inserted[0].DTS < last.DTS+int64(last.Duration) {
			return errors.New("inserted range overlaps existing samples")
		}
	}

	t.TimeScale = src.TimeScale
	t.Codec = src.Codec
	t.Samples = append(t.Samples, inserted...)
	return nil
}

// Duration returns the output time covered by the track.
func (t *CompositionTrack) Duration() time.Duration {
	if len(t.Samples) == 0 || t.TimeScale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return mp4box.DurationMp4ToGo(last.DTS+int64(last.Duration), t.TimeScale)
}

// Composition is an editable set of output tracks.
type Composition struct {
	Tracks []*CompositionTrack
	nextID int
}

func NewComposition() *Composition {
	return &Composition{nextID: 1}
}

// AddTrack appends an empty track of the given kind.
func (c *Composition) AddTrack(kind TrackKind) *CompositionTrack {
	t := &CompositionTrack{
		ID:                 c.nextID,
		Kind:               kind,
		PreferredTransform: media.IdentityTransform,
	}
	c.nextID++
	c.Tracks = append(c.Tracks, t)
	return t
}

// RemoveTrack drops t from the composition.
func (c *Composition) RemoveTrack(t *CompositionTrack) {
	for i, ct := range c.Tracks {
		if ct == t {
			c.Tracks = append(c.Tracks[:i], c.Tracks[i+1:]...)
			return
		}
	}
}

// TracksOf returns the tracks of the given kind.
func (c *Composition) TracksOf(kind TrackKind) []*CompositionTrack {
	var out []*CompositionTrack
	for _, t := range c.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Duration returns the longest track duration.
func (c *Composition) Duration() time.Duration {
	var d time.Duration
	for _, t := range c.Tracks {
		if td := t.Duration(); td > d {
			d = td
		}
	}
	return d
}
