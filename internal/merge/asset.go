// Package merge combines the video and audio intermediates of a recording
// into one progressive MP4 file.
package merge

import (
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/mp4box"
)

// TrackKind classifies an asset track by codec.
type TrackKind int

const (
	TrackKindUnknown TrackKind = iota
	TrackKindVideo
	TrackKindAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackKindVideo:
		return "video"
	case TrackKindAudio:
		return "audio"
	}
	return "unknown"
}

// KindOf returns the kind of track carrying codec.
func KindOf(codec mp4.Codec) TrackKind {
	switch codec.(type) {
	case *mp4.CodecH264:
		return TrackKindVideo
	case *mp4.CodecMPEG4Audio:
		return TrackKindAudio
	}
	return TrackKindUnknown
}

// Sample is one access unit of a track. DTS and Duration are expressed in
// the track timescale.
type Sample struct {
	DTS             int64
	Duration        uint32
	PTSOffset       int32
	IsNonSyncSample bool
	Payload         []byte
}

// AssetTrack is a track read from an intermediate file.
type AssetTrack struct {
	ID        int
	TimeScale uint32
	Codec     mp4.Codec
	Transform media.Transform
	Samples   []*Sample
}

func (t *AssetTrack) Kind() TrackKind {
	return KindOf(t.Codec)
}

// Duration returns the time from zero to the end of the last sample.
func (t *AssetTrack) Duration() time.Duration {
	if len(t.Samples) == 0 || t.TimeScale == 0 {
		return 0
	}
	last := t.Samples[len(t.Samples)-1]
	return mp4box.DurationMp4ToGo(last.DTS+int64(last.Duration), t.TimeScale)
}

// Asset is the decoded content of an intermediate file.
type Asset struct {
	Path     string
	Tracks   []*AssetTrack
	Duration time.Duration
}

// TracksOf returns the tracks of the given kind, in file order.
func (a *Asset) TracksOf(kind TrackKind) []*AssetTrack {
	var out []*AssetTrack
	for _, t := range a.Tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// OpenAsset reads a fragmented MP4 intermediate.
func OpenAsset(path string) (*Asset, error) {
	init, parts, err := mp4box.ReadFragmented(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	matrices, err := mp4box.ReadTrackMatrices(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read track headers of %s", path)
	}

	asset := &Asset{Path: path}
	byID := make(map[int]*AssetTrack, len(init.Tracks))

	for _, it := range init.Tracks {
		track := &AssetTrack{
			ID:        it.ID,
			TimeScale: it.TimeScale,
			Codec:     it.Codec,
			Transform: media.IdentityTransform,
		}
		if m, ok := matrices[it.ID]; ok && !m.IsIdentity() {
			track.Transform = m
		}
		asset.Tracks = append(asset.Tracks, track)
		byID[it.ID] = track
	}

	for _, part := range parts {
		for _, pt := range part.Tracks {
			track, ok := byID[pt.ID]
			if !ok {
				return nil, errors.Errorf("fragment references unknown track %d", pt.ID)
			}

			dts := int64(pt.BaseTime)
			for _, s := range pt.Samples {
				track.Samples = append(track.Samples, &Sample{
					DTS:             dts,
					Duration:        s.Duration,
					PTSOffset:       s.PTSOffset,
					IsNonSyncSample: s.IsNonSyncSample,
					Payload:         s.Payload,
				})
				dts += int64(s.Duration)
			}
		}
	}

	for _, t := range asset.Tracks {
		if d := t.Duration(); d > asset.Duration {
			asset.Duration = d
		}
	}

	return asset, nil
}
