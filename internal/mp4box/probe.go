package mp4box

import (
	"io"
	"time"

	gomp4 "github.com/abema/go-mp4"
)

// ProbeTrack summarizes one track of a progressive MP4 file.
type ProbeTrack struct {
	ID        int
	Codec     string
	TimeScale uint32
	Duration  time.Duration
	Samples   int
}

// ProbeResult summarizes a progressive MP4 file.
type ProbeResult struct {
	MajorBrand string
	FastStart  bool
	Duration   time.Duration
	Tracks     []ProbeTrack
}

func codecName(c gomp4.Codec) string {
	switch c {
	case gomp4.CodecAVC1:
		return "avc1"
	case gomp4.CodecMP4A:
		return "mp4a"
	}
	return "unknown"
}

// Probe reads the moov box of r.
func Probe(r io.ReadSeeker) (*ProbeResult, error) {
	info, err := gomp4.Probe(r)
	if err != nil {
		return nil, err
	}

	res := &ProbeResult{
		MajorBrand: string(info.MajorBrand[:]),
		FastStart:  info.FastStart,
	}
	if info.Timescale != 0 {
		res.Duration = DurationMp4ToGo(int64(info.Duration), info.Timescale)
	}

	for _, track := range info.Tracks {
		pt := ProbeTrack{
			ID:        int(track.TrackID),
			Codec:     codecName(track.Codec),
			TimeScale: track.Timescale,
			Samples:   len(track.Samples),
		}
		if track.Timescale != 0 {
			pt.Duration = DurationMp4ToGo(int64(track.Duration), track.Timescale)
		}
		res.Tracks = append(res.Tracks, pt)
	}

	return res, nil
}
