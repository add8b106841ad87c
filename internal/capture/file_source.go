// Package capture provides capture sources that feed recordings.
package capture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"k8s.io/utils/clock"

	"github.com/babelcloud/screenrec/internal/h264"
	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/util"
)

// DefaultFrameRate is used when FileSource.FrameRate is not set.
const DefaultFrameRate = 30

// FileSource replays elementary stream files: an H.264 Annex-B video stream
// and optional ADTS AAC application and microphone audio streams.
// Timestamps are derived from the frame rate and the AAC frame size.
type FileSource struct {
	VideoPath    string
	AppAudioPath string
	MicAudioPath string
	FrameRate    float64
	// Realtime paces delivery on the clock instead of submitting as fast as
	// possible.
	Realtime bool
	Clock    clock.Clock
}

var _ media.Source = (*FileSource)(nil)

type timedSample struct {
	buf *media.SampleBuffer
	typ media.SampleType
}

// Run submits every sample of the files to sink, ordered by timestamp.
func (s *FileSource) Run(ctx context.Context, sink media.Sink) error {
	logger := util.GetLogger()

	samples, err := s.load()
	if err != nil {
		return err
	}

	clk := s.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	start := clk.Now()

	for i, ts := range samples {
		if err := ctx.Err(); err != nil {
			logger.Debug("File source cancelled", "submitted", i)
			return err
		}

		if s.Realtime {
			if wait := ts.buf.PTS - clk.Since(start); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-clk.After(wait):
				}
			}
		}

		sink.Submit(ts.buf, ts.typ)
	}

	logger.Debug("File source exhausted", "samples", len(samples))
	return nil
}

func (s *FileSource) load() ([]timedSample, error) {
	if s.VideoPath == "" {
		return nil, fmt.Errorf("video file is required")
	}

	fps := s.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}

	samples, err := readVideo(s.VideoPath, fps)
	if err != nil {
		return nil, err
	}

	for _, a := range []struct {
		path string
		typ  media.SampleType
	}{
		{s.AppAudioPath, media.SampleTypeApplicationAudio},
		{s.MicAudioPath, media.SampleTypeMicrophoneAudio},
	} {
		if a.path == "" {
			continue
		}
		audio, err := readAudio(a.path, a.typ)
		if err != nil {
			return nil, err
		}
		samples = append(samples, audio...)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].buf.PTS < samples[j].buf.PTS
	})
	return samples, nil
}

func readVideo(path string, fps float64) ([]timedSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read video: %w", err)
	}

	units := h264.SplitAccessUnits(data)
	if len(units) == 0 {
		return nil, fmt.Errorf("no H.264 access units in %s", path)
	}

	out := make([]timedSample, 0, len(units))
	for i, au := range units {
		payload, err := mch264.AnnexB(au).Marshal()
		if err != nil {
			return nil, fmt.Errorf("encode access unit %d: %w", i, err)
		}
		out = append(out, timedSample{
			buf: &media.SampleBuffer{
				PTS:        time.Duration(float64(i) * float64(time.Second) / fps),
				Data:       payload,
				IsKeyFrame: h264.IsKeyFrame(au),
			},
			typ: media.SampleTypeVideo,
		})
	}
	return out, nil
}

func readAudio(path string, typ media.SampleType) ([]timedSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", typ, err)
	}

	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decode ADTS %s: %w", path, err)
	}

	out := make([]timedSample, 0, len(pkts))
	var samples int64
	for _, pkt := range pkts {
		out = append(out, timedSample{
			buf: &media.SampleBuffer{
				PTS:  time.Duration(samples * int64(time.Second) / int64(pkt.SampleRate)),
				Data: pkt.AU,
			},
			typ: typ,
		})
		samples += mpeg4audio.SamplesPerAccessUnit
	}
	return out, nil
}
