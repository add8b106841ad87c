package writer

import (
	"errors"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/babelcloud/screenrec/internal/h264"
	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/mp4box"
)

const videoTimeScale = 90000

// stripADTSHeader removes the ADTS header if present and returns the raw AAC payload.
// If no ADTS header is detected, returns the original data.
func stripADTSHeader(data []byte) []byte {
	if len(data) < 7 {
		return data
	}
	// ADTS syncword 12 bits: 0xFFF
	if data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		// protection_absent is the last bit of byte 1
		headerLen := 7
		if (data[1] & 0x01) == 0 { // CRC present => 2 extra bytes
			headerLen = 9
		}
		if len(data) > headerLen {
			return data[headerLen:]
		}
	}
	return data
}

type pendingSample struct {
	dts    int64
	sample *fmp4.Sample
}

// fmp4Track accumulates the samples of one input between fragments.
// It is owned by the writer goroutine.
type fmp4Track struct {
	input     *Input
	id        int
	timeScale uint32
	params    h264.ParameterSets

	pending      *pendingSample
	batch        []*fmp4.Sample
	batchBase    int64
	lastDuration uint32
	sampleCount  int
}

func newTrack(in *Input, id int) *fmp4Track {
	t := &fmp4Track{
		input: in,
		id:    id,
	}
	if in.mediaType == MediaTypeVideo {
		t.timeScale = videoTimeScale
	} else {
		t.timeScale = uint32(in.audio.SampleRate)
	}
	return t
}

var errEmptyPayload = errors.New("empty payload")

// payload converts a buffer into an MP4 sample payload.
func (t *fmp4Track) payload(buf *media.SampleBuffer) ([]byte, bool, error) {
	if len(buf.Data) == 0 {
		return nil, false, errEmptyPayload
	}

	if t.input.mediaType == MediaTypeAudio {
		raw := stripADTSHeader(buf.Data)
		return raw, true, nil
	}

	var nalus [][]byte
	isKey := buf.IsKeyFrame

	if h264.HasStartCode(buf.Data) {
		nalus = h264.SplitAnnexB(buf.Data)
		isKey = h264.IsKeyFrame(nalus)
	} else {
		var err error
		nalus, err = h264.UnmarshalAVCC(buf.Data)
		if err != nil {
			return nil, false, err
		}
	}

	t.params.Observe(nalus)

	nalus = h264.StripNonVCL(nalus)
	if len(nalus) == 0 {
		return nil, false, errEmptyPayload
	}

	payload, err := h264.MarshalAVCC(nalus)
	if err != nil {
		return nil, false, err
	}
	return payload, isKey, nil
}

// push closes the pending sample with the timestamp of the next one.
// It returns true when the batch is full.
func (t *fmp4Track) push(dts int64, sample *fmp4.Sample, maxBatch int) bool {
	full := false

	if t.pending != nil {
		duration := dts - t.pending.dts
		if duration < 0 {
			duration = 0
		}
		t.pending.sample.Duration = uint32(duration)
		t.lastDuration = uint32(duration)
		full = t.appendToBatch(t.pending, maxBatch)
	}

	t.pending = &pendingSample{dts: dts, sample: sample}
	return full
}

func (t *fmp4Track) appendToBatch(p *pendingSample, maxBatch int) bool {
	if len(t.batch) == 0 {
		t.batchBase = p.dts
	}
	t.batch = append(t.batch, p.sample)
	return len(t.batch) >= maxBatch
}

// closePending moves the last sample into the batch. Its duration repeats
// the previous one, or one frame when the track has a single sample.
func (t *fmp4Track) closePending() {
	if t.pending == nil {
		return
	}

	duration := t.lastDuration
	if duration == 0 {
		duration = t.defaultDuration()
	}
	t.pending.sample.Duration = duration
	t.appendToBatch(t.pending, 0)
	t.pending = nil
}

func (t *fmp4Track) defaultDuration() uint32 {
	if t.input.mediaType == MediaTypeVideo {
		// default to 30fps when duration not known yet
		return t.timeScale / 30
	}
	return uint32(t.input.audio.SamplesPerFrame())
}

// takePart returns the batched samples as a fragment track and resets the batch.
func (t *fmp4Track) takePart() *fmp4.PartTrack {
	if len(t.batch) == 0 {
		return nil
	}

	pt := &fmp4.PartTrack{
		ID:       t.id,
		BaseTime: uint64(t.batchBase),
		Samples:  t.batch,
	}
	t.sampleCount += len(t.batch)
	t.batch = nil
	return pt
}

func (t *fmp4Track) dts(ts time.Duration) int64 {
	return mp4box.DurationGoToMp4(ts, t.timeScale)
}

func (t *fmp4Track) codec() (mp4.Codec, error) {
	if t.input.mediaType == MediaTypeAudio {
		return &mp4.CodecMPEG4Audio{
			Config: t.input.audio.Config(),
		}, nil
	}

	if !t.params.Complete() {
		return nil, errors.New("no H.264 parameter sets received")
	}
	return &mp4.CodecH264{
		SPS: t.params.SPS,
		PPS: t.params.PPS,
	}, nil
}
