package writer

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
)

// MediaType is the kind of data an input accepts.
type MediaType int

const (
	MediaTypeVideo MediaType = iota
	MediaTypeAudio
)

func (m MediaType) String() string {
	if m == MediaTypeVideo {
		return "video"
	}
	return "audio"
}

// VideoCodec identifies the video compression format.
type VideoCodec string

const CodecH264 VideoCodec = "h264"

// ScalingMode describes how frames are fitted into the output dimensions.
type ScalingMode string

const (
	ScalingResizeAspectFill ScalingMode = "aspect-fill"
	ScalingResizeAspect     ScalingMode = "aspect"
	ScalingResize           ScalingMode = "resize"
)

// VideoSettings configures a video input.
type VideoSettings struct {
	Codec       VideoCodec
	ScalingMode ScalingMode
	Width       int
	Height      int
	Transform   media.Transform
}

// Validate checks that the settings can be written.
func (s VideoSettings) Validate() error {
	if s.Codec != CodecH264 {
		return errors.Errorf("unsupported video codec %q", s.Codec)
	}
	switch s.ScalingMode {
	case ScalingResizeAspectFill, ScalingResizeAspect, ScalingResize:
	default:
		return errors.Errorf("unsupported scaling mode %q", s.ScalingMode)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return errors.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}
	return nil
}

// AudioFormat identifies the audio compression format.
type AudioFormat string

const (
	AudioFormatMPEG4AAC   AudioFormat = "aac"
	AudioFormatMPEG4AACHE AudioFormat = "aac-he"
)

// ChannelLayout is a fixed speaker arrangement.
type ChannelLayout string

const (
	ChannelLayoutMono    ChannelLayout = "mono"
	ChannelLayoutStereo  ChannelLayout = "stereo"
	ChannelLayoutMPEG51D ChannelLayout = "mpeg-5.1-d"
)

// Channels returns the number of channels of the layout.
func (l ChannelLayout) Channels() int {
	switch l {
	case ChannelLayoutMono:
		return 1
	case ChannelLayoutStereo:
		return 2
	case ChannelLayoutMPEG51D:
		return 6
	}
	return 0
}

// AudioSettings configures an audio input.
type AudioSettings struct {
	Format        AudioFormat
	SampleRate    int
	ChannelCount  int
	ChannelLayout ChannelLayout
}

// Validate checks that the settings can be written.
func (s AudioSettings) Validate() error {
	switch s.Format {
	case AudioFormatMPEG4AAC, AudioFormatMPEG4AACHE:
	default:
		return errors.Errorf("unsupported audio format %q", s.Format)
	}
	if s.SampleRate <= 0 {
		return errors.Errorf("invalid sample rate %d", s.SampleRate)
	}
	if s.ChannelCount != s.ChannelLayout.Channels() {
		return errors.Errorf("channel count %d does not match layout %q", s.ChannelCount, s.ChannelLayout)
	}
	return nil
}

// Config returns the decoder configuration stored in the esds box.
// HE-AAC is signalled explicitly: an AAC-LC core at half the output rate
// with an SBR extension at the output rate.
func (s AudioSettings) Config() mpeg4audio.AudioSpecificConfig {
	if s.Format == AudioFormatMPEG4AACHE {
		return mpeg4audio.AudioSpecificConfig{
			Type:                mpeg4audio.ObjectTypeAACLC,
			SampleRate:          s.SampleRate / 2,
			ChannelCount:        s.ChannelCount,
			ExtensionType:       mpeg4audio.ObjectTypeSBR,
			ExtensionSampleRate: s.SampleRate,
		}
	}
	return mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   s.SampleRate,
		ChannelCount: s.ChannelCount,
	}
}

// SamplesPerFrame returns the number of output samples per access unit.
func (s AudioSettings) SamplesPerFrame() int {
	if s.Format == AudioFormatMPEG4AACHE {
		return 2048
	}
	return 1024
}

// DefaultVideoSettings returns H.264 aspect-fill settings for the given
// display pixel geometry.
func DefaultVideoSettings(width, height int) VideoSettings {
	return VideoSettings{
		Codec:       CodecH264,
		ScalingMode: ScalingResizeAspectFill,
		Width:       width,
		Height:      height,
		Transform:   media.IdentityTransform,
	}
}

// DefaultAudioSettings returns 6-channel HE-AAC at 44.1kHz in a 5.1 layout.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		Format:        AudioFormatMPEG4AACHE,
		SampleRate:    44100,
		ChannelCount:  6,
		ChannelLayout: ChannelLayoutMPEG51D,
	}
}
