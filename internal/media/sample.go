package media

import "time"

// SampleType classifies a buffer delivered by the capture source.
type SampleType int

const (
	SampleTypeVideo SampleType = iota
	SampleTypeApplicationAudio
	SampleTypeMicrophoneAudio
)

func (t SampleType) String() string {
	switch t {
	case SampleTypeVideo:
		return "video"
	case SampleTypeApplicationAudio:
		return "applicationAudio"
	case SampleTypeMicrophoneAudio:
		return "microphoneAudio"
	}
	return "unknown"
}

// IsAudio reports whether the type is routed to the audio pipeline.
func (t SampleType) IsAudio() bool {
	return t == SampleTypeApplicationAudio || t == SampleTypeMicrophoneAudio
}

// SampleBuffer represents a single timestamped unit of media.
// Video payloads are H.264 access units, either Annex-B (start codes) or
// AVCC (length-prefixed). Audio payloads are AAC access units, optionally
// carrying an ADTS header.
type SampleBuffer struct {
	PTS        time.Duration // Presentation timestamp on the capture clock
	Data       []byte
	IsKeyFrame bool // Only consulted for AVCC video payloads
}
