package session

import (
	"sync/atomic"

	"github.com/babelcloud/screenrec/internal/media"
)

// State is the finalize state of a session.
type State int

const (
	StateRecording State = iota
	StateFinalizing
	StateMerging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateMerging:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// recordingContext is the mutable state of one recording. It is created with
// the session and reset once the pipelines are joined.
type recordingContext struct {
	paused    atomic.Bool
	state     State
	videoDone bool
	audioDone bool
}

func (c *recordingContext) reset() {
	c.paused.Store(false)
	c.videoDone = false
	c.audioDone = false
}

// Counters are the routing outcomes of one sample type.
type Counters struct {
	Appended        int64
	DroppedPaused   int64
	DroppedNotReady int64
	DroppedClosed   int64
	DroppedEarly    int64
	AppendFailed    int64
}

// Stats holds the counters of every sample type.
type Stats struct {
	Video            Counters
	ApplicationAudio Counters
	MicrophoneAudio  Counters
}

// For returns the counters of t.
func (s Stats) For(t media.SampleType) Counters {
	switch t {
	case media.SampleTypeApplicationAudio:
		return s.ApplicationAudio
	case media.SampleTypeMicrophoneAudio:
		return s.MicrophoneAudio
	}
	return s.Video
}

type counters struct {
	appended        atomic.Int64
	droppedPaused   atomic.Int64
	droppedNotReady atomic.Int64
	droppedClosed   atomic.Int64
	droppedEarly    atomic.Int64
	appendFailed    atomic.Int64
}

func (c *counters) snapshot() Counters {
	return Counters{
		Appended:        c.appended.Load(),
		DroppedPaused:   c.droppedPaused.Load(),
		DroppedNotReady: c.droppedNotReady.Load(),
		DroppedClosed:   c.droppedClosed.Load(),
		DroppedEarly:    c.droppedEarly.Load(),
		AppendFailed:    c.appendFailed.Load(),
	}
}

type statsCollector struct {
	byType [3]counters
}

func (s *statsCollector) of(t media.SampleType) *counters {
	return &s.byType[t]
}

func (s *statsCollector) snapshot() Stats {
	return Stats{
		Video:            s.byType[media.SampleTypeVideo].snapshot(),
		ApplicationAudio: s.byType[media.SampleTypeApplicationAudio].snapshot(),
		MicrophoneAudio:  s.byType[media.SampleTypeMicrophoneAudio].snapshot(),
	}
}
