package writer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
)

// SampleQueue receives the samples appended to an attached input.
// Implementations must not block.
type SampleQueue interface {
	Ready() bool
	Enqueue(in *Input, buf *media.SampleBuffer) error
}

// Input feeds samples of one track into a writer.
type Input struct {
	name      string
	mediaType MediaType
	video     VideoSettings
	audio     AudioSettings

	mu       sync.Mutex
	queue    SampleQueue
	lastPTS  time.Duration
	hasLast  bool
	finished atomic.Bool
	appended atomic.Int64
}

// NewVideoInput creates an input for H.264 video.
func NewVideoInput(name string, settings VideoSettings) *Input {
	return &Input{
		name:      name,
		mediaType: MediaTypeVideo,
		video:     settings,
	}
}

// NewAudioInput creates an input for AAC audio.
func NewAudioInput(name string, settings AudioSettings) *Input {
	return &Input{
		name:      name,
		mediaType: MediaTypeAudio,
		audio:     settings,
	}
}

// Name returns the input name used in logs.
func (in *Input) Name() string {
	return in.name
}

func (in *Input) MediaType() MediaType {
	return in.mediaType
}

func (in *Input) VideoSettings() VideoSettings {
	return in.video
}

func (in *Input) AudioSettings() AudioSettings {
	return in.audio
}

// Attach connects the input to the queue of a writer. Writers call it from
// AddInput.
func (in *Input) Attach(q SampleQueue) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.queue != nil {
		return errors.Errorf("input %s is already attached", in.name)
	}
	in.queue = q
	return nil
}

// Attached reports whether the input belongs to a writer.
func (in *Input) Attached() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queue != nil
}

// AppendedCount returns the number of accepted samples.
func (in *Input) AppendedCount() int64 {
	return in.appended.Load()
}

func (in *Input) validate() error {
	if in.mediaType == MediaTypeVideo {
		return in.video.Validate()
	}
	return in.audio.Validate()
}

// ReadyForMoreMediaData is a non-blocking poll. It returns false when the
// input is not attached, the writer is not writing, the input is finished,
// or the writer queue is full.
func (in *Input) ReadyForMoreMediaData() bool {
	if in.finished.Load() {
		return false
	}

	in.mu.Lock()
	q := in.queue
	in.mu.Unlock()

	if q == nil {
		return false
	}
	return q.Ready()
}

// Append enqueues a sample. The writer takes ownership of buf.
func (in *Input) Append(buf *media.SampleBuffer) error {
	if in.finished.Load() {
		return ErrInputFinished
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.queue == nil {
		return ErrNotReady
	}
	if in.hasLast && buf.PTS < in.lastPTS {
		return ErrOutOfOrder
	}

	err := in.queue.Enqueue(in, buf)
	if err != nil {
		return err
	}

	in.lastPTS = buf.PTS
	in.hasLast = true
	in.appended.Add(1)
	return nil
}

// MarkAsFinished signals that no more samples will be appended.
func (in *Input) MarkAsFinished() {
	in.finished.Store(true)
}

// IsFinished reports whether MarkAsFinished was called.
func (in *Input) IsFinished() bool {
	return in.finished.Load()
}
