// Package session drives a screen recording: it routes captured samples into
// a video and an audio writer pipeline, tracks the elapsed time and, when
// finalized, joins both pipelines and merges them into one file.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/merge"
	"github.com/babelcloud/screenrec/internal/util"
	"github.com/babelcloud/screenrec/internal/workspace"
	"github.com/babelcloud/screenrec/internal/writer"
)

var (
	// ErrNoVideo is returned when the video pipeline never started.
	ErrNoVideo = errors.New("no video was recorded")
	// ErrAlreadyFinalized is passed to the completion of a repeated Finalize.
	ErrAlreadyFinalized = errors.New("session already finalized")
	// ErrNoPipelines is returned when Finalize is called before any sample.
	ErrNoPipelines = errors.New("no samples were submitted")
)

// Session is one recording.
type Session struct {
	id       string
	ws       *workspace.Manager
	opts     options
	logger   *slog.Logger
	timeBase *TimeBase
	merger   *merge.Merger
	stats    statsCollector

	mu    sync.Mutex
	rc    recordingContext
	video *pipeline
	audio *pipeline

	done       chan struct{}
	resultPath string
	resultErr  error
}

var _ media.Sink = (*Session)(nil)

// New prepares the workspace and creates a session.
func New(ws *workspace.Manager, opts ...Option) (*Session, error) {
	if ws == nil {
		return nil, errors.New("workspace is nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.videoSettings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid video settings")
	}
	if err := o.audioSettings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid audio settings")
	}
	if err := o.exportSettings.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid export settings")
	}

	if err := ws.Prepare(); err != nil {
		return nil, errors.Wrap(err, "failed to prepare workspace")
	}

	id := uuid.NewString()
	logger := o.logger
	if logger == nil {
		logger = util.GetLogger()
	}
	logger = logger.With("session", id)

	s := &Session{
		id:       id,
		ws:       ws,
		opts:     o,
		logger:   logger,
		timeBase: NewTimeBase(),
		done:     make(chan struct{}),
	}

	if s.opts.writerFactory == nil {
		s.opts.writerFactory = s.newFileWriter
	}

	mergeOpts := []merge.Option{
		merge.WithExportSettings(o.exportSettings),
		merge.WithLogger(logger),
	}
	if o.exporter != nil {
		mergeOpts = append(mergeOpts, merge.WithExporter(o.exporter))
	}
	s.merger = merge.NewMerger(ws, mergeOpts...)

	for _, cb := range o.onProgress {
		s.timeBase.OnUpdate(cb)
	}

	logger.Info("Session created", "dir", ws.Dir())
	return s, nil
}

func (s *Session) newFileWriter(path string) (writer.AssetWriter, error) {
	opts := []writer.FileWriterOption{
		writer.WithLogger(s.logger),
		writer.WithClock(s.opts.clock),
	}
	opts = append(opts, s.opts.writerOptions...)
	return writer.NewFileWriter(path, opts...)
}

func (s *Session) ID() string {
	return s.id
}

// Elapsed returns the recording time of the last routed video sample.
func (s *Session) Elapsed() time.Duration {
	return s.timeBase.Elapsed()
}

// OnElapsed registers a callback receiving the elapsed seconds.
func (s *Session) OnElapsed(cb func(seconds float64)) {
	s.timeBase.OnUpdate(cb)
}

// SetPaused gates routing. It takes effect for the next submitted sample.
func (s *Session) SetPaused(paused bool) {
	if s.rc.paused.Swap(paused) != paused {
		s.logger.Info("Pause state changed", "paused", paused)
	}
}

func (s *Session) Paused() bool {
	return s.rc.paused.Load()
}

// State returns the finalize state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc.state
}

// Stats returns the routing counters.
func (s *Session) Stats() Stats {
	return s.stats.snapshot()
}

// Submit routes a sample to its pipeline without blocking. Samples are
// dropped while paused, after Finalize, when the pipeline failed, or when
// the input is not ready. Progress callbacks run after routing, outside the
// session lock.
func (s *Session) Submit(buf *media.SampleBuffer, t media.SampleType) {
	if t != media.SampleTypeVideo && !t.IsAudio() {
		s.logger.Warn("Dropping sample of unknown type", "type", int(t), "pts", buf.PTS)
		return
	}

	c := s.stats.of(t)

	if s.rc.paused.Load() {
		c.droppedPaused.Add(1)
		return
	}

	if s.route(buf, t, c) && t == media.SampleTypeVideo {
		s.timeBase.Update(buf.PTS)
	}
}

// route appends buf to its pipeline, starting the pipeline on its first
// sample. It reports whether the sample was appended.
func (s *Session) route(buf *media.SampleBuffer, t media.SampleType, c *counters) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rc.state != StateRecording {
		c.droppedClosed.Add(1)
		return false
	}

	s.ensurePipelines()

	p := s.audio
	if t == media.SampleTypeVideo {
		p = s.video
	}

	switch p.status() {
	case writer.StatusUnopened:
		if err := p.start(buf.PTS); err != nil {
			c.droppedClosed.Add(1)
			return false
		}
		if t == media.SampleTypeVideo {
			s.timeBase.Anchor(buf.PTS)
		}
		return s.append(p, buf, t, c)

	case writer.StatusWriting:
		in := p.inputs[t]
		if in == nil {
			c.droppedClosed.Add(1)
			return false
		}
		if !in.ReadyForMoreMediaData() {
			c.droppedNotReady.Add(1)
			return false
		}
		return s.append(p, buf, t, c)

	default:
		c.droppedClosed.Add(1)
		return false
	}
}

func (s *Session) append(p *pipeline, buf *media.SampleBuffer, t media.SampleType, c *counters) bool {
	in := p.inputs[t]
	if in == nil {
		c.droppedClosed.Add(1)
		return false
	}

	err := in.Append(buf)
	switch {
	case err == nil:
		c.appended.Add(1)
		return true
	case errors.Is(err, writer.ErrBeforeSessionStart):
		c.droppedEarly.Add(1)
		s.logger.Debug("Dropping sample before session start", "type", t, "pts", buf.PTS)
	default:
		c.appendFailed.Add(1)
		s.logger.Warn("Failed to append sample", "type", t, "pts", buf.PTS, "error", err)
	}
	return false
}

// ensurePipelines lazily creates both pipelines. Called with s.mu held.
func (s *Session) ensurePipelines() {
	if s.video != nil {
		return
	}

	s.video = newPipeline("video", s.ws.VideoPath(), s.opts.writerFactory, []inputSpec{
		{media.SampleTypeVideo, writer.NewVideoInput("video", s.opts.videoSettings)},
	}, s.logger)

	s.audio = newPipeline("audio", s.ws.AudioPath(), s.opts.writerFactory, []inputSpec{
		{media.SampleTypeApplicationAudio, writer.NewAudioInput(applicationAudioInput, s.opts.audioSettings)},
		{media.SampleTypeMicrophoneAudio, writer.NewAudioInput(microphoneAudioInput, s.opts.audioSettings)},
	}, s.logger)
}

// Wait blocks until the session completed and returns its result.
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return s.resultPath, s.resultErr
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done is closed once the session completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
