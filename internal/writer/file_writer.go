package writer

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/mp4box"
	"github.com/babelcloud/screenrec/internal/util"
)

const (
	defaultQueueSize     = 256
	defaultFlushInterval = 150 * time.Millisecond
	defaultMaxBatch      = 64

	// PartsSuffix is appended to the output path to name the fragment file
	// used while writing.
	PartsSuffix = ".parts"
)

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FileWriterOption {
	return func(w *FileWriter) {
		w.logger = logger
	}
}

// WithClock sets the clock driving fragment flushes.
func WithClock(c clock.WithTicker) FileWriterOption {
	return func(w *FileWriter) {
		w.clock = c
	}
}

// WithQueueSize sets how many samples may be pending before inputs report
// not ready.
func WithQueueSize(n int) FileWriterOption {
	return func(w *FileWriter) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithFlushInterval sets how often batched samples are written as a fragment.
func WithFlushInterval(d time.Duration) FileWriterOption {
	return func(w *FileWriter) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithMaxBatch sets the number of samples per track that forces a fragment.
func WithMaxBatch(n int) FileWriterOption {
	return func(w *FileWriter) {
		if n > 0 {
			w.maxBatch = n
		}
	}
}

type queuedSample struct {
	input *Input
	ts    time.Duration
	buf   *media.SampleBuffer
}

// FileWriter is an AssetWriter producing an MP4 file.
//
// While writing, samples are muxed into fMP4 fragments stored next to the
// output in a sidecar file. FinishWriting writes the init segment to the
// output path and appends the fragments, so the output only appears once
// it is complete.
type FileWriter struct {
	path          string
	partsPath     string
	logger        *slog.Logger
	clock         clock.WithTicker
	queueSize     int
	flushInterval time.Duration
	maxBatch      int

	mu             sync.Mutex
	status         Status
	err            error
	closing        bool
	inputs         []*Input
	sessionStart   time.Duration
	sessionStarted bool
	queue          chan queuedSample
	done           chan struct{}
	createdOutput  bool

	// owned by the run goroutine until done is closed
	tracks         map[*Input]*fmp4Track
	parts          *os.File
	sequenceNumber uint32
	runErr         error
}

var _ AssetWriter = (*FileWriter)(nil)

// NewFileWriter creates a writer for path. The file must not exist yet.
func NewFileWriter(path string, opts ...FileWriterOption) (*FileWriter, error) {
	if path == "" {
		return nil, errors.New("output path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Errorf("output file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}

	w := &FileWriter{
		path:          path,
		partsPath:     path + PartsSuffix,
		clock:         clock.RealClock{},
		queueSize:     defaultQueueSize,
		flushInterval: defaultFlushInterval,
		maxBatch:      defaultMaxBatch,
		status:        StatusUnopened,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = util.GetLogger()
	}
	w.logger = w.logger.With("path", path)

	return w, nil
}

func (w *FileWriter) Path() string {
	return w.path
}

func (w *FileWriter) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *FileWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *FileWriter) CanAdd(in *Input) bool {
	return w.checkAdd(in) == nil
}

func (w *FileWriter) checkAdd(in *Input) error {
	if in == nil {
		return errors.New("input is nil")
	}

	w.mu.Lock()
	status := w.status
	w.mu.Unlock()
	if status != StatusUnopened {
		return errors.Errorf("cannot add input while %s", status)
	}

	if in.Attached() {
		return errors.Errorf("input %s is already attached", in.name)
	}

	return in.validate()
}

func (w *FileWriter) AddInput(in *Input) error {
	if err := w.checkAdd(in); err != nil {
		return errors.Wrapf(err, "cannot add input %s", in.Name())
	}

	if err := in.Attach(fileQueue{w}); err != nil {
		return err
	}

	w.mu.Lock()
	w.inputs = append(w.inputs, in)
	w.mu.Unlock()

	return nil
}

func (w *FileWriter) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != StatusUnopened {
		return errors.Errorf("cannot start writing while %s", w.status)
	}
	if len(w.inputs) == 0 {
		w.failLocked(errors.New("no inputs attached"))
		return w.err
	}

	parts, err := os.OpenFile(w.partsPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		w.failLocked(errors.Wrap(err, "failed to open fragment file"))
		return w.err
	}

	w.parts = parts
	w.tracks = make(map[*Input]*fmp4Track, len(w.inputs))
	for i, in := range w.inputs {
		w.tracks[in] = newTrack(in, i+1)
	}
	w.queue = make(chan queuedSample, w.queueSize)
	w.done = make(chan struct{})
	w.status = StatusWriting

	go w.run()

	w.logger.Debug("Writer started", "inputs", len(w.inputs))
	return nil
}

func (w *FileWriter) StartSession(at time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.sessionStart = at
	w.sessionStarted = true
}

// fileQueue attaches inputs to a FileWriter.
type fileQueue struct {
	w *FileWriter
}

func (q fileQueue) Ready() bool {
	return q.w.ready()
}

func (q fileQueue) Enqueue(in *Input, buf *media.SampleBuffer) error {
	return q.w.enqueue(in, buf)
}

func (w *FileWriter) ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.status == StatusWriting && !w.closing && len(w.queue) < cap(w.queue)
}

// enqueue hands a sample to the writer goroutine without blocking.
func (w *FileWriter) enqueue(in *Input, buf *media.SampleBuffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.status == StatusFailed:
		return errors.Wrap(w.err, "writer failed")
	case w.status != StatusWriting || w.closing:
		return ErrNotReady
	case !w.sessionStarted:
		return errors.New("session not started")
	}

	ts := buf.PTS - w.sessionStart
	if ts < 0 {
		return ErrBeforeSessionStart
	}

	select {
	case w.queue <- queuedSample{input: in, ts: ts, buf: buf}:
		return nil
	default:
		return ErrNotReady
	}
}

func (w *FileWriter) run() {
	defer close(w.done)

	ticker := w.clock.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case qs, ok := <-w.queue:
			if !ok {
				if w.runErr == nil {
					w.flushRemaining()
				}
				w.parts.Close()
				return
			}
			if w.runErr != nil {
				continue
			}
			if err := w.writeSample(qs); err != nil {
				w.fail(err)
			}

		case <-ticker.C():
			if w.runErr != nil {
				continue
			}
			if err := w.flush(); err != nil {
				w.fail(err)
			}
		}
	}
}

func (w *FileWriter) writeSample(qs queuedSample) error {
	track := w.tracks[qs.input]

	payload, isSync, err := track.payload(qs.buf)
	if err != nil {
		w.logger.Warn("Dropping sample", "input", qs.input.name, "pts", qs.buf.PTS, "error", err)
		return nil
	}

	sample := &fmp4.Sample{
		IsNonSyncSample: !isSync,
		Payload:         payload,
	}

	if track.push(track.dts(qs.ts), sample, w.maxBatch) {
		return w.writePart(track)
	}
	return nil
}

// flush writes every track batch as a single fragment.
func (w *FileWriter) flush() error {
	part := &fmp4.Part{SequenceNumber: w.sequenceNumber}
	for _, in := range w.inputs {
		if pt := w.tracks[in].takePart(); pt != nil {
			part.Tracks = append(part.Tracks, pt)
		}
	}
	if len(part.Tracks) == 0 {
		return nil
	}
	return w.writeFragment(part)
}

func (w *FileWriter) writePart(track *fmp4Track) error {
	pt := track.takePart()
	if pt == nil {
		return nil
	}
	return w.writeFragment(&fmp4.Part{
		SequenceNumber: w.sequenceNumber,
		Tracks:         []*fmp4.PartTrack{pt},
	})
}

func (w *FileWriter) writeFragment(part *fmp4.Part) error {
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal fragment")
	}
	if _, err := w.parts.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write fragment")
	}
	w.sequenceNumber++
	return nil
}

func (w *FileWriter) flushRemaining() {
	for _, in := range w.inputs {
		w.tracks[in].closePending()
	}
	if err := w.flush(); err != nil {
		w.fail(err)
	}
}

// fail records a write error. Remaining queued samples are drained and dropped.
func (w *FileWriter) fail(err error) {
	w.runErr = err
	w.logger.Error("Writer failed", "error", err)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.failLocked(err)
}

func (w *FileWriter) failLocked(err error) {
	if w.status == StatusFinished || w.status == StatusFailed {
		return
	}
	w.status = StatusFailed
	w.err = err
}

// stop closes the queue and waits for the writer goroutine.
func (w *FileWriter) stop() {
	w.mu.Lock()
	done := w.done
	if done != nil && !w.closing {
		w.closing = true
		close(w.queue)
	}
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (w *FileWriter) FinishWriting(handler func(error)) {
	w.mu.Lock()
	if w.done == nil || w.closing || w.status == StatusFinished {
		failure := w.err
		if failure == nil {
			failure = errors.Errorf("cannot finish writing while %s", w.status)
		}
		w.mu.Unlock()
		go handler(failure)
		return
	}
	w.closing = true
	close(w.queue)
	done := w.done
	w.mu.Unlock()

	for _, in := range w.inputs {
		in.MarkAsFinished()
	}

	go func() {
		<-done

		err := w.runErr
		if err == nil {
			err = w.complete()
		}

		w.mu.Lock()
		if err != nil {
			if w.err != nil {
				err = w.err
			}
			w.failLocked(err)
		} else {
			w.status = StatusFinished
		}
		w.mu.Unlock()

		if err != nil {
			w.removeFiles()
			w.logger.Error("Failed to finish writing", "error", err)
		} else {
			w.logger.Debug("Writer finished", "fragments", w.sequenceNumber)
		}
		handler(err)
	}()
}

// complete writes the init segment to the output path and appends the
// fragments written so far.
func (w *FileWriter) complete() error {
	init := &fmp4.Init{}
	for _, in := range w.inputs {
		track := w.tracks[in]
		codec, err := track.codec()
		if err != nil {
			return errors.Wrapf(err, "track %d (%s)", track.id, in.name)
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        track.id,
			TimeScale: track.timeScale,
			Codec:     codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return errors.Wrap(err, "failed to marshal init segment")
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to create output")
	}
	w.mu.Lock()
	w.createdOutput = true
	w.mu.Unlock()
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write init segment")
	}

	for _, in := range w.inputs {
		if in.mediaType != MediaTypeVideo || in.video.Transform.IsIdentity() {
			continue
		}
		if err := mp4box.PatchTrackMatrix(f, w.tracks[in].id, in.video.Transform); err != nil {
			return errors.Wrap(err, "failed to set track transform")
		}
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "failed to seek output")
	}

	parts, err := os.Open(w.partsPath)
	if err != nil {
		return errors.Wrap(err, "failed to open fragment file")
	}
	_, err = io.Copy(f, parts)
	parts.Close()
	if err != nil {
		return errors.Wrap(err, "failed to copy fragments")
	}

	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync output")
	}

	if err := os.Remove(w.partsPath); err != nil {
		w.logger.Warn("Failed to remove fragment file", "error", err)
	}
	return nil
}

func (w *FileWriter) removeFiles() {
	w.mu.Lock()
	created := w.createdOutput
	w.mu.Unlock()

	if created {
		if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Failed to remove output", "error", err)
		}
	}
	if err := os.Remove(w.partsPath); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to remove fragment file", "error", err)
	}
}

func (w *FileWriter) Cancel() {
	w.stop()

	w.mu.Lock()
	if w.status == StatusFinished {
		w.mu.Unlock()
		return
	}
	w.status = StatusFailed
	if w.err == nil {
		w.err = ErrCancelled
	}
	w.mu.Unlock()

	for _, in := range w.inputs {
		in.MarkAsFinished()
	}
	w.removeFiles()
}
