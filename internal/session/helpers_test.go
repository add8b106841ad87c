package session

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/media/mediatest"
	"github.com/babelcloud/screenrec/internal/merge"
	"github.com/babelcloud/screenrec/internal/mp4box"
	"github.com/babelcloud/screenrec/internal/workspace"
	"github.com/babelcloud/screenrec/internal/writer"
)

// fakeWriter records appended timestamps without touching the disk.
type fakeWriter struct {
	path string

	mu       sync.Mutex
	status   writer.Status
	notReady bool
	inputs   []*writer.Input
	appended map[string][]time.Duration
}

var (
	_ writer.AssetWriter = (*fakeWriter)(nil)
	_ writer.SampleQueue = (*fakeWriter)(nil)
)

func newFakeWriter(path string) *fakeWriter {
	return &fakeWriter{path: path, appended: map[string][]time.Duration{}}
}

func (f *fakeWriter) Path() string { return f.path }

func (f *fakeWriter) CanAdd(in *writer.Input) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == writer.StatusUnopened && !in.Attached()
}

func (f *fakeWriter) AddInput(in *writer.Input) error {
	if err := in.Attach(f); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return nil
}

func (f *fakeWriter) StartWriting() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = writer.StatusWriting
	return nil
}

func (f *fakeWriter) StartSession(time.Duration) {}

func (f *fakeWriter) Status() writer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeWriter) Err() error { return nil }

func (f *fakeWriter) FinishWriting(handler func(error)) {
	f.mu.Lock()
	f.status = writer.StatusFinished
	f.mu.Unlock()
	go handler(nil)
}

func (f *fakeWriter) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = writer.StatusFailed
}

func (f *fakeWriter) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status == writer.StatusWriting && !f.notReady
}

func (f *fakeWriter) Enqueue(in *writer.Input, buf *media.SampleBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended[in.Name()] = append(f.appended[in.Name()], buf.PTS)
	return nil
}

func (f *fakeWriter) setNotReady(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady = v
}

// fakeFactory hands out fake writers keyed by path.
type fakeFactory struct {
	mu      sync.Mutex
	calls   int
	writers map[string]*fakeWriter
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{writers: map[string]*fakeWriter{}}
}

func (f *fakeFactory) create(path string) (writer.AssetWriter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	w := newFakeWriter(path)
	f.writers[path] = w
	return w, nil
}

func (f *fakeFactory) get(path string) *fakeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[path]
}

// gatedWriter is a real file writer whose completion waits for gate.
// failFinish replaces a successful finish result.
type gatedWriter struct {
	*writer.FileWriter
	gate       chan struct{}
	failStart  bool
	failFinish error
}

func (w *gatedWriter) StartWriting() error {
	if w.failStart {
		return errors.New("simulated start failure")
	}
	return w.FileWriter.StartWriting()
}

func (w *gatedWriter) FinishWriting(handler func(error)) {
	w.FileWriter.FinishWriting(func(err error) {
		if w.gate != nil {
			<-w.gate
		}
		if err == nil && w.failFinish != nil {
			err = w.failFinish
		}
		handler(err)
	})
}

// countingExporter counts exports and delegates to the MP4 exporter.
type countingExporter struct {
	calls atomic.Int32
	inner merge.Exporter
}

func newCountingExporter() *countingExporter {
	return &countingExporter{inner: merge.NewMP4Exporter(nil)}
}

func (e *countingExporter) Export(ctx context.Context, comp *merge.Composition, dst string, s merge.ExportSettings) error {
	e.calls.Add(1)
	return e.inner.Export(ctx, comp, dst, s)
}

type result struct {
	path string
	err  error
}

// completion collects onComplete invocations.
type completion struct {
	mu      sync.Mutex
	results []result
	ch      chan result
}

func newCompletion() *completion {
	return &completion{ch: make(chan result, 4)}
}

func (c *completion) handler(path string, err error) {
	c.mu.Lock()
	c.results = append(c.results, result{path, err})
	c.mu.Unlock()
	c.ch <- result{path, err}
}

func (c *completion) wait(t *testing.T) result {
	t.Helper()
	select {
	case r := <-c.ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("completion not called")
		return result{}
	}
}

func (c *completion) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func testWorkspace(t *testing.T) *workspace.Manager {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	return ws
}

func stereo() writer.AudioSettings {
	return writer.AudioSettings{
		Format:        writer.AudioFormatMPEG4AAC,
		SampleRate:    44100,
		ChannelCount:  2,
		ChannelLayout: writer.ChannelLayoutStereo,
	}
}

type timedSample struct {
	buf *media.SampleBuffer
	typ media.SampleType
}

// interleave returns video and application audio samples ordered by PTS.
func interleave(videoCount int, videoStep time.Duration, audioCount int, audioStep time.Duration) []timedSample {
	var out []timedSample
	for i := 0; i < videoCount; i++ {
		out = append(out, timedSample{mediatest.VideoSample(time.Duration(i)*videoStep, i == 0), media.SampleTypeVideo})
	}
	for i := 0; i < audioCount; i++ {
		out = append(out, timedSample{mediatest.AudioSample(time.Duration(i) * audioStep), media.SampleTypeApplicationAudio})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].buf.PTS < out[j].buf.PTS
	})
	return out
}

func submitAll(s *Session, samples []timedSample) {
	for _, ts := range samples {
		s.Submit(ts.buf, ts.typ)
	}
}

func probeFile(t *testing.T, path string) *mp4box.ProbeResult {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	res, err := mp4box.Probe(f)
	require.NoError(t, err)
	return res
}

func requireNoIntermediates(t *testing.T, ws *workspace.Manager) {
	t.Helper()
	require.False(t, ws.Exists(ws.VideoPath()))
	require.False(t, ws.Exists(ws.AudioPath()))
	require.False(t, ws.Exists(ws.VideoPath()+writer.PartsSuffix))
	require.False(t, ws.Exists(ws.AudioPath()+writer.PartsSuffix))
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("stale"), 0o644)
}

func contextWithTimeout(t *testing.T, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.Context(), d)
}
