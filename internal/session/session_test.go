package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/media/mediatest"
	"github.com/babelcloud/screenrec/internal/writer"
)

func TestTimeBase(t *testing.T) {
	tb := NewTimeBase()
	var got []float64
	tb.OnUpdate(func(seconds float64) {
		got = append(got, seconds)
	})

	tb.Anchor(2 * time.Second)
	assert.Equal(t, time.Duration(0), tb.Update(2*time.Second))
	assert.Equal(t, 500*time.Millisecond, tb.Update(2500*time.Millisecond))

	// never decreases
	assert.Equal(t, 500*time.Millisecond, tb.Update(2100*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, tb.Elapsed())
	assert.Equal(t, []float64{0, 0.5, 0.5}, got)

	// a later anchor restarts the elapsed time
	tb.Anchor(3 * time.Second)
	assert.Equal(t, time.Duration(0), tb.Elapsed())
	assert.Equal(t, 250*time.Millisecond, tb.Update(3250*time.Millisecond))
}

func TestTimeBaseAnchorsOnFirstUpdate(t *testing.T) {
	tb := NewTimeBase()
	assert.Equal(t, time.Duration(0), tb.Update(time.Second))
	assert.Equal(t, 100*time.Millisecond, tb.Update(1100*time.Millisecond))
}

func TestNewPreparesWorkspace(t *testing.T) {
	ws := testWorkspace(t)
	require.NoError(t, ws.Prepare())
	for _, p := range []string{ws.VideoPath(), ws.AudioPath(), ws.OutputPath()} {
		require.NoError(t, writeFile(p))
	}

	s, err := New(ws)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID())
	assert.Equal(t, StateRecording, s.State())

	assert.False(t, ws.Exists(ws.VideoPath()))
	assert.False(t, ws.Exists(ws.AudioPath()))
	assert.False(t, ws.Exists(ws.OutputPath()))

	_, err = New(nil)
	require.Error(t, err)

	bad := writer.DefaultVideoSettings(0, 0)
	_, err = New(ws, WithVideoSettings(bad))
	require.Error(t, err)
}

func TestThirtyFramesScenario(t *testing.T) {
	ws := testWorkspace(t)

	var mu sync.Mutex
	var progress []float64
	s, err := New(ws,
		WithAudioSettings(stereo()),
		WithProgress(func(seconds float64) {
			mu.Lock()
			progress = append(progress, seconds)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	submitAll(s, interleave(30, 33*time.Millisecond, 30, 20*time.Millisecond))

	stats := s.Stats()
	assert.Equal(t, int64(30), stats.Video.Appended)
	assert.Equal(t, int64(30), stats.ApplicationAudio.Appended)

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)

	require.NoError(t, r.err)
	require.Equal(t, ws.OutputPath(), r.path)
	assert.Equal(t, StateDone, s.State())

	res := probeFile(t, r.path)
	require.Len(t, res.Tracks, 2)
	assert.Equal(t, "avc1", res.Tracks[0].Codec)
	assert.Equal(t, 30, res.Tracks[0].Samples)
	assert.InDelta(t, float64(990*time.Millisecond), float64(res.Tracks[0].Duration), float64(5*time.Millisecond))
	assert.Equal(t, "mp4a", res.Tracks[1].Codec)

	mu.Lock()
	require.Len(t, progress, 30)
	assert.Equal(t, 0.0, progress[0])
	assert.InDelta(t, 0.957, progress[len(progress)-1], 0.001)
	mu.Unlock()
	assert.Equal(t, 957*time.Millisecond, s.Elapsed())

	requireNoIntermediates(t, ws)
	assert.False(t, s.Paused())

	path, err := s.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, r.path, path)
}

func TestPauseScenario(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, WithAudioSettings(stereo()))
	require.NoError(t, err)

	frame := 33 * time.Millisecond
	submit := func(i int) {
		s.Submit(mediatest.VideoSample(time.Duration(i)*frame, i == 0), media.SampleTypeVideo)
	}

	for i := 0; i < 10; i++ {
		submit(i)
	}
	s.SetPaused(true)
	require.True(t, s.Paused())
	for i := 10; i < 15; i++ {
		submit(i)
	}
	s.SetPaused(false)
	for i := 15; i < 20; i++ {
		submit(i)
	}

	stats := s.Stats()
	assert.Equal(t, int64(15), stats.Video.Appended)
	assert.Equal(t, int64(5), stats.Video.DroppedPaused)

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)
	require.NoError(t, r.err)

	res := probeFile(t, r.path)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, 15, res.Tracks[0].Samples)
	requireNoIntermediates(t, ws)
}

func TestPausedSubmitDoesNotTouchPipelines(t *testing.T) {
	ws := testWorkspace(t)
	factory := newFakeFactory()
	s, err := New(ws, WithWriterFactory(factory.create))
	require.NoError(t, err)

	s.SetPaused(true)
	for i := 0; i < 5; i++ {
		s.Submit(mediatest.VideoSample(time.Duration(i)*time.Millisecond, i == 0), media.SampleTypeVideo)
		s.Submit(mediatest.AudioSample(time.Duration(i)*time.Millisecond), media.SampleTypeMicrophoneAudio)
	}

	assert.Equal(t, 0, factory.calls)
	assert.Equal(t, time.Duration(0), s.Elapsed())
	stats := s.Stats()
	assert.Equal(t, int64(5), stats.Video.DroppedPaused)
	assert.Equal(t, int64(5), stats.MicrophoneAudio.DroppedPaused)
	assert.Equal(t, int64(0), stats.Video.Appended)

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)
	require.ErrorIs(t, r.err, ErrNoPipelines)
	assert.Empty(t, r.path)
	assert.Equal(t, StateFailed, s.State())
}

func TestAnchorIgnoresAudio(t *testing.T) {
	ws := testWorkspace(t)
	factory := newFakeFactory()

	var elapsed []time.Duration
	s, err := New(ws,
		WithWriterFactory(factory.create),
		WithProgress(func(seconds float64) {
			elapsed = append(elapsed, time.Duration(seconds*float64(time.Second)).Round(time.Millisecond))
		}),
	)
	require.NoError(t, err)

	s.Submit(mediatest.AudioSample(0), media.SampleTypeApplicationAudio)
	s.Submit(mediatest.AudioSample(100*time.Millisecond), media.SampleTypeMicrophoneAudio)
	s.Submit(mediatest.VideoSample(500*time.Millisecond, true), media.SampleTypeVideo)
	s.Submit(mediatest.AudioSample(520*time.Millisecond), media.SampleTypeApplicationAudio)
	s.Submit(mediatest.VideoSample(600*time.Millisecond, false), media.SampleTypeVideo)
	s.Submit(mediatest.AudioSample(640*time.Millisecond), media.SampleTypeMicrophoneAudio)
	s.Submit(mediatest.VideoSample(750*time.Millisecond, false), media.SampleTypeVideo)

	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 250 * time.Millisecond}, elapsed)
	assert.Equal(t, 250*time.Millisecond, s.Elapsed())

	audio := factory.get(ws.AudioPath())
	require.NotNil(t, audio)
	assert.Equal(t, []time.Duration{0, 520 * time.Millisecond}, audio.appended[applicationAudioInput])
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 640 * time.Millisecond}, audio.appended[microphoneAudioInput])

	video := factory.get(ws.VideoPath())
	require.NotNil(t, video)
	assert.Len(t, video.appended["video"], 3)
}

func TestNotReadyInputDropsSamples(t *testing.T) {
	ws := testWorkspace(t)
	factory := newFakeFactory()
	s, err := New(ws, WithWriterFactory(factory.create))
	require.NoError(t, err)

	s.Submit(mediatest.VideoSample(0, true), media.SampleTypeVideo)

	video := factory.get(ws.VideoPath())
	video.setNotReady(true)
	s.Submit(mediatest.VideoSample(33*time.Millisecond, false), media.SampleTypeVideo)
	s.Submit(mediatest.VideoSample(66*time.Millisecond, false), media.SampleTypeVideo)

	video.setNotReady(false)
	s.Submit(mediatest.VideoSample(99*time.Millisecond, false), media.SampleTypeVideo)

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Video.Appended)
	assert.Equal(t, int64(2), stats.Video.DroppedNotReady)
	assert.Equal(t, 99*time.Millisecond, s.Elapsed())
}

func TestAppendFailureIsNotFatal(t *testing.T) {
	ws := testWorkspace(t)
	factory := newFakeFactory()
	s, err := New(ws, WithWriterFactory(factory.create))
	require.NoError(t, err)

	s.Submit(mediatest.VideoSample(100*time.Millisecond, true), media.SampleTypeVideo)
	s.Submit(mediatest.VideoSample(50*time.Millisecond, false), media.SampleTypeVideo)
	s.Submit(mediatest.VideoSample(200*time.Millisecond, false), media.SampleTypeVideo)

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Video.Appended)
	assert.Equal(t, int64(1), stats.Video.AppendFailed)
	assert.Equal(t, writer.StatusWriting, factory.get(ws.VideoPath()).Status())
}

func TestVideoStartFailureScenario(t *testing.T) {
	ws := testWorkspace(t)
	exporter := newCountingExporter()

	factory := func(path string) (writer.AssetWriter, error) {
		fw, err := writer.NewFileWriter(path)
		if err != nil {
			return nil, err
		}
		return &gatedWriter{FileWriter: fw, failStart: path == ws.VideoPath()}, nil
	}

	s, err := New(ws, WithWriterFactory(factory), WithExporter(exporter), WithAudioSettings(stereo()))
	require.NoError(t, err)

	submitAll(s, interleave(10, 33*time.Millisecond, 10, 20*time.Millisecond))

	stats := s.Stats()
	assert.Equal(t, int64(0), stats.Video.Appended)
	assert.Equal(t, int64(10), stats.Video.DroppedClosed)
	assert.Equal(t, int64(10), stats.ApplicationAudio.Appended)

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)

	require.Error(t, r.err)
	assert.Empty(t, r.path)
	assert.Equal(t, int32(0), exporter.calls.Load())
	assert.Equal(t, StateFailed, s.State())
	requireNoIntermediates(t, ws)
	assert.False(t, ws.Exists(ws.OutputPath()))
}

func TestSetupFailureReportedAtFinalize(t *testing.T) {
	ws := testWorkspace(t)
	fakes := newFakeFactory()

	factory := func(path string) (writer.AssetWriter, error) {
		if path == ws.AudioPath() {
			return nil, assert.AnError
		}
		return fakes.create(path)
	}

	s, err := New(ws, WithWriterFactory(factory))
	require.NoError(t, err)

	s.Submit(mediatest.VideoSample(0, true), media.SampleTypeVideo)
	s.Submit(mediatest.AudioSample(0), media.SampleTypeApplicationAudio)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Video.Appended)
	assert.Equal(t, int64(1), stats.ApplicationAudio.DroppedClosed)

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)
	require.ErrorIs(t, r.err, assert.AnError)
}

func TestJoinMergesOnce(t *testing.T) {
	for _, order := range []string{"video-first", "audio-first", "together"} {
		t.Run(order, func(t *testing.T) {
			ws := testWorkspace(t)
			exporter := newCountingExporter()
			gates := map[string]chan struct{}{
				ws.VideoPath(): make(chan struct{}),
				ws.AudioPath(): make(chan struct{}),
			}

			factory := func(path string) (writer.AssetWriter, error) {
				fw, err := writer.NewFileWriter(path)
				if err != nil {
					return nil, err
				}
				return &gatedWriter{FileWriter: fw, gate: gates[path]}, nil
			}

			s, err := New(ws, WithWriterFactory(factory), WithExporter(exporter), WithAudioSettings(stereo()))
			require.NoError(t, err)

			submitAll(s, interleave(10, 33*time.Millisecond, 10, 20*time.Millisecond))

			c := newCompletion()
			s.Finalize(c.handler)

			switch order {
			case "video-first":
				close(gates[ws.VideoPath()])
				time.Sleep(20 * time.Millisecond)
				assert.Equal(t, StateFinalizing, s.State())
				close(gates[ws.AudioPath()])
			case "audio-first":
				close(gates[ws.AudioPath()])
				time.Sleep(20 * time.Millisecond)
				assert.Equal(t, StateFinalizing, s.State())
				close(gates[ws.VideoPath()])
			default:
				var wg sync.WaitGroup
				for _, g := range gates {
					wg.Add(1)
					go func(g chan struct{}) {
						defer wg.Done()
						close(g)
					}(g)
				}
				wg.Wait()
			}

			r := c.wait(t)
			require.NoError(t, r.err)
			assert.Equal(t, int32(1), exporter.calls.Load())
			assert.Equal(t, 1, c.count())
			requireNoIntermediates(t, ws)
		})
	}
}

func TestFinalizeTwice(t *testing.T) {
	ws := testWorkspace(t)
	exporter := newCountingExporter()
	s, err := New(ws, WithExporter(exporter), WithAudioSettings(stereo()))
	require.NoError(t, err)

	submitAll(s, interleave(5, 33*time.Millisecond, 5, 20*time.Millisecond))

	first := newCompletion()
	second := newCompletion()
	s.Finalize(first.handler)
	s.Finalize(second.handler)

	r2 := second.wait(t)
	require.ErrorIs(t, r2.err, ErrAlreadyFinalized)
	assert.Empty(t, r2.path)

	r1 := first.wait(t)
	require.NoError(t, r1.err)
	assert.NotEmpty(t, r1.path)

	third := newCompletion()
	s.Finalize(third.handler)
	require.ErrorIs(t, third.wait(t).err, ErrAlreadyFinalized)

	assert.Equal(t, 1, first.count())
	assert.Equal(t, int32(1), exporter.calls.Load())
	assert.True(t, ws.Exists(r1.path))
}

func TestSubmitAfterFinalizeIsDropped(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, WithAudioSettings(stereo()))
	require.NoError(t, err)

	s.Submit(mediatest.VideoSample(0, true), media.SampleTypeVideo)
	c := newCompletion()
	s.Finalize(c.handler)

	s.Submit(mediatest.VideoSample(33*time.Millisecond, false), media.SampleTypeVideo)

	r := c.wait(t)
	require.NoError(t, r.err)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Video.Appended)
	assert.Equal(t, int64(1), stats.Video.DroppedClosed)
}

func TestFinalizeWithoutVideo(t *testing.T) {
	ws := testWorkspace(t)
	exporter := newCountingExporter()
	s, err := New(ws, WithExporter(exporter), WithAudioSettings(stereo()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Submit(mediatest.AudioSample(time.Duration(i)*20*time.Millisecond), media.SampleTypeApplicationAudio)
	}

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)

	require.ErrorIs(t, r.err, ErrNoVideo)
	assert.Equal(t, int32(0), exporter.calls.Load())
	requireNoIntermediates(t, ws)
}

func TestWaitHonorsContext(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, WithWriterFactory(newFakeFactory().create))
	require.NoError(t, err)

	ctx, cancel := contextWithTimeout(t, 10*time.Millisecond)
	defer cancel()

	_, err = s.Wait(ctx)
	require.Error(t, err)
}

func TestFinishFailureSkipsMerge(t *testing.T) {
	ws := testWorkspace(t)
	exporter := newCountingExporter()

	factory := func(path string) (writer.AssetWriter, error) {
		fw, err := writer.NewFileWriter(path)
		if err != nil {
			return nil, err
		}
		w := &gatedWriter{FileWriter: fw}
		if path == ws.AudioPath() {
			w.failFinish = assert.AnError
		}
		return w, nil
	}

	s, err := New(ws, WithWriterFactory(factory), WithExporter(exporter), WithAudioSettings(stereo()))
	require.NoError(t, err)

	submitAll(s, interleave(10, 33*time.Millisecond, 10, 20*time.Millisecond))

	c := newCompletion()
	s.Finalize(c.handler)
	r := c.wait(t)

	require.ErrorIs(t, r.err, assert.AnError)
	assert.Empty(t, r.path)
	assert.Equal(t, int32(0), exporter.calls.Load())
	assert.Equal(t, StateFailed, s.State())
	requireNoIntermediates(t, ws)
	assert.False(t, ws.Exists(ws.OutputPath()))
}

func TestProgressCallbackMayUseSession(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, WithWriterFactory(newFakeFactory().create))
	require.NoError(t, err)

	var states []State
	s.OnElapsed(func(float64) {
		states = append(states, s.State())
	})

	c := newCompletion()
	var once sync.Once
	s.OnElapsed(func(seconds float64) {
		if seconds > 0 {
			once.Do(func() { s.Finalize(c.handler) })
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Submit(mediatest.VideoSample(0, true), media.SampleTypeVideo)
		s.Submit(mediatest.VideoSample(33*time.Millisecond, false), media.SampleTypeVideo)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked in progress callback")
	}

	assert.Equal(t, []State{StateRecording, StateRecording}, states)
	c.wait(t)
	assert.Equal(t, int64(2), s.Stats().Video.Appended)
}

func TestSubmitIgnoresUnknownType(t *testing.T) {
	ws := testWorkspace(t)
	factory := newFakeFactory()
	s, err := New(ws, WithWriterFactory(factory.create))
	require.NoError(t, err)

	s.Submit(mediatest.AudioSample(0), media.SampleType(7))

	assert.Equal(t, 0, factory.calls)
	assert.Equal(t, Stats{}, s.Stats())

	c := newCompletion()
	s.Finalize(c.handler)
	require.ErrorIs(t, c.wait(t).err, ErrNoPipelines)
}

func TestSamplesBeforeAudioStartAreCounted(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, WithAudioSettings(stereo()))
	require.NoError(t, err)

	s.Submit(mediatest.AudioSample(100*time.Millisecond), media.SampleTypeApplicationAudio)
	s.Submit(mediatest.AudioSample(50*time.Millisecond), media.SampleTypeMicrophoneAudio)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.ApplicationAudio.Appended)
	assert.Equal(t, int64(0), stats.MicrophoneAudio.Appended)
	assert.Equal(t, int64(1), stats.MicrophoneAudio.DroppedEarly)
	assert.Equal(t, int64(0), stats.MicrophoneAudio.AppendFailed)

	c := newCompletion()
	s.Finalize(c.handler)
	require.ErrorIs(t, c.wait(t).err, ErrNoVideo)
}
