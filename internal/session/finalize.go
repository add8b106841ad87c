package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Finalize stops the recording. Both pipelines are finished concurrently;
// once both reported back the recording context is reset and, if neither
// failed, the intermediates are merged. onComplete is called exactly once
// from another goroutine with either the output path or an error.
//
// Only the first call has an effect. Later calls complete with
// ErrAlreadyFinalized.
func (s *Session) Finalize(onComplete func(path string, err error)) {
	if onComplete == nil {
		onComplete = func(string, error) {}
	}

	s.mu.Lock()
	if s.rc.state != StateRecording {
		s.mu.Unlock()
		go onComplete("", ErrAlreadyFinalized)
		return
	}
	s.rc.state = StateFinalizing
	video, audio := s.video, s.audio
	s.mu.Unlock()

	s.logger.Info("Finalizing session", "elapsed", s.Elapsed())

	go func() {
		path, err := s.finalize(video, audio)
		s.complete(path, err, onComplete)
	}()
}

func (s *Session) finalize(video, audio *pipeline) (string, error) {
	if err := s.join(video, audio); err != nil {
		s.setState(StateFailed)
		if clearErr := s.ws.ClearAll(); clearErr != nil {
			s.logger.Warn("Failed to remove session files", "error", clearErr)
		}
		return "", err
	}

	s.setState(StateMerging)
	return s.merger.Merge(context.Background())
}

// join finishes both pipelines and waits for both completions. The video
// error takes precedence when both failed.
func (s *Session) join(video, audio *pipeline) error {
	defer s.release()

	if video == nil || audio == nil {
		return ErrNoPipelines
	}

	video.markInputsFinished()
	audio.markInputsFinished()

	var videoErr, audioErr error
	var g errgroup.Group

	g.Go(func() error {
		videoErr = video.finish(true)
		s.markDone(video)
		return videoErr
	})
	g.Go(func() error {
		audioErr = audio.finish(false)
		s.markDone(audio)
		return audioErr
	})

	if err := g.Wait(); err != nil {
		if videoErr != nil {
			return videoErr
		}
		return audioErr
	}
	return nil
}

func (s *Session) markDone(p *pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == s.video {
		s.rc.videoDone = true
	} else {
		s.rc.audioDone = true
	}
	s.logger.Debug("Pipeline completed",
		"pipeline", p.name,
		"videoDone", s.rc.videoDone,
		"audioDone", s.rc.audioDone)
}

// release drops the pipelines and resets the recording context. The time
// base keeps the final elapsed time.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.video = nil
	s.audio = nil
	s.rc.reset()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rc.state = state
}

func (s *Session) complete(path string, err error, onComplete func(string, error)) {
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("Session failed", "error", err)
	} else {
		s.setState(StateDone)
		s.logger.Info("Session completed", "path", path)
	}

	s.resultPath = path
	s.resultErr = err
	close(s.done)

	onComplete(path, err)
}
