package session

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/babelcloud/screenrec/internal/media"
	"github.com/babelcloud/screenrec/internal/writer"
)

// WriterFactory creates the asset writer of a pipeline.
type WriterFactory func(path string) (writer.AssetWriter, error)

// pipeline wraps one asset writer and the inputs feeding it.
type pipeline struct {
	name   string
	writer writer.AssetWriter
	inputs map[media.SampleType]*writer.Input
	err    error
	logger *slog.Logger
}

type inputSpec struct {
	sampleType media.SampleType
	input      *writer.Input
}

// newPipeline creates the writer and attaches the inputs. A setup failure is
// recorded on the pipeline and reported when it is finished.
func newPipeline(name, path string, factory WriterFactory, specs []inputSpec, logger *slog.Logger) *pipeline {
	p := &pipeline{
		name:   name,
		inputs: make(map[media.SampleType]*writer.Input, len(specs)),
		logger: logger.With("pipeline", name),
	}

	w, err := factory(path)
	if err != nil {
		p.fail(errors.Wrapf(err, "failed to create %s writer", name))
		return p
	}
	p.writer = w

	for _, spec := range specs {
		if !w.CanAdd(spec.input) {
			p.fail(errors.Errorf("cannot add input %s to %s writer", spec.input.Name(), name))
			return p
		}
		if err := w.AddInput(spec.input); err != nil {
			p.fail(errors.Wrapf(err, "failed to add input %s", spec.input.Name()))
			return p
		}
		p.inputs[spec.sampleType] = spec.input
	}

	return p
}

func (p *pipeline) fail(err error) {
	p.err = err
	p.logger.Error("Pipeline failed", "error", err)
}

func (p *pipeline) status() writer.Status {
	if p.err != nil || p.writer == nil {
		return writer.StatusFailed
	}
	return p.writer.Status()
}

// start opens the writer and starts its session at pts.
func (p *pipeline) start(pts time.Duration) error {
	if err := p.writer.StartWriting(); err != nil {
		err = errors.Wrapf(err, "failed to start %s writer", p.name)
		p.fail(err)
		return err
	}
	p.writer.StartSession(pts)
	p.logger.Debug("Writer session started", "pts", pts)
	return nil
}

func (p *pipeline) markInputsFinished() {
	for _, in := range p.inputs {
		in.MarkAsFinished()
	}
}

// finish completes the writer and blocks until it reports back. Unopened
// writers are cancelled; required reports whether that is an error.
func (p *pipeline) finish(required bool) error {
	if p.err != nil {
		if p.writer != nil {
			p.writer.Cancel()
		}
		return p.err
	}

	switch p.writer.Status() {
	case writer.StatusUnopened:
		p.writer.Cancel()
		if required {
			return ErrNoVideo
		}
		p.logger.Info("Pipeline never started, skipping")
		return nil

	case writer.StatusFailed:
		err := p.writer.Err()
		p.writer.Cancel()
		if err == nil {
			err = errors.Errorf("%s writer failed", p.name)
		}
		return errors.Wrapf(err, "%s pipeline failed", p.name)
	}

	done := make(chan error, 1)
	p.writer.FinishWriting(func(err error) {
		done <- err
	})

	if err := <-done; err != nil {
		return errors.Wrapf(err, "failed to finish %s writer", p.name)
	}
	p.logger.Debug("Pipeline finished")
	return nil
}
