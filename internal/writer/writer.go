// Package writer implements the asset-writer state machine used by recording
// pipelines: inputs are attached while unopened, a session is started at a
// source time, samples are appended through inputs, and the container is
// finished asynchronously.
package writer

import (
	"time"

	"github.com/pkg/errors"
)

// Status is the state of an asset writer.
type Status int

const (
	StatusUnopened Status = iota
	StatusWriting
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnopened:
		return "unopened"
	case StatusWriting:
		return "writing"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrNotReady is returned by Append when the input cannot accept more data.
	ErrNotReady = errors.New("input not ready for more media data")
	// ErrOutOfOrder is returned by Append for a timestamp earlier than the previous one.
	ErrOutOfOrder = errors.New("sample timestamp out of order")
	// ErrInputFinished is returned by Append after MarkAsFinished.
	ErrInputFinished = errors.New("input marked as finished")
	// ErrBeforeSessionStart is returned by Append for a sample earlier than
	// the session start time. The sample is discarded.
	ErrBeforeSessionStart = errors.New("sample precedes session start")
	// ErrCancelled is the error of a writer stopped with Cancel.
	ErrCancelled = errors.New("writer cancelled")
)

// AssetWriter writes the samples of one or more inputs into a container file.
type AssetWriter interface {
	// Path returns the output location.
	Path() string

	// CanAdd reports whether AddInput would succeed.
	CanAdd(in *Input) bool

	// AddInput attaches an input. Only allowed while unopened.
	AddInput(in *Input) error

	// StartWriting opens the output and moves the writer to StatusWriting.
	// On failure the writer moves to StatusFailed.
	StartWriting() error

	// StartSession sets the source time that maps to zero in the output.
	// Samples earlier than it are discarded.
	StartSession(at time.Duration)

	// Status returns the current state.
	Status() Status

	// Err returns the error that moved the writer to StatusFailed.
	Err() error

	// FinishWriting completes the output asynchronously. handler is invoked
	// exactly once, from another goroutine, with nil on success.
	FinishWriting(handler func(error))

	// Cancel stops writing and removes any output.
	Cancel()
}
