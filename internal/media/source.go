package media

import "context"

// Sink accepts typed sample buffers. Implementations must not block.
type Sink interface {
	Submit(buf *SampleBuffer, t SampleType)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(buf *SampleBuffer, t SampleType)

func (f SinkFunc) Submit(buf *SampleBuffer, t SampleType) { f(buf, t) }

// Source defines the interface for capture sources feeding a recording.
type Source interface {
	// Run delivers buffers to sink, in non-decreasing timestamp order per
	// sample type, until the source is exhausted or ctx is cancelled.
	Run(ctx context.Context, sink Sink) error
}
