package engine

import (
	"context"
	"time"
)

// Backend constructs a Model. Load may be slow (weights download, device
// init); the Engine guarantees it is never called concurrently.
type Backend interface {
	Name() string
	Load(ctx context.Context) (Model, error)
}

// Model is a loaded speech model.
type Model interface {
	// Generate runs inference for req and invokes onChunk for every chunk of
	// audio in emission order. Implementations must return when ctx is
	// canceled. An error from onChunk aborts generation.
	Generate(ctx context.Context, req Request, onChunk func([]float32) error) error
	// SampleRate of the produced samples in Hz.
	SampleRate() int
	// Close releases resources held by the model.
	Close() error
}

// Request is a single synthesis job.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

// Result is the concatenated output of one synthesis.
type Result struct {
	Samples    []float32
	SampleRate int
}

// Duration is the playback length of the samples.
func (r Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}
