package engine

import (
	"errors"
	"net/http"
)

// ErrNoAudio is the cause reported when non-empty text yields no samples.
var ErrNoAudio = errors.New("model produced no audio for non-empty text")

// LoadError reports that the model could not be constructed.
type LoadError struct{ Err error }

func (e *LoadError) Error() string   { return "engine load failed: " + e.Err.Error() }
func (e *LoadError) Unwrap() error   { return e.Err }
func (e *LoadError) StatusCode() int { return http.StatusInternalServerError }

// IsLoadError reports whether err is (or wraps) a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// SynthesisError reports a failure during inference. No audio accompanies it.
type SynthesisError struct{ Err error }

func (e *SynthesisError) Error() string   { return "speech generation failed: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error   { return e.Err }
func (e *SynthesisError) StatusCode() int { return http.StatusInternalServerError }

// IsSynthesisError reports whether err is (or wraps) a SynthesisError.
func IsSynthesisError(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se)
}
