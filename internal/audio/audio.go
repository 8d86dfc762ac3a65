// Package audio encodes synthesized float32 samples into container formats.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Format names accepted in requests.
const (
	FormatWAV = "wav"
	FormatPCM = "pcm"
	FormatOGG = "ogg"
	FormatMP3 = "mp3"
)

// ErrUnsupportedFormat is returned by Registry.Encode for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Encoder turns mono float32 samples into a byte payload.
type Encoder interface {
	Format() string
	ContentType() string
	Encode(ctx context.Context, samples []float32, sampleRate int) ([]byte, error)
}

// Registry maps format names to encoders.
type Registry struct {
	encoders map[string]Encoder
}

// NewRegistry returns a registry with the built-in wav and pcm encoders. When
// ffmpegPath resolves to an executable, ogg and mp3 are registered as well.
func NewRegistry(ffmpegPath string, log zerolog.Logger) *Registry {
	r := &Registry{encoders: map[string]Encoder{}}
	r.Register(wavEncoder{})
	r.Register(pcmEncoder{})
	if ffmpegPath == "" {
		return r
	}
	bin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		log.Info().Str("ffmpeg", ffmpegPath).Msg("audio: ffmpeg not found; ogg and mp3 disabled")
		return r
	}
	r.Register(NewFFmpegEncoder(bin, FormatOGG))
	r.Register(NewFFmpegEncoder(bin, FormatMP3))
	log.Debug().Str("ffmpeg", bin).Msg("audio: ffmpeg encoders enabled")
	return r
}

// Register adds or replaces an encoder.
func (r *Registry) Register(e Encoder) {
	r.encoders[strings.ToLower(e.Format())] = e
}

// Get looks up an encoder by case-insensitive format name.
func (r *Registry) Get(format string) (Encoder, bool) {
	e, ok := r.encoders[strings.ToLower(format)]
	return e, ok
}

// Supports reports whether format has an encoder.
func (r *Registry) Supports(format string) bool {
	_, ok := r.Get(format)
	return ok
}

// Formats lists registered format names, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.encoders))
	for f := range r.encoders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Encode encodes samples using the encoder registered for format.
func (r *Registry) Encode(ctx context.Context, format string, samples []float32, sampleRate int) ([]byte, string, error) {
	e, ok := r.Get(format)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	b, err := e.Encode(ctx, samples, sampleRate)
	if err != nil {
		return nil, "", err
	}
	return b, e.ContentType(), nil
}
