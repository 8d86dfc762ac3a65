package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultFFmpegTimeout bounds a single transcode.
const DefaultFFmpegTimeout = 60 * time.Second

// ffmpegEncoder pipes a WAV rendition through ffmpeg to produce compressed
// formats.
type ffmpegEncoder struct {
	bin     string
	format  string
	timeout time.Duration
}

// NewFFmpegEncoder returns an encoder for format (ogg or mp3) using bin.
func NewFFmpegEncoder(bin, format string) Encoder {
	return &ffmpegEncoder{bin: bin, format: format, timeout: DefaultFFmpegTimeout}
}

func (e *ffmpegEncoder) Format() string { return e.format }

func (e *ffmpegEncoder) ContentType() string {
	switch e.format {
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func (e *ffmpegEncoder) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0", "-vn"}
	switch e.format {
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-b:a", "128k", "-f", "mp3")
	case FormatOGG:
		args = append(args, "-c:a", "libvorbis", "-q:a", "4", "-f", "ogg")
	}
	return append(args, "pipe:1")
}

func (e *ffmpegEncoder) Encode(ctx context.Context, samples []float32, sampleRate int) ([]byte, error) {
	wav, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, e.bin, e.args()...)
	cmd.Stdin = bytes.NewReader(wav)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg %s: %w", e.format, ctxErr)
		}
		return nil, fmt.Errorf("ffmpeg %s: %w: %s", e.format, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg %s: empty output", e.format)
	}
	return stdout.Bytes(), nil
}
