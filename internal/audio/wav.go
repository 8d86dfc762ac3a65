package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// wavEncoder emits a RIFF/WAVE file with 16-bit mono PCM.
type wavEncoder struct{}

func (wavEncoder) Format() string      { return FormatWAV }
func (wavEncoder) ContentType() string { return "audio/wav" }

func (wavEncoder) Encode(_ context.Context, samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	data := toPCM16(samples)
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(data))
	if err := writeWAVHeader(&buf, sampleRate, len(data)); err != nil {
		return nil, err
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// EncodeWAV is a convenience wrapper around the wav encoder.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	return wavEncoder{}.Encode(context.Background(), samples, sampleRate)
}

// writeWAVHeader writes the 44-byte header for 16-bit mono PCM.
func writeWAVHeader(w io.Writer, sampleRate, dataSize int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16), // fmt chunk size
		uint16(1),  // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * blockAlign), // byte rate
		uint16(blockAlign),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		uint32(dataSize),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
