package audio

import (
	"context"
	"encoding/binary"
)

// toPCM16 clips samples to [-1, 1] and converts them to little-endian 16-bit.
func toPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s*32767)))
	}
	return out
}

// pcmEncoder emits headerless 16-bit little-endian mono PCM.
type pcmEncoder struct{}

func (pcmEncoder) Format() string      { return FormatPCM }
func (pcmEncoder) ContentType() string { return "audio/pcm" }

func (pcmEncoder) Encode(_ context.Context, samples []float32, _ int) ([]byte, error) {
	return toPCM16(samples), nil
}
