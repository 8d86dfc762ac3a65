package engine

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// toneBackend synthesizes a deterministic tone burst per word. It needs no
// model files and is used for development and tests.
type toneBackend struct {
	sampleRate int
	loadDelay  time.Duration
}

// NewToneBackend constructs the tone generator. loadDelay simulates model
// initialization time.
func NewToneBackend(sampleRate int, loadDelay time.Duration) Backend {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &toneBackend{sampleRate: sampleRate, loadDelay: loadDelay}
}

func (b *toneBackend) Name() string { return "tone" }

func (b *toneBackend) Load(ctx context.Context) (Model, error) {
	if b.loadDelay > 0 {
		t := time.NewTimer(b.loadDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &toneModel{sampleRate: b.sampleRate}, nil
}

type toneModel struct{ sampleRate int }

func (m *toneModel) SampleRate() int { return m.sampleRate }
func (m *toneModel) Close() error    { return nil }

// Generate emits one chunk per whitespace-separated word: a sine burst whose
// pitch depends on the voice and word, followed by a short gap.
func (m *toneModel) Generate(ctx context.Context, r Request, onChunk func([]float32) error) error {
	speed := r.Speed
	if speed <= 0 {
		speed = 1
	}
	base := voicePitch(r.Voice)
	for _, w := range strings.Fields(r.Text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		tone := time.Duration(float64(80*time.Millisecond+time.Duration(len(w))*15*time.Millisecond) / speed)
		gap := time.Duration(float64(40*time.Millisecond) / speed)
		freq := base * (1 + float64(wordHash(w)%12)/24)
		if err := onChunk(m.burst(freq, tone, gap)); err != nil {
			return err
		}
	}
	return nil
}

func (m *toneModel) burst(freq float64, tone, gap time.Duration) []float32 {
	nTone := int(tone.Seconds() * float64(m.sampleRate))
	nGap := int(gap.Seconds() * float64(m.sampleRate))
	out := make([]float32, nTone+nGap)
	for i := 0; i < nTone; i++ {
		// short linear fade keeps burst edges click-free
		env := 1.0
		if fade := m.sampleRate / 200; fade > 0 {
			if i < fade {
				env = float64(i) / float64(fade)
			} else if nTone-i < fade {
				env = float64(nTone-i) / float64(fade)
			}
		}
		out[i] = float32(0.3 * env * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate)))
	}
	return out
}

func voicePitch(voice string) float64 {
	// female voices sit an octave above male ones; id format is <lang><gender>_<name>
	if len(voice) >= 2 && voice[1] == 'f' {
		return 440
	}
	return 220
}

func wordHash(w string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(w)))
	return h.Sum32()
}
