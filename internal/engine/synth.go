package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type outcome struct {
	res Result
	err error
}

// Synthesize converts req into samples. It loads the model if needed, then
// runs inference on the bounded worker pool so the calling goroutine only
// waits. Chunks are concatenated in emission order.
//
// Empty text may legitimately produce zero samples; non-empty text that
// produces none is a SynthesisError. If ctx ends first, ctx.Err() is returned
// and the job is abandoned.
func (e *Engine) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return Result{}, err
	}
	if err := e.workers.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	m := e.model
	done := make(chan outcome, 1)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.workers.Release(1)
		busyWorkers.Inc()
		defer busyWorkers.Dec()
		start := time.Now()
		res, err := e.run(ctx, m, req)
		e.observe(req, res, err, time.Since(start))
		done <- outcome{res: res, err: err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, m Model, req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = &SynthesisError{Err: fmt.Errorf("panic during inference: %v", r)}
		}
	}()
	var chunks [][]float32
	total := 0
	genErr := m.Generate(ctx, req, func(c []float32) error {
		if len(c) == 0 {
			return nil
		}
		chunks = append(chunks, c)
		total += len(c)
		return nil
	})
	if genErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, &SynthesisError{Err: genErr}
	}
	samples := make([]float32, 0, total)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	if len(samples) == 0 && strings.TrimSpace(req.Text) != "" {
		return Result{}, &SynthesisError{Err: ErrNoAudio}
	}
	return Result{Samples: samples, SampleRate: m.SampleRate()}, nil
}

func (e *Engine) observe(req Request, res Result, err error, elapsed time.Duration) {
	if err != nil {
		synthesisDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		e.log.Warn().Err(err).Str("event", EventSynthesisFailed).Str("voice", req.Voice).Dur("elapsed", elapsed).Msg("engine: synthesis failed")
		e.publisher.Publish(Event{Name: EventSynthesisFailed, Voice: req.Voice, Time: time.Now(), Fields: map[string]any{"error": err.Error()}})
		return
	}
	synthesisDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	e.log.Debug().Str("event", EventSynthesisDone).Str("voice", req.Voice).Int("samples", len(res.Samples)).Dur("elapsed", elapsed).Msg("engine: synthesis done")
	e.publisher.Publish(Event{Name: EventSynthesisDone, Voice: req.Voice, Time: time.Now(), Fields: map[string]any{
		"samples":    len(res.Samples),
		"elapsed_ms": elapsed.Milliseconds(),
	}})
}
