package service

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"kokorod/pkg/types"
)

const (
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	DefaultSpeed  = 1.0
	DefaultFormat = "wav"
)

// job is a validated GenerateRequest with defaults applied.
type job struct {
	text   string
	voice  string
	speed  float64
	format string
}

func (s *Service) validate(req types.GenerateRequest) (job, error) {
	j := job{text: req.Text, voice: req.Voice, speed: DefaultSpeed, format: strings.ToLower(strings.TrimSpace(req.Format))}

	if strings.TrimSpace(j.text) == "" {
		return job{}, &ValidationError{Field: "text", Msg: "text must not be empty"}
	}
	if n := utf8.RuneCountInString(j.text); n > s.maxTextLength {
		return job{}, &ValidationError{
			Field:  "text",
			Msg:    fmt.Sprintf("text too long: %d characters", n),
			Detail: fmt.Sprintf("maximum is %d characters", s.maxTextLength),
		}
	}

	if j.voice == "" {
		j.voice = s.defaultVoice
	}
	if !s.catalog.Has(j.voice) {
		return job{}, &ValidationError{
			Field:  "voice",
			Msg:    fmt.Sprintf("invalid voice %q", j.voice),
			Detail: "available voices: " + strings.Join(s.catalog.IDs(), ", "),
		}
	}

	if req.Speed != nil {
		j.speed = *req.Speed
	}
	if math.IsNaN(j.speed) || j.speed < MinSpeed || j.speed > MaxSpeed {
		return job{}, &ValidationError{
			Field:  "speed",
			Msg:    fmt.Sprintf("invalid speed %v", j.speed),
			Detail: fmt.Sprintf("speed must be between %.1f and %.1f", MinSpeed, MaxSpeed),
		}
	}

	if j.format == "" {
		j.format = DefaultFormat
	}
	if !s.encoders.Supports(j.format) {
		return job{}, &ValidationError{
			Field:  "format",
			Msg:    fmt.Sprintf("unsupported format %q", j.format),
			Detail: "supported formats: " + strings.Join(s.encoders.Formats(), ", "),
		}
	}
	return j, nil
}
