// Package tts hosts the synthesis side of the speech workers: the loaded
// voice and the adapter that turns its PCM output into WAV responses.
package tts

import (
	"context"

	"github.com/sonuslabs/sonus-core/internal/audio"
)

// Defaults applied when a request omits a parameter or supplies a
// non-numeric value.
const (
	DefaultLengthScale = 0.85
	DefaultVolume      = 1.0
)

// SynthesisConfig carries the per-request synthesis parameters.
// LengthScale multiplies the spoken duration; Volume scales amplitude.
type SynthesisConfig struct {
	LengthScale float64
	Volume      float64
}

// VoiceInfo describes a loaded voice.
type VoiceInfo struct {
	Name       string
	SampleRate int
	BitDepth   int
}

// Voice abstracts the synthesis backend. Implementations load their
// model once at construction; the worker serializes calls.
type Voice interface {
	Synthesize(ctx context.Context, text string, cfg SynthesisConfig) (*audio.Buffer, error)
	Info() VoiceInfo
}
