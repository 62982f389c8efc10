package tts

import (
	"context"
	"errors"
	"math"

	"github.com/sonuslabs/sonus-core/internal/audio"
)

const (
	toneSecondsPerRune = 0.06
	toneBaseFrequency  = 220.0
	toneBaseAmplitude  = 0.2
)

// toneVoice is the built-in voice: a deterministic sine tone whose
// duration tracks text length and length_scale, and whose amplitude
// tracks volume. It keeps the synthesis worker fully functional without
// an external voice model and gives tests audible, predictable output.
type toneVoice struct {
	sampleRate int
}

func NewToneVoice(sampleRate int) Voice {
	return &toneVoice{sampleRate: sampleRate}
}

func (v *toneVoice) Info() VoiceInfo {
	return VoiceInfo{Name: "tone", SampleRate: v.sampleRate, BitDepth: 16}
}

func (v *toneVoice) Synthesize(_ context.Context, text string, cfg SynthesisConfig) (*audio.Buffer, error) {
	if v.sampleRate <= 0 {
		return nil, errors.New("tone voice needs a positive sample rate")
	}
	if cfg.LengthScale <= 0 {
		cfg.LengthScale = DefaultLengthScale
	}
	if cfg.Volume <= 0 {
		cfg.Volume = DefaultVolume
	}

	runes := []rune(text)
	seconds := toneSecondsPerRune * float64(len(runes)) * cfg.LengthScale
	n := int(seconds * float64(v.sampleRate))
	if n < 1 {
		n = 1
	}

	// Pitch varies with the text so distinct inputs are distinguishable
	// by ear.
	var offset float64
	for _, r := range runes {
		offset += float64(r)
	}
	frequency := toneBaseFrequency + math.Mod(offset, 220)

	amplitude := toneBaseAmplitude * cfg.Volume
	if amplitude > 1 {
		amplitude = 1
	}

	samples := make([]float32, n)
	step := 2 * math.Pi * frequency / float64(v.sampleRate)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(step*float64(i)))
	}

	return &audio.Buffer{Samples: samples, SampleRate: v.sampleRate}, nil
}
