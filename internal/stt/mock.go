package stt

import (
	"context"
	"fmt"
	"math"
)

// rmsSilenceThreshold is the normalized RMS level below which the mock
// treats input as silence and produces no transcript.
const rmsSilenceThreshold = 0.01

type mockModel struct {
	name string
}

// NewMockModel returns a deterministic model for tests and smoke
// deployments. Silent input yields an empty result; anything else yields
// one segment covering the whole buffer.
func NewMockModel(name string) Model {
	return &mockModel{name: name}
}

func (m *mockModel) Info() ModelInfo {
	return ModelInfo{Name: m.name, Device: "cpu"}
}

func (m *mockModel) Close() error { return nil }

func (m *mockModel) Transcribe(_ context.Context, samples []float32, opts Options) (ModelResult, error) {
	language := opts.Language
	if language == "" {
		language = "en"
	}

	if rms(samples) < rmsSilenceThreshold {
		return ModelResult{Language: language}, nil
	}

	text := fmt.Sprintf("[mock transcript length=%d]", len(samples))
	duration := float64(len(samples)) / float64(ModelSampleRate)
	return ModelResult{
		Text:     text,
		Language: language,
		Segments: []ModelSegment{{
			Start:        0,
			End:          duration,
			Text:         text,
			AvgLogProb:   -0.1,
			NoSpeechProb: 0.05,
		}},
	}, nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
