package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperModel wraps a whisper.cpp model loaded through the CGO bindings.
// The model weights are loaded once; each decode gets a fresh inference
// context because contexts cannot be reused across decodes. whisper.cpp
// decodes greedily by default, which matches the deterministic settings
// the adapter asks for.
type whisperModel struct {
	model  whisperlib.Model
	name   string
	device string
	log    *slog.Logger
}

// NewWhisperModel loads a whisper.cpp model from modelPath. The caller
// must Close the returned model when the process shuts down.
func NewWhisperModel(modelPath, name, device string, log *slog.Logger) (Model, error) {
	if modelPath == "" {
		return nil, errors.New("recognition model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", modelPath, err)
	}
	return &whisperModel{model: model, name: name, device: device, log: log}, nil
}

func (m *whisperModel) Info() ModelInfo {
	return ModelInfo{Name: m.name, Device: m.device}
}

func (m *whisperModel) Close() error {
	if m.model != nil {
		return m.model.Close()
	}
	return nil
}

func (m *whisperModel) Transcribe(_ context.Context, samples []float32, opts Options) (ModelResult, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return ModelResult{}, fmt.Errorf("create whisper context: %w", err)
	}

	// Without a hint, ask for auto-detection so the result can report the
	// language the model actually heard.
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		m.log.Warn("failed to set language, using model default",
			slog.String("language", lang),
			slog.String("error", err.Error()))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return ModelResult{}, fmt.Errorf("whisper inference: %w", err)
	}

	var (
		parts    []string
		segments []ModelSegment
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ModelResult{}, fmt.Errorf("read whisper segment: %w", err)
		}
		segments = append(segments, ModelSegment{
			Start:      segment.Start.Seconds(),
			End:        segment.End.Seconds(),
			Text:       segment.Text,
			AvgLogProb: avgTokenLogProb(segment.Tokens),
		})
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	language := opts.Language
	if language == "" {
		if detected := wctx.DetectedLanguage(); detected != "" && detected != "auto" {
			language = detected
		}
	}

	return ModelResult{
		Text:     strings.Join(parts, " "),
		Language: language,
		Segments: segments,
	}, nil
}

// avgTokenLogProb approximates the segment's average log-probability
// from its token probabilities. The bindings expose token probabilities
// but not the segment-level score directly.
func avgTokenLogProb(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		p := float64(tok.P)
		if p < 1e-10 {
			p = 1e-10
		}
		sum += math.Log(p)
	}
	return sum / float64(len(tokens))
}
