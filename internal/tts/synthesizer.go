package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sonuslabs/sonus-core/internal/audio"
	"github.com/sonuslabs/sonus-core/internal/protocol"
)

// Synthesizer adapts a Voice to the worker protocol.
type Synthesizer struct {
	voice Voice
	log   *slog.Logger
}

func NewSynthesizer(voice Voice, log *slog.Logger) *Synthesizer {
	return &Synthesizer{voice: voice, log: log}
}

// SynthesisResult is encoded audio ready for the wire.
type SynthesisResult struct {
	WAV        []byte
	SampleRate int
}

// Synthesize runs the voice and wraps its PCM output in a WAV container.
// The reported sample rate is read back from the written container
// rather than assumed, in case a voice resamples internally.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, cfg SynthesisConfig) (SynthesisResult, error) {
	buf, err := s.voice.Synthesize(ctx, text, cfg)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("synthesize: %w", err)
	}

	wavBytes, err := audio.EncodeWAV(buf, s.voice.Info().BitDepth)
	if err != nil {
		return SynthesisResult{}, err
	}

	info, err := audio.WAVInfo(wavBytes)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("read back WAV header: %w", err)
	}

	return SynthesisResult{WAV: wavBytes, SampleRate: info.SampleRate}, nil
}

// HandleRequest is the worker engine handler for the synthesize command.
func (s *Synthesizer) HandleRequest(ctx context.Context, raw []byte) (any, error) {
	var req protocol.SynthesizeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid synthesize request: %w", err)
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("Text cannot be empty")
	}

	cfg := SynthesisConfig{
		LengthScale: protocol.FloatOr(req.LengthScale, DefaultLengthScale),
		Volume:      protocol.FloatOr(req.Volume, DefaultVolume),
	}

	start := time.Now()
	result, err := s.Synthesize(ctx, text, cfg)
	if err != nil {
		return nil, err
	}

	return protocol.SynthesizeResult{
		AudioB64:   base64.StdEncoding.EncodeToString(result.WAV),
		SampleRate: result.SampleRate,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
