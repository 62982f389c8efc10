package stt

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

// ModelSampleRate is the rate every recognition model input is resampled
// to. It is the only place a fixed rate is assumed; decoded buffers carry
// their true rate everywhere else.
const ModelSampleRate = 16000

// Fallback aggregate confidence when the model returned transcript text
// but no segment metadata.
const textOnlyConfidence = 0.75

// Transcriber adapts a Model to the worker protocol: it decodes inbound
// WAV bytes, resamples them to the model rate, and scores the model's
// segments.
type Transcriber struct {
	model Model
	log   *slog.Logger
}

func NewTranscriber(model Model, log *slog.Logger) *Transcriber {
	return &Transcriber{model: model, log: log}
}

// Transcription is a fully scored recognition result.
type Transcription struct {
	Text       string
	Language   string
	Confidence float64
	Segments   []protocol.Segment
}

// Transcribe runs the full recognition pipeline on a WAV byte buffer. A
// non-blank languageHint is forwarded to the model and echoed back in the
// result; otherwise the model's own language is echoed, defaulting to
// "en".
func (t *Transcriber) Transcribe(ctx context.Context, wavBytes []byte, languageHint string) (Transcription, error) {
	buf, err := audio.DecodeWAV(wavBytes)
	if err != nil {
		return Transcription{}, err
	}
	buf = audio.Resample(buf, ModelSampleRate)

	opts := Options{Temperature: 0}
	if hint := strings.TrimSpace(languageHint); hint != "" {
		opts.Language = hint
	}

	result, err := t.model.Transcribe(ctx, buf.Samples, opts)
	if err != nil {
		return Transcription{}, err
	}

	text := strings.TrimSpace(result.Text)

	language := opts.Language
	if language == "" {
		language = result.Language
	}
	if language == "" {
		language = "en"
	}

	segments := make([]protocol.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, protocol.Segment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         strings.TrimSpace(seg.Text),
			Confidence:   SegmentConfidence(seg.AvgLogProb, seg.NoSpeechProb),
			AvgLogProb:   seg.AvgLogProb,
			NoSpeechProb: seg.NoSpeechProb,
		})
	}

	fallback := 0.0
	if text != "" {
		fallback = textOnlyConfidence
	}

	return Transcription{
		Text:       text,
		Language:   language,
		Confidence: AggregateConfidence(segments, fallback),
		Segments:   segments,
	}, nil
}

// HandleRequest is the worker engine handler for the transcribe command.
func (t *Transcriber) HandleRequest(ctx context.Context, raw []byte) (any, error) {
	var req protocol.TranscribeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid transcribe request: %w", err)
	}
	if req.AudioB64 == "" {
		return nil, errors.New("audio_b64 is required")
	}

	start := time.Now()
	wavBytes, err := base64.StdEncoding.DecodeString(req.AudioB64)
	if err != nil {
		return nil, fmt.Errorf("decode audio_b64: %w", err)
	}

	result, err := t.Transcribe(ctx, wavBytes, protocol.StringOr(req.Language, ""))
	if err != nil {
		return nil, err
	}

	return protocol.TranscribeResult{
		Text:       result.Text,
		Language:   result.Language,
		Confidence: result.Confidence,
		Segments:   result.Segments,
		DurationMS: time.Since(start).Milliseconds(),
	}, nil
}
