// Package protocol defines the line-delimited JSON messages exchanged
// between a speech worker and its host. One JSON object per
// newline-terminated line, requests on stdin, responses and startup
// events on stdout.
package protocol

import (
	"strconv"
	"strings"
)

// Commands accepted by the workers. Each worker variant serves exactly one.
const (
	CommandSynthesize = "synthesize"
	CommandTranscribe = "transcribe"
)

// Startup event names. A worker emits exactly one startup event before it
// reads any request.
const (
	EventReady = "ready"
	EventError = "error"
)

// Envelope is the portion of a request inspected before dispatch. ID is
// opaque to the worker: whatever JSON value the caller sent is echoed back
// in the response, null included.
type Envelope struct {
	ID      any    `json:"id"`
	Command string `json:"command"`
}

// SynthesizeRequest asks the synthesis worker for spoken audio.
// LengthScale and Volume are deliberately untyped: absent or non-numeric
// values fall back to defaults instead of failing the request.
type SynthesizeRequest struct {
	Envelope
	Text        string `json:"text"`
	LengthScale any    `json:"length_scale"`
	Volume      any    `json:"volume"`
}

// TranscribeRequest asks the recognition worker for a transcript of a
// base64-encoded WAV payload. Language is an optional hint and tolerates
// non-string values the same way the numeric parameters do.
type TranscribeRequest struct {
	Envelope
	AudioB64 string `json:"audio_b64"`
	Language any    `json:"language"`
}

// Response is the failure envelope. Successful responses carry the same
// id/success keys plus command-specific result fields; failed responses
// carry nothing beyond the error message.
type Response struct {
	ID      any    `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SynthesizeResult is the payload of a successful synthesize response.
type SynthesizeResult struct {
	AudioB64   string `json:"audio_b64"`
	SampleRate int    `json:"sample_rate"`
	DurationMS int64  `json:"duration_ms"`
}

// Segment is one time-bounded span of a transcription. Segments keep the
// temporal order the model produced them in.
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// TranscribeResult is the payload of a successful transcribe response.
type TranscribeResult struct {
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	Confidence float64   `json:"confidence"`
	Segments   []Segment `json:"segments"`
	DurationMS int64     `json:"duration_ms"`
}

// StartupEvent is the first line a worker writes. Success carries
// startup_ms plus worker-specific metadata; failure carries the error and
// is immediately followed by a non-zero exit.
type StartupEvent struct {
	Event      string `json:"event"`
	Success    bool   `json:"success"`
	StartupMS  int64  `json:"startup_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	Model      string `json:"model,omitempty"`
	Device     string `json:"device,omitempty"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// FloatOr coerces a decoded JSON value to a float64, accepting numbers
// and numeric strings. Anything else yields the fallback.
func FloatOr(value any, fallback float64) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// StringOr coerces a decoded JSON value to a string, falling back for
// absent or non-string values.
func StringOr(value any, fallback string) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fallback
}
