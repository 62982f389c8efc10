// Package stt hosts the recognition side of the speech workers: the
// loaded model, the transcription adapter that feeds it resampled mono
// audio, and confidence scoring over its segments.
package stt

import "context"

// ModelInfo identifies a loaded recognition model.
type ModelInfo struct {
	Name   string
	Device string
}

// Options control a single decode. The adapter always requests
// deterministic decoding; Language is an optional hint forwarded to the
// model, empty means auto-detect.
type Options struct {
	Language    string
	Temperature float64
}

// ModelSegment is one raw segment as produced by the model, before
// confidence scoring.
type ModelSegment struct {
	Start        float64
	End          float64
	Text         string
	AvgLogProb   float64
	NoSpeechProb float64
}

// ModelResult is the raw output of one decode.
type ModelResult struct {
	Text     string
	Language string
	Segments []ModelSegment
}

// Model abstracts the recognition backend. Implementations load their
// weights once at construction and are used from a single goroutine at a
// time; the worker never runs concurrent decodes.
type Model interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) (ModelResult, error)
	Info() ModelInfo
	Close() error
}
