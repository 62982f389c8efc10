package tts

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/sonuslabs/sonus-core/internal/audio"
	"github.com/sonuslabs/sonus-core/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestToneVoiceDeterministic(t *testing.T) {
	voice := NewToneVoice(22050)

	a, err := voice.Synthesize(context.Background(), "hello", SynthesisConfig{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	b, err := voice.Synthesize(context.Background(), "hello", SynthesisConfig{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(a.Samples) != len(b.Samples) {
		t.Fatal("same input produced different lengths")
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("same input diverged at sample %d", i)
		}
	}
}

func TestToneVoiceLengthScale(t *testing.T) {
	voice := NewToneVoice(22050)

	normal, err := voice.Synthesize(context.Background(), "hello world", SynthesisConfig{LengthScale: 1})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	slow, err := voice.Synthesize(context.Background(), "hello world", SynthesisConfig{LengthScale: 2})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	ratio := float64(len(slow.Samples)) / float64(len(normal.Samples))
	if math.Abs(ratio-2) > 0.01 {
		t.Errorf("length scale 2 gave %d samples vs %d, ratio %v", len(slow.Samples), len(normal.Samples), ratio)
	}
}

func TestToneVoiceVolume(t *testing.T) {
	voice := NewToneVoice(22050)

	quiet, err := voice.Synthesize(context.Background(), "hello", SynthesisConfig{Volume: 0.5})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	var peak float64
	for _, s := range quiet.Samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	want := toneBaseAmplitude * 0.5
	if math.Abs(peak-want) > 0.01 {
		t.Errorf("peak = %v, want about %v", peak, want)
	}
}

func TestSynthesizeWrapsWAV(t *testing.T) {
	s := NewSynthesizer(NewToneVoice(22050), newLogger())

	result, err := s.Synthesize(context.Background(), "hello", SynthesisConfig{})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if result.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", result.SampleRate)
	}
	info, err := audio.WAVInfo(result.WAV)
	if err != nil {
		t.Fatalf("inspect wav: %v", err)
	}
	if info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("unexpected container: %+v", info)
	}
}

func TestHandleRequestEmptyText(t *testing.T) {
	s := NewSynthesizer(NewToneVoice(22050), newLogger())

	for _, raw := range []string{
		`{"command":"synthesize"}`,
		`{"command":"synthesize","text":""}`,
		`{"command":"synthesize","text":"   "}`,
	} {
		_, err := s.HandleRequest(context.Background(), []byte(raw))
		if err == nil {
			t.Fatalf("expected error for %s", raw)
		}
		if err.Error() != "Text cannot be empty" {
			t.Errorf("error = %q", err.Error())
		}
	}
}

func TestHandleRequestLenientParams(t *testing.T) {
	s := NewSynthesizer(NewToneVoice(22050), newLogger())

	cases := []struct {
		name string
		raw  string
	}{
		{"numeric string", `{"command":"synthesize","text":"hi","length_scale":"1.5","volume":"0.5"}`},
		{"numbers", `{"command":"synthesize","text":"hi","length_scale":1.5,"volume":0.5}`},
		{"garbage falls back", `{"command":"synthesize","text":"hi","length_scale":{"nested":true},"volume":[1]}`},
		{"absent falls back", `{"command":"synthesize","text":"hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.HandleRequest(context.Background(), []byte(tc.raw))
			if err != nil {
				t.Fatalf("handle request: %v", err)
			}
			res, ok := result.(protocol.SynthesizeResult)
			if !ok {
				t.Fatalf("result type %T", result)
			}
			wavData, err := base64.StdEncoding.DecodeString(res.AudioB64)
			if err != nil {
				t.Fatalf("decode audio: %v", err)
			}
			if _, err := audio.WAVInfo(wavData); err != nil {
				t.Fatalf("invalid wav: %v", err)
			}
		})
	}
}

func TestHandleRequestNumericStringScaleChangesDuration(t *testing.T) {
	s := NewSynthesizer(NewToneVoice(22050), newLogger())

	decode := func(raw string) *audio.Buffer {
		t.Helper()
		result, err := s.HandleRequest(context.Background(), []byte(raw))
		if err != nil {
			t.Fatalf("handle request: %v", err)
		}
		res := result.(protocol.SynthesizeResult)
		wavData, err := base64.StdEncoding.DecodeString(res.AudioB64)
		if err != nil {
			t.Fatalf("decode audio: %v", err)
		}
		buf, err := audio.DecodeWAV(wavData)
		if err != nil {
			t.Fatalf("decode wav: %v", err)
		}
		return buf
	}

	fast := decode(`{"command":"synthesize","text":"hello","length_scale":"0.5"}`)
	slow := decode(`{"command":"synthesize","text":"hello","length_scale":"1.0"}`)
	ratio := float64(len(slow.Samples)) / float64(len(fast.Samples))
	if math.Abs(ratio-2) > 0.01 {
		t.Errorf("scale 1.0 gave %d samples, scale 0.5 gave %d", len(slow.Samples), len(fast.Samples))
	}
}
