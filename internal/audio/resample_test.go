package audio

import (
	"math"
	"testing"
)

func TestResampleSameRateIsIdentity(t *testing.T) {
	src := sine(16000, 0.1, 440, 0.5)
	got := Resample(src, 16000)
	if got != src {
		t.Fatal("expected the same buffer back")
	}
}

func TestResampleEmptyBuffer(t *testing.T) {
	src := &Buffer{Samples: nil, SampleRate: 22050}
	got := Resample(src, 16000)
	if got != src {
		t.Fatal("expected the same buffer back")
	}
}

func TestResampleLengthMatchesDuration(t *testing.T) {
	cases := []struct {
		srcRate, dstRate, srcLen, wantLen int
	}{
		{22050, 16000, 22050, 16000},
		{16000, 22050, 16000, 22050},
		{44100, 16000, 44100, 16000},
		{8000, 16000, 4000, 8000},
		{48000, 16000, 3, 1},
		{16000, 8000, 1, 1},
	}
	for _, tc := range cases {
		src := &Buffer{Samples: make([]float32, tc.srcLen), SampleRate: tc.srcRate}
		got := Resample(src, tc.dstRate)
		if len(got.Samples) != tc.wantLen {
			t.Errorf("%d->%d with %d samples: got %d, want %d",
				tc.srcRate, tc.dstRate, tc.srcLen, len(got.Samples), tc.wantLen)
		}
		if got.SampleRate != tc.dstRate {
			t.Errorf("sample rate = %d, want %d", got.SampleRate, tc.dstRate)
		}
	}
}

func TestResamplePreservesConstantSignal(t *testing.T) {
	src := &Buffer{Samples: make([]float32, 1000), SampleRate: 22050}
	for i := range src.Samples {
		src.Samples[i] = 0.7
	}
	got := Resample(src, 16000)
	for i, s := range got.Samples {
		if math.Abs(float64(s)-0.7) > 1e-6 {
			t.Fatalf("sample %d = %v, want 0.7", i, s)
		}
	}
}

func TestResampleTracksSineWave(t *testing.T) {
	const freq = 100.0
	src := sine(44100, 0.2, freq, 0.8)
	got := Resample(src, 16000)

	// Linear interpolation of a smooth low-frequency signal should stay
	// close to the analytic waveform.
	for i, s := range got.Samples {
		pos := float64(i) * float64(src.SampleRate) / float64(got.SampleRate)
		want := 0.8 * math.Sin(2*math.Pi*freq*pos/float64(src.SampleRate))
		if math.Abs(float64(s)-want) > 0.01 {
			t.Fatalf("sample %d = %v, want %v", i, s, want)
		}
	}
}

func TestResampleUpsampleClampsAtEdges(t *testing.T) {
	src := &Buffer{Samples: []float32{0, 1}, SampleRate: 8000}
	got := Resample(src, 16000)
	if len(got.Samples) != 4 {
		t.Fatalf("length = %d, want 4", len(got.Samples))
	}
	last := got.Samples[len(got.Samples)-1]
	if last != 1 {
		t.Fatalf("last sample = %v, want clamped 1", last)
	}
}
