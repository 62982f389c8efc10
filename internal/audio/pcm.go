// Package audio converts between WAV containers and in-memory PCM
// buffers, and resamples buffers between rates. All decoded audio is
// mono float32 in [-1, 1]; multi-channel input is averaged down at
// decode time.
package audio

// Buffer holds decoded mono PCM audio together with its true sample rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Seconds returns the buffer duration in seconds.
func (b *Buffer) Seconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}
