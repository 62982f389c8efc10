package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Normalization divisors per sample width, matching the usual PCM
// conventions: 8-bit WAV audio is unsigned, wider widths are signed.
const (
	int16Scale = 32768.0
	int32Scale = 2147483648.0
)

// Info describes a WAV container header.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// WAVInfo reads the container header without decoding the audio frames.
func WAVInfo(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid WAV data")
	}
	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

// DecodeWAV decodes a WAV byte buffer into a mono float32 buffer.
// Supported sample widths are 8, 16 and 32 bits; multi-channel audio is
// averaged across channels.
func DecodeWAV(data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV data")
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read WAV frames: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	channels := int(dec.NumChans)
	if channels <= 0 {
		return nil, errors.New("invalid WAV data: no channels")
	}

	floats, err := intSamplesToFloat(pcm.Data, bitDepth)
	if err != nil {
		return nil, err
	}

	if channels > 1 {
		floats = downmixMono(floats, channels)
	}

	return &Buffer{Samples: floats, SampleRate: int(dec.SampleRate)}, nil
}

func intSamplesToFloat(data []int, bitDepth int) ([]float32, error) {
	out := make([]float32, len(data))
	switch bitDepth {
	case 8:
		for i, v := range data {
			out[i] = float32(v-128) / 128.0
		}
	case 16:
		for i, v := range data {
			out[i] = float32(v) / int16Scale
		}
	case 32:
		for i, v := range data {
			out[i] = float32(float64(v) / int32Scale)
		}
	default:
		return nil, fmt.Errorf("unsupported WAV sample width: %d", bitDepth)
	}
	return out, nil
}

func downmixMono(interleaved []float32, channels int) []float32 {
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// EncodeWAV writes a mono float buffer into a WAV container at the given
// sample width. Samples outside [-1, 1] are clipped.
func EncodeWAV(buf *Buffer, bitDepth int) ([]byte, error) {
	if buf == nil || buf.SampleRate <= 0 {
		return nil, errors.New("cannot encode WAV without a sample rate")
	}
	switch bitDepth {
	case 8, 16, 32:
	default:
		return nil, fmt.Errorf("unsupported WAV sample width: %d", bitDepth)
	}

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		f := float64(s)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		switch bitDepth {
		case 8:
			data[i] = int(f*127) + 128
		case 16:
			data[i] = int(f * (int16Scale - 1))
		case 32:
			data[i] = int(f * (int32Scale - 1))
		}
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, buf.SampleRate, bitDepth, 1, 1)
	ib := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		SourceBitDepth: bitDepth,
		Data:           data,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("write WAV frames: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close WAV encoder: %w", err)
	}
	return ws.Bytes(), nil
}

// writeSeeker is an in-memory io.WriteSeeker. The WAV encoder seeks back
// over the header to patch chunk sizes after the frames are written, so a
// plain bytes.Buffer is not enough.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		if need > cap(w.buf) {
			grown := make([]byte, need, 2*need)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:need]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = w.pos + int(offset)
	case io.SeekEnd:
		next = len(w.buf) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	w.pos = next
	return int64(next), nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}
