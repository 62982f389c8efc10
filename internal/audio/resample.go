package audio

import "math"

// Resample converts buf to targetRate using linear interpolation between
// the two nearest source samples, clamping at the buffer edges. Equal
// rates and empty buffers return the input unchanged. No anti-aliasing
// filter is applied; the recognition models downstream tolerate the mild
// artifacts and this keeps resampling far below real time.
func Resample(buf *Buffer, targetRate int) *Buffer {
	if buf == nil || buf.SampleRate == targetRate || len(buf.Samples) == 0 {
		return buf
	}

	srcLen := len(buf.Samples)
	duration := buf.Seconds()
	newLen := int(math.Round(duration * float64(targetRate)))
	if newLen < 1 {
		newLen = 1
	}

	// Both grids span [0, duration) with evenly spaced, endpoint-exclusive
	// points, so a target time maps to source index t/srcStep.
	srcStep := duration / float64(srcLen)
	dstStep := duration / float64(newLen)

	out := make([]float32, newLen)
	for i := range out {
		pos := float64(i) * dstStep / srcStep
		j := int(math.Floor(pos))
		if j >= srcLen-1 {
			out[i] = buf.Samples[srcLen-1]
			continue
		}
		frac := pos - float64(j)
		s0 := float64(buf.Samples[j])
		s1 := float64(buf.Samples[j+1])
		out[i] = float32(s0 + frac*(s1-s0))
	}

	return &Buffer{Samples: out, SampleRate: targetRate}
}
