package stt

import (
	"math"

	"github.com/sonuslabs/sonus-core/internal/protocol"
)

// Weight floors keep zero-duration or empty-text segments from being
// ignored entirely and keep the total weight away from zero.
const (
	minDurationWeight = 0.2
	minTextWeight     = 0.2
	textWeightDivisor = 20.0
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// SegmentConfidence derives a [0, 1] confidence for one segment from the
// model's average token log-probability and its no-speech probability.
// Non-negative log-probabilities cap the score at 1 instead of inverting
// it.
func SegmentConfidence(avgLogProb, noSpeechProb float64) float64 {
	logProbScore := math.Exp(math.Min(0, avgLogProb))
	return clamp(logProbScore*(1-clamp(noSpeechProb, 0, 1)), 0, 1)
}

// AggregateConfidence combines per-segment confidences into one scalar,
// weighting each segment by its duration and text length so longer,
// more substantive segments dominate. With no segments it returns the
// fallback: callers pass 0.75 when the model produced transcript text
// without segment metadata and 0.0 when it produced nothing.
func AggregateConfidence(segments []protocol.Segment, fallback float64) float64 {
	if len(segments) == 0 {
		return clamp(fallback, 0, 1)
	}

	var weightedSum, totalWeight float64
	for _, seg := range segments {
		durationWeight := math.Max(minDurationWeight, seg.End-seg.Start)
		textWeight := math.Max(minTextWeight, float64(len(seg.Text))/textWeightDivisor)
		weight := durationWeight + textWeight

		weightedSum += seg.Confidence * weight
		totalWeight += weight
	}

	if totalWeight <= 0 {
		return clamp(fallback, 0, 1)
	}
	return clamp(weightedSum/totalWeight, 0, 1)
}
