package rag

import (
	"math"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// NormalizeScore maps a raw cosine similarity onto the [0,1] relevance scale.
// Negative similarity (opposed vectors) carries no relevance and maps to 0.
func NormalizeScore(cos float64) float32 {
	switch {
	case math.IsNaN(cos) || cos <= 0:
		return 0
	case cos >= 1:
		return 1
	}
	return float32(cos)
}
