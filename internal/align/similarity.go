package align

// Similarity is the optional tolerance comparator. It samples every Step-th
// byte and counts positions whose values differ by at most Tolerance.
// Windows scoring at or above Threshold are treated as a direct match.
type Similarity struct {
	Step      int
	Tolerance int
	Threshold float64
}

// DefaultSimilarity samples every 4th byte with a tolerance of 6.
func DefaultSimilarity(threshold float64) *Similarity {
	return &Similarity{Step: 4, Tolerance: 6, Threshold: threshold}
}

// Score returns the fraction of sampled bytes within tolerance. Buffers of
// different length score zero.
func (s Similarity) Score(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	step := s.Step
	if step <= 0 {
		step = 1
	}
	matching, total := 0, 0
	for i := 0; i < len(a); i += step {
		diff := int(a[i]) - int(b[i])
		if diff < 0 {
			diff = -diff
		}
		if diff <= s.Tolerance {
			matching++
		}
		total++
	}
	return float64(matching) / float64(total)
}

// Match reports whether a and b clear the threshold.
func (s Similarity) Match(a, b []byte) bool {
	return s.Score(a, b) >= s.Threshold
}
