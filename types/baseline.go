package types

import "math"

// BaselineState accumulates running statistics for one tag using Welford's
// incremental method: count, mean and the running sum of squared deviations
// (M2). Each update is O(1) regardless of how many samples were seen, so the
// window expands indefinitely without storing history.
//
// The accumulator lives exactly as long as its owning TagConfig and is reset
// whenever outlier detection is toggled, quality goes bad, or a value fails
// numeric conversion.
type BaselineState struct {
	Count       int     `json:"count"`
	Mean        float64 `json:"mean"`
	M2          float64 `json:"m2"`
	Established bool    `json:"established"`
}

// Update folds one sample into the running statistics.
func (b *BaselineState) Update(value float64) {
	b.Count++
	delta := value - b.Mean
	b.Mean += delta / float64(b.Count)
	delta2 := value - b.Mean
	b.M2 += delta * delta2
}

// Variance returns the sample variance (N-1 denominator). Zero until at
// least two samples have been seen.
func (b *BaselineState) Variance() float64 {
	if b.Count < 2 {
		return 0
	}
	return b.M2 / float64(b.Count-1)
}

// StdDev returns the sample standard deviation.
func (b *BaselineState) StdDev() float64 {
	return math.Sqrt(b.Variance())
}

// Reset clears the accumulator so a fresh baseline must be accumulated.
func (b *BaselineState) Reset() {
	*b = BaselineState{}
}
