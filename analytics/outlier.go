package analytics

import (
	"math"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// stdDevTolerance guards the degenerate case of a constant signal. When the
// sample standard deviation collapses below this value, any deviation from
// the mean larger than the tolerance itself is treated as an outlier.
const stdDevTolerance = 1e-9

// classifyOutlier checks a value against an established baseline. The caller
// must not have folded the value into the accumulator yet: a sample is judged
// against the history that precedes it.
func classifyOutlier(value float64, baseline types.BaselineState, factor float64) bool {
	if !baseline.Established {
		return false
	}
	deviation := math.Abs(value - baseline.Mean)
	stddev := baseline.StdDev()
	if stddev <= stdDevTolerance {
		return deviation > stdDevTolerance
	}
	return deviation > factor*stddev
}

// observeBaseline folds a good sample into the tag's accumulator and reports
// whether the value is an outlier. Establishment is a one-time edge: the
// sample that brings the count up to the configured baseline size is never
// itself flagged.
func observeBaseline(tag *types.TagConfig, value float64) (outlier bool) {
	tag.UpdateBaseline(func(b *types.BaselineState) {
		outlier = classifyOutlier(value, *b, tag.Outlier.Factor)
		b.Update(value)
		if !b.Established && b.Count >= tag.Outlier.BaselineSamples {
			b.Established = true
		}
	})
	return outlier
}
