// Package trend classifies ordered slope sequences into a single-reversal
// trend model.
package trend

import "github.com/nanashi07/sminer-sub000/internal/model"

// Detect scans per-bucket regression slopes ordered oldest to newest and
// locates the single trend reversal.
//
// The sign convention is "zero counts as non-down": a slope >= 0 is an up
// bucket. A sequence opening with a negative slope is a downward trend and
// is not scanned further. Under an upward opening, the first non-down to down
// transition marks ReboundAt; a later down-to-up transition is a second
// reversal the model cannot represent, so the scan stops there and buckets
// past it are not counted.
func Detect(slopes []float64) model.SlopeTrend {
	t := model.SlopeTrend{ReboundAt: -1}
	if len(slopes) == 0 {
		return t
	}
	if slopes[0] < 0 {
		return t
	}

	t.Upward = true
	down := false
	for i, s := range slopes {
		if s >= 0 {
			if down {
				// Second reversal: out of model, stop the scan.
				break
			}
			t.UpCount++
			continue
		}
		if !down {
			down = true
			t.ReboundAt = i
		}
		t.DownCount++
	}
	return t
}
