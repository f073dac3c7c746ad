package power

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThresholds reports a non-finite threshold.
var ErrInvalidThresholds = errors.New("invalid load thresholds")

// MinThresholdGap is the smallest distance kept between the low and high
// hysteresis thresholds.
const MinThresholdGap = 0.1

// Thresholds are the load-average hysteresis bounds used for dynamic
// classification. Construct through NewThresholds so the invariants hold.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// NewThresholds clamps the provided bounds: low is floored at zero and high is
// raised to at least low+MinThresholdGap. Values are never swapped.
func NewThresholds(low, high float64) Thresholds {
	if low < 0 {
		low = 0
	}
	if high < low+MinThresholdGap {
		high = low + MinThresholdGap
	}
	return Thresholds{Low: low, High: high}
}

// Validate rejects NaN and infinite bounds, which clamping cannot repair.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Low, t.High} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v/%v", ErrInvalidThresholds, t.Low, t.High)
		}
	}
	return nil
}

// Clamped re-applies the clamping rules to t.
func (t Thresholds) Clamped() Thresholds {
	return NewThresholds(t.Low, t.High)
}

// Inhibited widens the band so load never classifies as low.
func (t Thresholds) Inhibited() Thresholds {
	return Thresholds{Low: 0, High: t.High}
}

// Equal compares thresholds exactly; both sides are produced by the same
// clamping arithmetic.
func (t Thresholds) Equal(other Thresholds) bool {
	return t.Low == other.Low && t.High == other.High
}

func (t Thresholds) String() string {
	return fmt.Sprintf("%.2f/%.2f", t.Low, t.High)
}
