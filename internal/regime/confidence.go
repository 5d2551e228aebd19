package regime

import "math"

// Multiplier derives a per-bar position-size multiplier from the regime
// confidence and the signal strength of the bar being traded. It expresses
// how much this specific bar's read is trusted, independent of the Kelly
// fraction's historical-edge sizing.
//
// The result is in [minMultiplier, 1]: even a weak read only scales an entry
// down, it never inflates it past the configured maximum.
func Multiplier(sig Signal, signalStrength float64) float64 {
	const minMultiplier = 0.5

	trust := math.Min(1, sig.Confidence*0.6+math.Abs(signalStrength)*0.4)
	return minMultiplier + (1-minMultiplier)*trust
}
