package opt

import "fmt"

// Optimizer minimizes an objective over a box.
type Optimizer interface {
	// Run minimizes eval over [lower[i], upper[i]] in every dimension and
	// returns the best parameters found and their cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}

// Bounds checks that lower and upper describe a non-empty box.
func Bounds(lower, upper []float64) error {
	if len(lower) == 0 {
		return fmt.Errorf("bounds cannot be empty")
	}
	if len(lower) != len(upper) {
		return fmt.Errorf("bounds length mismatch: %d lower, %d upper", len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] < upper[i]) {
			return fmt.Errorf("dimension %d: lower %g must be below upper %g", i, lower[i], upper[i])
		}
	}
	return nil
}

// Scale maps a point of the unit cube onto the box, clamping each
// coordinate to [0,1] first.
func Scale(unit, lower, upper []float64) []float64 {
	out := make([]float64, len(unit))
	for i, u := range unit {
		u = max(0, min(1, u))
		out[i] = lower[i] + u*(upper[i]-lower[i])
	}
	return out
}
