package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopSize is the smallest population the mayfly library accepts.
const MinPopSize = 20

// MayflyAdapter runs the mayfly optimizer behind the Optimizer interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. popSize is raised to MinPopSize.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinPopSize),
		seed:     seed,
	}
}

// Run searches the unit cube and rescales every candidate onto the box, since
// the library only supports one scalar bound for all dimensions.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if err := Bounds(lower, upper); err != nil {
		return nil, 0, err
	}
	if m.maxIters <= 0 {
		return nil, 0, fmt.Errorf("maxIters must be positive, got %d", m.maxIters)
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(Scale(unit, lower, upper))
	}
	config.ProblemSize = len(lower)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return Scale(result.GlobalBest.Position, lower, upper), result.GlobalBest.Cost, nil
}
