package transport

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// sinkhornEpsilon guards the scaling updates against division by zero.
const sinkhornEpsilon = 1e-10

// SinkhornOptions controls the entropy-regularized solve.
type SinkhornOptions struct {
	Reg       float64 // Entropic regularization, must be > 0
	MaxIter   int     // Iteration budget
	Tolerance float64 // Early stop when max |u - u_prev| falls below this
}

// DefaultSinkhornOptions returns reg 0.1, 100 iterations, tolerance 1e-6.
func DefaultSinkhornOptions() SinkhornOptions {
	return SinkhornOptions{
		Reg:       0.1,
		MaxIter:   100,
		Tolerance: 1e-6,
	}
}

func (o SinkhornOptions) validate() error {
	if !(o.Reg > 0) {
		return invalid("reg", fmt.Sprintf("must be > 0, got %v", o.Reg))
	}
	if o.MaxIter <= 0 {
		return invalid("max_iter", fmt.Sprintf("must be > 0, got %d", o.MaxIter))
	}
	if o.Tolerance < 0 {
		return invalid("tolerance", fmt.Sprintf("must be >= 0, got %v", o.Tolerance))
	}
	return nil
}

// Plan is a dense transport plan with source rows and target columns.
type Plan struct {
	*mat.Dense
	Iterations int  // Scaling iterations performed
	Converged  bool // Whether the tolerance was reached before MaxIter
}

// Sinkhorn solves the entropy-regularized OT problem between uniform
// distributions over src and tgt. Running out of iterations is not an
// error; the current estimate is returned with Converged false.
func Sinkhorn(src, tgt PixelSet, opts SinkhornOptions) (*Plan, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cost, err := CostMatrix(src, tgt)
	if err != nil {
		return nil, err
	}

	n, m := cost.Dims()

	// K = exp(-C/reg)
	kernel := mat.NewDense(n, m, nil)
	kernel.Apply(func(_, _ int, c float64) float64 {
		return math.Exp(-c / opts.Reg)
	}, cost)

	a := 1.0 / float64(n)
	b := 1.0 / float64(m)
	u := mat.NewVecDense(n, filled(n, a))
	v := mat.NewVecDense(m, filled(m, b))
	prev := make([]float64, n)
	kv := mat.NewVecDense(n, nil)
	ktu := mat.NewVecDense(m, nil)

	plan := &Plan{}
	for it := 0; it < opts.MaxIter; it++ {
		copy(prev, u.RawVector().Data)

		kv.MulVec(kernel, v)
		for i := 0; i < n; i++ {
			u.SetVec(i, a/(kv.AtVec(i)+sinkhornEpsilon))
		}

		ktu.MulVec(kernel.T(), u)
		for j := 0; j < m; j++ {
			v.SetVec(j, b/(ktu.AtVec(j)+sinkhornEpsilon))
		}

		plan.Iterations = it + 1
		if maxAbsDiff(u.RawVector().Data, prev) < opts.Tolerance {
			plan.Converged = true
			break
		}
	}

	// diag(u)·K·diag(v)
	kernel.Apply(func(i, j int, k float64) float64 {
		return u.AtVec(i) * k * v.AtVec(j)
	}, kernel)
	plan.Dense = kernel

	return plan, nil
}

func filled(n int, val float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = val
	}
	return s
}

func maxAbsDiff(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}
