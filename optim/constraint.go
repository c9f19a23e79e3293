package optim

import (
	"math"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
	"gonum.org/v1/gonum/floats"
)

// Constraint projects a parameter back into its feasible set after an
// optimizer update.
type Constraint interface {
	Apply(param *tensor.Tensor) error
}

type MaxNormConstraint struct {
	maxNorm float64
	norm    float64
}

// NewMaxNormConstraint rescales a parameter whose p-norm exceeds maxNorm.
// A non-positive norm selects the L2 norm.
func NewMaxNormConstraint(maxNorm, norm float64) *MaxNormConstraint {
	if norm <= 0 {
		norm = 2
	}
	return &MaxNormConstraint{maxNorm: maxNorm, norm: norm}
}

func (c *MaxNormConstraint) Apply(param *tensor.Tensor) error {
	if param == nil || c.maxNorm <= 0 {
		return nil
	}
	norm := floats.Norm(param.Data(), c.norm)
	if norm <= c.maxNorm {
		return nil
	}
	param.Scale(c.maxNorm / (norm + 1e-12))
	return nil
}

// MinMagnitudeConstraint keeps every entry at least floor away from zero,
// preserving its sign. Applied to a normalization scale it keeps the affine
// step invertible.
type MinMagnitudeConstraint struct {
	floor float64
}

func NewMinMagnitudeConstraint(floor float64) *MinMagnitudeConstraint {
	return &MinMagnitudeConstraint{floor: math.Abs(floor)}
}

func (c *MinMagnitudeConstraint) Apply(param *tensor.Tensor) error {
	if param == nil || c.floor == 0 {
		return nil
	}
	data := param.Data()
	changed := false
	for i, v := range data {
		if math.Abs(v) >= c.floor {
			continue
		}
		changed = true
		if v < 0 {
			data[i] = -c.floor
		} else {
			data[i] = c.floor
		}
	}
	if !changed {
		return nil
	}
	return param.SetData(data)
}
