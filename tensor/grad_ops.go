package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GradPowSum returns sum(|g|^norm) over the stored gradient, the per-tensor
// term of a global p-norm.
func (t *Tensor) GradPowSum(norm float64) float64 {
	if t == nil || t.grad == nil {
		return 0
	}
	return math.Pow(floats.Norm(t.grad.data, norm), norm)
}

// GradMaxAbs returns the largest absolute gradient entry, or 0 without a
// gradient.
func (t *Tensor) GradMaxAbs() float64 {
	if t == nil || t.grad == nil || len(t.grad.data) == 0 {
		return 0
	}
	return floats.Norm(t.grad.data, math.Inf(1))
}

func (t *Tensor) ScaleGrad(factor float64) {
	if t == nil || t.grad == nil {
		return
	}
	t.grad.Scale(factor)
}

// ClipGradValue clamps every gradient entry into [-limit, limit].
func (t *Tensor) ClipGradValue(limit float64) {
	if t == nil || t.grad == nil || limit <= 0 {
		return
	}
	for i, v := range t.grad.data {
		t.grad.data[i] = math.Max(-limit, math.Min(limit, v))
	}
}
