package optim

import (
	"math"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// ClipGradNorm rescales the gradients of params so that their joint
// normType-norm is at most maxNorm and returns the norm measured before
// clipping. normType <= 0 means 2; math.Inf(1) selects the max-abs norm.
func ClipGradNorm(params []*tensor.Tensor, maxNorm float64, normType float64) float64 {
	if maxNorm <= 0 {
		return 0
	}
	if normType <= 0 {
		normType = 2
	}
	norm := gradNorm(params, normType)
	if norm <= maxNorm || norm == 0 || math.IsNaN(norm) {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		if p != nil {
			p.ScaleGrad(scale)
		}
	}
	return norm
}

func gradNorm(params []*tensor.Tensor, normType float64) float64 {
	if math.IsInf(normType, 1) {
		peak := 0.0
		for _, p := range params {
			if p != nil {
				peak = math.Max(peak, p.GradMaxAbs())
			}
		}
		return peak
	}
	total := 0.0
	for _, p := range params {
		if p != nil {
			total += p.GradPowSum(normType)
		}
	}
	return math.Pow(total, 1/normType)
}

// ClipGradValue clamps every gradient entry of params into
// [-clipValue, clipValue]. Non-positive limits are ignored.
func ClipGradValue(params []*tensor.Tensor, clipValue float64) {
	if clipValue <= 0 {
		return
	}
	for _, p := range params {
		if p != nil {
			p.ClipGradValue(clipValue)
		}
	}
}
