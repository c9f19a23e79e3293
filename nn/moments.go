package nn

import (
	"fmt"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// Standardized holds the keepdims moments of an input and the input
// standardized by them.
type Standardized struct {
	Mean       *tensor.Tensor
	Variance   *tensor.Tensor
	Normalized *tensor.Tensor
}

// Standardize computes the mean and population variance of x over axes and
// returns (x - mean) / sqrt(variance + eps). Every step is a tensor op, so
// gradients reach x through the statistics as well as the direct path.
func Standardize(x *tensor.Tensor, axes []int, eps float64) (*Standardized, error) {
	if eps <= 0 {
		return nil, fmt.Errorf("%w: epsilon must be positive, got %g", ErrConfiguration, eps)
	}
	shape := x.Shape()
	mean, err := tensor.MeanAxes(x, axes...)
	if err != nil {
		return nil, err
	}
	meanFull, err := tensor.BroadcastTo(mean, shape)
	if err != nil {
		return nil, err
	}
	centered, err := tensor.Sub(x, meanFull)
	if err != nil {
		return nil, err
	}
	squared, err := tensor.Mul(centered, centered)
	if err != nil {
		return nil, err
	}
	variance, err := tensor.MeanAxes(squared, axes...)
	if err != nil {
		return nil, err
	}
	std, err := tensor.BroadcastTo(tensor.Sqrt(tensor.AddScalar(variance, eps)), shape)
	if err != nil {
		return nil, err
	}
	normalized, err := tensor.Div(centered, std)
	if err != nil {
		return nil, err
	}
	return &Standardized{Mean: mean, Variance: variance, Normalized: normalized}, nil
}

// affine applies scale then shift. gamma and beta are 1-D channel vectors
// viewed at the broadcast shape; either may be nil.
func affine(x, gamma, beta *tensor.Tensor, broadcast []int) (*tensor.Tensor, error) {
	out := x
	if gamma != nil {
		g, err := expandChannels(gamma, broadcast, x.Shape())
		if err != nil {
			return nil, err
		}
		if out, err = tensor.Mul(out, g); err != nil {
			return nil, err
		}
	}
	if beta != nil {
		b, err := expandChannels(beta, broadcast, x.Shape())
		if err != nil {
			return nil, err
		}
		if out, err = tensor.Add(out, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func expandChannels(v *tensor.Tensor, broadcast, shape []int) (*tensor.Tensor, error) {
	view, err := v.Reshape(broadcast...)
	if err != nil {
		return nil, err
	}
	return tensor.BroadcastTo(view, shape)
}

func channelTensor(values []float64, broadcast, shape []int) (*tensor.Tensor, error) {
	t, err := tensor.New(values, broadcast...)
	if err != nil {
		return nil, err
	}
	return tensor.BroadcastTo(t, shape)
}
