package loss

import (
	"fmt"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// MSE is mean((pred - target)^2) over every element.
func MSE(pred, target *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(pred, target)
	if err != nil {
		return nil, fmt.Errorf("mse: %w", err)
	}
	sq, err := tensor.Mul(diff, diff)
	if err != nil {
		return nil, err
	}
	return tensor.Mean(sq), nil
}
