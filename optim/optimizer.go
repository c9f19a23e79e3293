package optim

import (
	"fmt"
	"strings"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// Optimizer updates a fixed parameter list from the gradients left by
// Backward.
type Optimizer interface {
	Step() error
	ZeroGrad()
}

var (
	_ Optimizer = (*SGD)(nil)
	_ Optimizer = (*Adam)(nil)
	_ Optimizer = (*RMSProp)(nil)
)

// New builds an optimizer by name ("sgd", "adam" or "rmsprop") with the
// package defaults for everything except the learning rate.
func New(name string, params []*tensor.Tensor, lr float64) (Optimizer, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", lr)
	}
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(params, lr, 0.9), nil
	case "adam":
		return NewAdam(params, lr, 0.9, 0.999, 1e-8), nil
	case "rmsprop":
		return NewRMSProp(params, lr), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

func zeroGrads(params []*tensor.Tensor) {
	for _, p := range params {
		if p != nil {
			p.ZeroGrad()
		}
	}
}
