package nn

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// Dropout drops activations only when the caller's phase is PhaseTrain.
type Dropout struct {
	p  float64
	mu sync.Mutex
	r  *rand.Rand
}

func NewDropout(p float64) (*Dropout, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("%w: dropout probability must be in [0, 1), got %g", ErrConfiguration, p)
	}
	return &Dropout{p: p}, nil
}

// NewSeededDropout draws its masks from a private generator.
func NewSeededDropout(p float64, seed int64) (*Dropout, error) {
	d, err := NewDropout(p)
	if err != nil {
		return nil, err
	}
	d.r = rand.New(rand.NewSource(seed))
	return d, nil
}

func (d *Dropout) Forward(input *tensor.Tensor, phase Phase) (*tensor.Tensor, error) {
	if phase != PhaseTrain {
		return input, nil
	}
	if d.r == nil {
		return tensor.Dropout(input, d.p, nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return tensor.Dropout(input, d.p, d.r)
}

func (d *Dropout) Parameters() []*tensor.Tensor {
	return nil
}

func (d *Dropout) ZeroGrad() {}
