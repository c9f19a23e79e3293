package tensor

import (
	"fmt"
	"math/rand"
)

// Dropout zeroes each element with probability p and scales the survivors
// by 1/(1-p). A nil r draws from the package generator.
func Dropout(input *Tensor, p float64, r *rand.Rand) (*Tensor, error) {
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout probability must be in [0, 1), got %g", p)
	}
	if p == 0 {
		return input, nil
	}
	scale := 1.0 / (1 - p)
	mask := Zeros(input.shape...)
	draw := func() {
		for i := range mask.data {
			if r.Float64() >= p {
				mask.data[i] = scale
			}
		}
	}
	if r == nil {
		rngLock.Lock()
		r = rng
		draw()
		rngLock.Unlock()
	} else {
		draw()
	}
	return Mul(input, mask)
}
