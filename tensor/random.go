package tensor

import (
	"math/rand"
	"sync"
	"time"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))
var rngLock sync.Mutex

// Randn draws standard normal values from the package generator.
func Randn(shape ...int) *Tensor {
	rngLock.Lock()
	defer rngLock.Unlock()
	return Normal(rng, 0, 1, shape...)
}

// Normal draws values from N(mean, std^2) using r.
func Normal(r *rand.Rand, mean, std float64, shape ...int) *Tensor {
	out := Zeros(shape...)
	for i := range out.data {
		out.data[i] = mean + std*r.NormFloat64()
	}
	return out
}
