package tensor

import "github.com/fumitoshi0524/ixeorinorm/internal/parallel"

func AddScalar(a *Tensor, value float64) *Tensor {
	out := mapScalar(a, func(v float64) float64 { return v + value })
	if a.requiresGrad {
		out.requiresGrad = true
		out.parents = []*Tensor{a}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				accumulate(grads, a, grad)
			},
		}
	}
	return out
}

func MulScalar(a *Tensor, value float64) *Tensor {
	out := mapScalar(a, func(v float64) float64 { return v * value })
	if a.requiresGrad {
		out.requiresGrad = true
		out.parents = []*Tensor{a}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				scaled := grad.Clone()
				scaled.Scale(value)
				accumulate(grads, a, scaled)
			},
		}
	}
	return out
}

func mapScalar(a *Tensor, fn func(float64) float64) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = fn(a.data[i])
		}
	})
	return out
}
