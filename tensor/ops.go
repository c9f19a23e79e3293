package tensor

import (
	"fmt"
	"math"

	"github.com/fumitoshi0524/ixeorinorm/internal/parallel"
)

func Add(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] + b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor, left, right *Tensor) {
		if left.requiresGrad {
			accumulate(grads, left, grad)
		}
		if right.requiresGrad {
			accumulate(grads, right, grad)
		}
	})
	return out, nil
}

func Sub(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] - b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor, left, right *Tensor) {
		if left.requiresGrad {
			accumulate(grads, left, grad)
		}
		if right.requiresGrad {
			accumulate(grads, right, MulScalar(grad, -1))
		}
	})
	return out, nil
}

func Mul(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] * b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor, left, right *Tensor) {
		if left.requiresGrad {
			accumulate(grads, left, hadamard(grad, right))
		}
		if right.requiresGrad {
			accumulate(grads, right, hadamard(grad, left))
		}
	})
	return out, nil
}

func Div(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] / b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor, left, right *Tensor) {
		if left.requiresGrad {
			accumulate(grads, left, hadamard(grad, reciprocal(right)))
		}
		if right.requiresGrad {
			numerator := hadamard(grad, left)
			parallel.For(len(numerator.data), func(start, end int) {
				for i := start; i < end; i++ {
					numerator.data[i] = -numerator.data[i] / (right.data[i] * right.data[i])
				}
			})
			accumulate(grads, right, numerator)
		}
	})
	return out, nil
}

func Pow(a *Tensor, value float64) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = math.Pow(a.data[i], value)
		}
	})
	if a.requiresGrad {
		out.requiresGrad = true
		out.parents = []*Tensor{a}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				local := Zeros(a.shape...)
				parallel.For(len(local.data), func(start, end int) {
					for i := start; i < end; i++ {
						local.data[i] = value * math.Pow(a.data[i], value-1)
					}
				})
				accumulate(grads, a, hadamard(grad, local))
			},
		}
	}
	return out
}

// Sqrt is the elementwise square root; d/dx sqrt(x) = 1 / (2 sqrt(x)).
func Sqrt(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = math.Sqrt(a.data[i])
		}
	})
	if a.requiresGrad {
		out.requiresGrad = true
		out.parents = []*Tensor{a}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				g := Zeros(a.shape...)
				parallel.For(len(g.data), func(start, end int) {
					for i := start; i < end; i++ {
						g.data[i] = grad.data[i] / (2 * out.data[i])
					}
				})
				accumulate(grads, a, g)
			},
		}
	}
	return out
}

func Sum(a *Tensor) *Tensor {
	val := parallel.Sum(len(a.data), func(start, end int) float64 {
		s := 0.0
		for i := start; i < end; i++ {
			s += a.data[i]
		}
		return s
	})
	out := MustNew([]float64{val}, 1)
	if a.requiresGrad {
		out.requiresGrad = true
		out.parents = []*Tensor{a}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				accumulate(grads, a, Full(grad.data[0], a.shape...))
			},
		}
	}
	return out
}

func Mean(a *Tensor) *Tensor {
	return MulScalar(Sum(a), 1.0/float64(a.Numel()))
}

func hadamard(a, b *Tensor) *Tensor {
	if err := ensureSameShape(a, b); err != nil {
		panic(err)
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] * b.data[i]
		}
	})
	return out
}

func reciprocal(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = 1.0 / a.data[i]
		}
	})
	return out
}

func attachBinaryGrad(out, a, b *Tensor, backward func(grad *Tensor, grads map[*Tensor]*Tensor, left, right *Tensor)) {
	if !(a.requiresGrad || b.requiresGrad) {
		return
	}
	out.requiresGrad = true
	parents := make([]*Tensor, 0, 2)
	if a.requiresGrad {
		parents = append(parents, a)
	}
	if b.requiresGrad {
		parents = append(parents, b)
	}
	out.parents = parents
	out.node = &node{
		backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
			backward(grad, grads, a, b)
		},
	}
}

func ensureSameShape(a, b *Tensor) error {
	if !sameDims(a.shape, b.shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", a.shape, b.shape)
	}
	return nil
}
