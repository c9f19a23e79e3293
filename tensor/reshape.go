package tensor

import (
	"errors"
	"fmt"
)

// Reshape returns a view of t with a new shape over the same data. A single
// -1 dimension is inferred from the element count.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("reshape shape required")
	}
	target := append([]int(nil), shape...)
	total := t.Numel()
	prod := 1
	infer := -1
	for i, dim := range target {
		if dim == -1 {
			if infer != -1 {
				return nil, errors.New("multiple inferred dimensions")
			}
			infer = i
			continue
		}
		if dim <= 0 {
			return nil, fmt.Errorf("invalid reshape dimension %d", dim)
		}
		prod *= dim
	}
	if infer != -1 {
		if total%prod != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v from %d elements", shape, total)
		}
		target[infer] = total / prod
		prod = total
	}
	if prod != total {
		return nil, fmt.Errorf("reshape size mismatch: %v -> %v", t.shape, shape)
	}
	out := &Tensor{
		data:         t.data,
		shape:        target,
		strides:      makeStrides(target),
		requiresGrad: t.requiresGrad,
	}
	if t.requiresGrad {
		original := append([]int(nil), t.shape...)
		out.parents = []*Tensor{t}
		out.node = &node{
			backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
				accumulate(grads, t, reshapeKeep(grad, original))
			},
		}
	}
	return out, nil
}
