package tensor

import (
	"errors"

	"github.com/fumitoshi0524/ixeorinorm/internal/parallel"
)

// Backward seeds the gradient of t with ones and propagates it to every
// tensor on the tape that requires grad. Gradients accumulate across calls
// until ZeroGrad.
func (t *Tensor) Backward() error {
	if t == nil {
		return errors.New("nil tensor")
	}
	if !t.requiresGrad {
		return errors.New("tensor does not require grad")
	}
	order := topo(t)
	grads := map[*Tensor]*Tensor{t: Ones(t.shape...)}
	for i := len(order) - 1; i >= 0; i-- {
		current := order[i]
		grad := grads[current]
		if grad == nil {
			continue
		}
		if current.node == nil {
			// leaf
			if current.grad == nil {
				current.grad = grad.Clone()
			} else {
				addInPlace(current.grad, grad)
			}
			continue
		}
		current.node.backward(grad, grads)
	}
	return nil
}

// topo returns the tape reachable from root in dependency order, parents
// before children. It walks iteratively so long normalization chains do not
// grow the goroutine stack.
func topo(root *Tensor) []*Tensor {
	type frame struct {
		t    *Tensor
		next int
	}
	visited := map[*Tensor]bool{root: true}
	var order []*Tensor
	stack := []frame{{t: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.t.parents) {
			parent := top.t.parents[top.next]
			top.next++
			if parent != nil && !visited[parent] {
				visited[parent] = true
				stack = append(stack, frame{t: parent})
			}
			continue
		}
		order = append(order, top.t)
		stack = stack[:len(stack)-1]
	}
	return order
}

func accumulate(grads map[*Tensor]*Tensor, target *Tensor, value *Tensor) {
	if target == nil || value == nil {
		return
	}
	if existing, ok := grads[target]; ok {
		addInPlace(existing, value)
	} else {
		grads[target] = value.Clone()
	}
}

func addInPlace(dst, src *Tensor) {
	if err := ensureSameShape(dst, src); err != nil {
		panic(err)
	}
	parallel.For(len(dst.data), func(start, end int) {
		for i := start; i < end; i++ {
			dst.data[i] += src.data[i]
		}
	})
}
