package tensor

import (
	"fmt"
	"sort"

	"github.com/fumitoshi0524/ixeorinorm/internal/parallel"
)

// NormalizeAxes maps negative axes into [0, rank), rejects out-of-range
// entries and returns the distinct axes in ascending order.
func NormalizeAxes(rank int, axes []int) ([]int, error) {
	seen := make(map[int]struct{}, len(axes))
	out := make([]int, 0, len(axes))
	for _, axis := range axes {
		norm := axis
		if norm < 0 {
			norm += rank
		}
		if norm < 0 || norm >= rank {
			return nil, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	sort.Ints(out)
	return out, nil
}

// SumAxes sums a over the given axes and keeps them as size-1 dimensions,
// so the result broadcasts against a. Gradients flow back by broadcasting.
func SumAxes(a *Tensor, axes ...int) (*Tensor, error) {
	rank := len(a.shape)
	reduce, err := NormalizeAxes(rank, axes)
	if err != nil {
		return nil, err
	}
	outShape := append([]int(nil), a.shape...)
	offsets := []int{0}
	for _, axis := range reduce {
		size := a.shape[axis]
		outShape[axis] = 1
		next := make([]int, 0, len(offsets)*size)
		for _, base := range offsets {
			for k := 0; k < size; k++ {
				next = append(next, base+k*a.strides[axis])
			}
		}
		offsets = next
	}
	out := Zeros(outShape...)
	outStrides := out.strides
	baseOffset := func(o int) int {
		rem := o
		off := 0
		for axis := 0; axis < rank; axis++ {
			coord := rem / outStrides[axis]
			rem -= coord * outStrides[axis]
			off += coord * a.strides[axis]
		}
		return off
	}
	sumRange := func(base, start, end int) float64 {
		s := 0.0
		for k := start; k < end; k++ {
			s += a.data[base+offsets[k]]
		}
		return s
	}
	if len(out.data) >= len(offsets) {
		parallel.For(len(out.data), func(start, end int) {
			for o := start; o < end; o++ {
				out.data[o] = sumRange(baseOffset(o), 0, len(offsets))
			}
		})
	} else {
		for o := range out.data {
			base := baseOffset(o)
			out.data[o] = parallel.Sum(len(offsets), func(start, end int) float64 {
				return sumRange(base, start, end)
			})
		}
	}
	if !a.requiresGrad {
		return out, nil
	}
	shape := append([]int(nil), a.shape...)
	out.requiresGrad = true
	out.parents = []*Tensor{a}
	out.node = &node{
		backward: func(grad *Tensor, grads map[*Tensor]*Tensor) {
			expanded, err := BroadcastTo(grad.Detach(), shape)
			if err != nil {
				panic(err)
			}
			accumulate(grads, a, expanded)
		},
	}
	return out, nil
}

// MeanAxes averages a over the given axes with keepdims semantics.
func MeanAxes(a *Tensor, axes ...int) (*Tensor, error) {
	s, err := SumAxes(a, axes...)
	if err != nil {
		return nil, err
	}
	count := a.Numel() / s.Numel()
	return MulScalar(s, 1.0/float64(count)), nil
}
