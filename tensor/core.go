package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense row-major float64 array. Tensors that require grad record
// the operation that produced them so Backward can replay the tape.
type Tensor struct {
	data         []float64
	shape        []int
	strides      []int
	grad         *Tensor
	requiresGrad bool
	node         *node
	parents      []*Tensor
}

type node struct {
	backward func(grad *Tensor, grads map[*Tensor]*Tensor)
}

func New(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("shape is required")
	}
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid shape %v", shape)
		}
		total *= dim
	}
	if total != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	t := &Tensor{
		data:    append([]float64(nil), data...),
		shape:   append([]int(nil), shape...),
		strides: makeStrides(shape),
	}
	return t, nil
}

func MustNew(data []float64, shape ...int) *Tensor {
	t, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func Zeros(shape ...int) *Tensor {
	return Full(0, shape...)
}

func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

func Full(value float64, shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	data := make([]float64, size)
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return &Tensor{
		data:    data,
		shape:   append([]int(nil), shape...),
		strides: makeStrides(shape),
	}
}

func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{
		data:    append([]float64(nil), t.data...),
		shape:   append([]int(nil), t.shape...),
		strides: append([]int(nil), t.strides...),
	}
}

func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

func (t *Tensor) Rank() int {
	return len(t.shape)
}

func (t *Tensor) Numel() int {
	return len(t.data)
}

func (t *Tensor) Data() []float64 {
	return append([]float64(nil), t.data...)
}

// Item returns the single value of a one-element tensor.
func (t *Tensor) Item() (float64, error) {
	if len(t.data) != 1 {
		return 0, fmt.Errorf("Item expects one element, tensor has %d", len(t.data))
	}
	return t.data[0], nil
}

// SetData overwrites the tensor's underlying values. The provided slice must match Numel().
func (t *Tensor) SetData(values []float64) error {
	if len(values) != len(t.data) {
		return fmt.Errorf("SetData expects %d values, got %d", len(t.data), len(values))
	}
	copy(t.data, values)
	return nil
}

func (t *Tensor) SetRequiresGrad(v bool) {
	t.requiresGrad = v
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) Grad() *Tensor {
	if t.grad == nil {
		return nil
	}
	return t.grad.Clone()
}

func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// Detach returns a copy that is cut off from the autograd tape.
func (t *Tensor) Detach() *Tensor {
	return t.Clone()
}

// CopyInto copies the contents of src into dst, ensuring shapes match.
func CopyInto(dst, src *Tensor) error {
	if dst == nil || src == nil {
		return errors.New("CopyInto requires non-nil tensors")
	}
	if !sameDims(dst.shape, src.shape) {
		return fmt.Errorf("CopyInto shape mismatch: %v vs %v", dst.shape, src.shape)
	}
	copy(dst.data, src.data)
	return nil
}

func makeStrides(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
