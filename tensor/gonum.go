package tensor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FromDense copies a gonum matrix into a rank-2 tensor.
func FromDense(m mat.Matrix) *Tensor {
	rows, cols := m.Dims()
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data = append(data, m.At(i, j))
		}
	}
	return MustNew(data, rows, cols)
}

// ToDense copies a rank-2 tensor into a gonum matrix.
func (t *Tensor) ToDense() (*mat.Dense, error) {
	if len(t.shape) != 2 {
		return nil, errors.New("ToDense expects rank 2 tensor")
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.Data()), nil
}

// ChannelMatrix lays t out as a (Numel/C, C) matrix whose column c holds
// every element of channel c along axis.
func ChannelMatrix(t *Tensor, axis int) (*mat.Dense, error) {
	rank := len(t.shape)
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	channels := t.shape[axis]
	inner := t.strides[axis]
	rows := len(t.data) / channels
	out := mat.NewDense(rows, channels, nil)
	for i, v := range t.data {
		outer := i / (channels * inner)
		c := (i / inner) % channels
		out.Set(outer*inner+i%inner, c, v)
	}
	return out, nil
}
