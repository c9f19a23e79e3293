// Package normstat reports population moments of tensors. It backs the
// property checks in the layer tests and the summaries printed by normdemo.
package normstat

import (
	"fmt"
	"math"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Summary is the population mean and standard deviation of a sample.
type Summary struct {
	Mean float64
	Std  float64
}

func (s Summary) String() string {
	return fmt.Sprintf("mean=%+.4f std=%.4f", s.Mean, s.Std)
}

// Moments summarizes values. An empty slice yields NaN moments.
func Moments(values []float64) Summary {
	if len(values) == 0 {
		return Summary{Mean: math.NaN(), Std: math.NaN()}
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	return Summary{Mean: mean, Std: math.Sqrt(variance)}
}

// ChannelMoments summarizes every channel of t along axis, pooling the batch
// and all other axes.
func ChannelMoments(t *tensor.Tensor, axis int) ([]Summary, error) {
	m, err := tensor.ChannelMatrix(t, axis)
	if err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	out := make([]Summary, cols)
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, m)
		out[c] = Moments(col)
	}
	return out, nil
}

// SliceMoments summarizes each contiguous slice indexed by the first lead
// dimensions of t. lead 1 gives one summary per sample; lead 2 on an NCHW
// tensor gives one per (sample, channel).
func SliceMoments(t *tensor.Tensor, lead int) ([]Summary, error) {
	shape := t.Shape()
	if lead < 1 || lead > len(shape) {
		return nil, fmt.Errorf("lead %d out of range for rank %d", lead, len(shape))
	}
	count := 1
	for _, d := range shape[:lead] {
		count *= d
	}
	data := t.Data()
	size := len(data) / count
	out := make([]Summary, count)
	for i := range out {
		out[i] = Moments(data[i*size : (i+1)*size])
	}
	return out, nil
}
