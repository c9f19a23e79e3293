package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// RunningStats tracks exponential moving averages of per-channel batch
// statistics. It is not safe for concurrent use; BatchRenorm serializes
// access with its own lock.
type RunningStats struct {
	mean     []float64
	variance []float64
	step     int
}

// NewRunningStats starts every channel at mean 0, variance 1.
func NewRunningStats(channels int) *RunningStats {
	variance := make([]float64, channels)
	for i := range variance {
		variance[i] = 1
	}
	return &RunningStats{mean: make([]float64, channels), variance: variance}
}

// Update blends one batch into the averages:
// running = momentum*running + (1-momentum)*batch.
func (s *RunningStats) Update(batchMean, batchVar []float64, momentum float64) error {
	if len(batchMean) != len(s.mean) || len(batchVar) != len(s.variance) {
		return fmt.Errorf("%w: running stats track %d channels, batch has %d/%d", ErrShapeMismatch, len(s.mean), len(batchMean), len(batchVar))
	}
	floats.Scale(momentum, s.mean)
	floats.AddScaled(s.mean, 1-momentum, batchMean)
	floats.Scale(momentum, s.variance)
	floats.AddScaled(s.variance, 1-momentum, batchVar)
	s.step++
	return nil
}

func (s *RunningStats) Mean() []float64 {
	return append([]float64(nil), s.mean...)
}

func (s *RunningStats) Variance() []float64 {
	return append([]float64(nil), s.variance...)
}

// Std returns sqrt(variance + eps) per channel.
func (s *RunningStats) Std(eps float64) []float64 {
	return stdDev(s.variance, eps)
}

func (s *RunningStats) Step() int {
	return s.step
}

// Restore overwrites the tracked values, e.g. from a saved state dict.
func (s *RunningStats) Restore(mean, variance []float64, step int) error {
	if len(mean) != len(s.mean) || len(variance) != len(s.variance) {
		return fmt.Errorf("%w: running stats track %d channels, got %d/%d", ErrShapeMismatch, len(s.mean), len(mean), len(variance))
	}
	copy(s.mean, mean)
	copy(s.variance, variance)
	s.step = step
	return nil
}

func stdDev(variance []float64, eps float64) []float64 {
	out := make([]float64, len(variance))
	for i, v := range variance {
		out[i] = math.Sqrt(v + eps)
	}
	return out
}
