package nn

import "github.com/fumitoshi0524/ixeorinorm/tensor"

// BatchRenorm is batch normalization with a renormalization correction.
// In training it normalizes with batch statistics, corrects the result
// towards the running statistics with clipped factors r and d, and updates
// the running statistics and the clipping bounds. In inference it
// normalizes with the running statistics only.
type BatchRenorm struct {
	*engine
}

func NewBatchRenorm(cfg Config) (*BatchRenorm, error) {
	e, err := newEngine(variantRenorm, cfg)
	if err != nil {
		return nil, err
	}
	return &BatchRenorm{engine: e}, nil
}

func (l *BatchRenorm) Call(mode Mode) *CallSite {
	return &CallSite{layer: l, mode: mode}
}

// RunningMean returns a copy of the running mean, or nil before build.
func (l *BatchRenorm) RunningMean() *tensor.Tensor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats == nil {
		return nil
	}
	return tensor.MustNew(l.stats.Mean(), l.plan.Channels())
}

// RunningVariance returns a copy of the running variance, or nil before build.
func (l *BatchRenorm) RunningVariance() *tensor.Tensor {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats == nil {
		return nil
	}
	return tensor.MustNew(l.stats.Variance(), l.plan.Channels())
}

// RMax is 1 until the first training step.
func (l *BatchRenorm) RMax() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clip == nil {
		return 1
	}
	r, _ := l.clip.Bounds()
	return r
}

// DMax is 0 until the first training step.
func (l *BatchRenorm) DMax() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clip == nil {
		return 0
	}
	_, d := l.clip.Bounds()
	return d
}

// Step counts the training-mode forward calls that updated the running state.
func (l *BatchRenorm) Step() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats == nil {
		return 0
	}
	return l.stats.Step()
}
