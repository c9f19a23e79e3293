package nn

// InstanceNorm normalizes every sample on its own. With NoAxis the whole
// sample shares one mean and variance; with a channel axis each
// (sample, channel) slice does.
type InstanceNorm struct {
	*engine
}

func NewInstanceNorm(cfg Config) (*InstanceNorm, error) {
	e, err := newEngine(variantInstance, cfg)
	if err != nil {
		return nil, err
	}
	return &InstanceNorm{engine: e}, nil
}

// Call returns a call site that shares this layer's parameters.
func (l *InstanceNorm) Call(mode Mode) *CallSite {
	return &CallSite{layer: l, mode: mode}
}
