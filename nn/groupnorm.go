package nn

// GroupNorm normalizes every sample over contiguous blocks of channels.
// Groups == 1 matches InstanceNorm with NoAxis and Groups == channels
// matches per-channel InstanceNorm.
type GroupNorm struct {
	*engine
}

func NewGroupNorm(cfg Config) (*GroupNorm, error) {
	e, err := newEngine(variantGroup, cfg)
	if err != nil {
		return nil, err
	}
	return &GroupNorm{engine: e}, nil
}

func (l *GroupNorm) Call(mode Mode) *CallSite {
	return &CallSite{layer: l, mode: mode}
}

// Groups returns the channel partition, valid once the layer is built.
func (l *GroupNorm) Groups() GroupPlan {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groups
}
