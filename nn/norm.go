package nn

import (
	"fmt"
	"sync"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

type variant int

const (
	variantInstance variant = iota
	variantGroup
	variantRenorm
)

func (v variant) String() string {
	switch v {
	case variantGroup:
		return "GroupNorm"
	case variantRenorm:
		return "BatchRenorm"
	default:
		return "InstanceNorm"
	}
}

// engine is the normalization core shared by InstanceNorm, GroupNorm and
// BatchRenorm. The variants differ only in how moments are taken and in
// the renorm state; axis resolution and the affine step are common.
type engine struct {
	kind variant
	cfg  Config

	// mu guards the lazy build, the trainable flag and the renorm state.
	mu        sync.Mutex
	built     bool
	plan      AxisPlan
	groups    GroupPlan
	gamma     *tensor.Tensor
	beta      *tensor.Tensor
	trainable bool
	stats     *RunningStats
	clip      *ClipSchedule
}

func newEngine(kind variant, cfg Config) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if kind == variantGroup {
		if cfg.Groups <= 0 {
			return nil, fmt.Errorf("%s: %w: groups must be positive, got %d", kind, ErrConfiguration, cfg.Groups)
		}
		if _, ok := cfg.Axis.Index(); !ok {
			return nil, fmt.Errorf("%s: %w: grouping needs a channel axis", kind, ErrConfiguration)
		}
	}
	return &engine{kind: kind, cfg: cfg, trainable: cfg.Trainable}, nil
}

// Build binds the layer to an input shape, creating gamma, beta and any
// running state. Later calls only check compatibility.
func (e *engine) Build(shape []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked(shape)
}

func (e *engine) buildLocked(shape []int) error {
	if e.built {
		if err := e.plan.Check(shape); err != nil {
			return fmt.Errorf("%s: %w", e.kind, err)
		}
		return nil
	}
	plan, err := ResolveAxes(shape, e.cfg.Axis, e.kind == variantRenorm)
	if err != nil {
		return fmt.Errorf("%s: %w", e.kind, err)
	}
	channels := plan.Channels()
	if e.kind == variantGroup {
		groups, err := PartitionGroups(channels, e.cfg.Groups)
		if err != nil {
			return fmt.Errorf("%s: %w", e.kind, err)
		}
		e.groups = groups
	}
	if e.cfg.Scale {
		e.gamma = tensor.Ones(channels)
		e.gamma.SetRequiresGrad(e.trainable)
	}
	if e.cfg.Center {
		e.beta = tensor.Zeros(channels)
		e.beta.SetRequiresGrad(e.trainable)
	}
	if e.kind == variantRenorm {
		e.stats = NewRunningStats(channels)
		e.clip = NewClipSchedule(e.cfg.RMaxCeiling, e.cfg.DMaxCeiling, e.cfg.TDelta)
	}
	e.plan = plan
	e.built = true
	return nil
}

// Forward runs the layer with ModeAuto, following the caller's phase.
func (e *engine) Forward(input *tensor.Tensor, phase Phase) (*tensor.Tensor, error) {
	return e.ForwardMode(input, ModeAuto, phase)
}

// ForwardMode normalizes input. Only BatchRenorm distinguishes training from
// inference; the per-sample variants ignore the mode.
func (e *engine) ForwardMode(input *tensor.Tensor, mode Mode, phase Phase) (*tensor.Tensor, error) {
	if input == nil {
		return nil, fmt.Errorf("%s: nil input", e.kind)
	}
	shape := input.Shape()
	if err := e.Build(shape); err != nil {
		return nil, err
	}
	var (
		normalized *tensor.Tensor
		err        error
	)
	switch e.kind {
	case variantGroup:
		normalized, err = e.groupNormalize(input, shape)
	case variantRenorm:
		normalized, err = e.renormalize(input, shape, mode.Training(phase))
	default:
		var st *Standardized
		st, err = Standardize(input, e.plan.Reduce, e.cfg.Epsilon)
		if st != nil {
			normalized = st.Normalized
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.kind, err)
	}
	return affine(normalized, e.gamma, e.beta, e.plan.Broadcast)
}

func (e *engine) groupNormalize(input *tensor.Tensor, shape []int) (*tensor.Tensor, error) {
	feature := e.plan.Feature
	view, err := input.Reshape(e.groups.ViewShape(shape, feature)...)
	if err != nil {
		return nil, err
	}
	st, err := Standardize(view, e.groups.ReduceAxes(len(shape)+1, feature), e.cfg.Epsilon)
	if err != nil {
		return nil, err
	}
	return st.Normalized.Reshape(shape...)
}

func (e *engine) renormalize(input *tensor.Tensor, shape []int, training bool) (*tensor.Tensor, error) {
	broadcast := e.plan.Broadcast
	if !training {
		e.mu.Lock()
		mean := e.stats.Mean()
		std := e.stats.Std(e.cfg.Epsilon)
		e.mu.Unlock()
		meanT, err := channelTensor(mean, broadcast, shape)
		if err != nil {
			return nil, err
		}
		stdT, err := channelTensor(std, broadcast, shape)
		if err != nil {
			return nil, err
		}
		centered, err := tensor.Sub(input, meanT)
		if err != nil {
			return nil, err
		}
		return tensor.Div(centered, stdT)
	}

	st, err := Standardize(input, e.plan.Reduce, e.cfg.Epsilon)
	if err != nil {
		return nil, err
	}
	batchMean := st.Mean.Data()
	batchVar := st.Variance.Data()

	// Snapshot and update in one critical section so call sites sharing
	// this layer apply their updates one after another.
	e.mu.Lock()
	r, d := e.clip.Correct(batchMean, stdDev(batchVar, e.cfg.Epsilon), e.stats.Mean(), e.stats.Std(e.cfg.Epsilon))
	if e.trainable {
		if err := e.stats.Update(batchMean, batchVar, e.cfg.Momentum); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.clip.Advance()
	}
	e.mu.Unlock()

	// r and d are fresh constants, so no gradient flows through them.
	rT, err := channelTensor(r, broadcast, shape)
	if err != nil {
		return nil, err
	}
	dT, err := channelTensor(d, broadcast, shape)
	if err != nil {
		return nil, err
	}
	scaled, err := tensor.Mul(st.Normalized, rT)
	if err != nil {
		return nil, err
	}
	return tensor.Add(scaled, dT)
}

// Parameters returns gamma and beta while the layer is trainable.
func (e *engine) Parameters() []*tensor.Tensor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.trainable {
		return nil
	}
	var params []*tensor.Tensor
	if e.gamma != nil {
		params = append(params, e.gamma)
	}
	if e.beta != nil {
		params = append(params, e.beta)
	}
	return params
}

func (e *engine) ZeroGrad() {
	if e.gamma != nil {
		e.gamma.ZeroGrad()
	}
	if e.beta != nil {
		e.beta.ZeroGrad()
	}
}

// SetTrainable freezes or unfreezes the layer. A frozen layer hands no
// parameters to optimizers, records no gradients for gamma/beta and leaves
// its running state untouched.
func (e *engine) SetTrainable(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trainable = v
	if e.gamma != nil {
		e.gamma.SetRequiresGrad(v)
		if !v {
			e.gamma.ZeroGrad()
		}
	}
	if e.beta != nil {
		e.beta.SetRequiresGrad(v)
		if !v {
			e.beta.ZeroGrad()
		}
	}
}

func (e *engine) Trainable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trainable
}

// Config returns the construction config with the current trainable flag.
func (e *engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Trainable = e.trainable
	return cfg
}

// Built reports whether the layer has bound its parameter shapes.
func (e *engine) Built() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.built
}

// Plan returns the resolved axis layout. It is the zero plan before build.
func (e *engine) Plan() AxisPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan
}

// Gamma is the scale parameter, or nil when scale is disabled or the layer
// is not built yet.
func (e *engine) Gamma() *tensor.Tensor {
	return e.gamma
}

// Beta is the shift parameter, or nil when center is disabled or the layer
// is not built yet.
func (e *engine) Beta() *tensor.Tensor {
	return e.beta
}

// Denormalize undoes the affine step, returning (out - beta) / gamma.
func (e *engine) Denormalize(out *tensor.Tensor) (*tensor.Tensor, error) {
	if !e.Built() {
		return nil, fmt.Errorf("%w: %s: Denormalize before build", ErrConfiguration, e.kind)
	}
	shape := out.Shape()
	if err := e.plan.Check(shape); err != nil {
		return nil, err
	}
	x := out.Detach()
	if e.beta != nil {
		b, err := expandChannels(e.beta.Detach(), e.plan.Broadcast, shape)
		if err != nil {
			return nil, err
		}
		if x, err = tensor.Sub(x, b); err != nil {
			return nil, err
		}
	}
	if e.gamma != nil {
		g, err := expandChannels(e.gamma.Detach(), e.plan.Broadcast, shape)
		if err != nil {
			return nil, err
		}
		if x, err = tensor.Div(x, g); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (e *engine) StateDict(prefix string, state map[string]*tensor.Tensor) {
	if state == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gamma != nil {
		state[joinPrefix(prefix, "gamma")] = e.gamma.Clone()
	}
	if e.beta != nil {
		state[joinPrefix(prefix, "beta")] = e.beta.Clone()
	}
	if e.stats == nil {
		return
	}
	channels := e.plan.Channels()
	rMax, dMax := e.clip.Bounds()
	state[joinPrefix(prefix, "running_mean")] = tensor.MustNew(e.stats.Mean(), channels)
	state[joinPrefix(prefix, "running_variance")] = tensor.MustNew(e.stats.Variance(), channels)
	state[joinPrefix(prefix, "step")] = tensor.MustNew([]float64{float64(e.stats.Step())}, 1)
	state[joinPrefix(prefix, "clip")] = tensor.MustNew([]float64{rMax, dMax, e.clip.Elapsed()}, 3)
}

// LoadState restores a StateDict. The layer must be built first so the
// parameter shapes are known. Every key is staged before anything is
// written, so a failed load leaves the layer unchanged.
func (e *engine) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	if state == nil {
		return fmt.Errorf("state dict is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.built {
		return fmt.Errorf("%w: %s: LoadState before build", ErrConfiguration, e.kind)
	}
	staged := make(map[string]*tensor.Tensor)
	stage := func(name string, shape ...int) error {
		key := joinPrefix(prefix, name)
		src, ok := state[key]
		if !ok {
			return fmt.Errorf("%s missing %s", e.kind, key)
		}
		dst := tensor.Zeros(shape...)
		if err := tensor.CopyInto(dst, src); err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		staged[name] = dst
		return nil
	}
	if e.gamma != nil {
		if err := stage("gamma", e.gamma.Shape()...); err != nil {
			return err
		}
	}
	if e.beta != nil {
		if err := stage("beta", e.beta.Shape()...); err != nil {
			return err
		}
	}
	if e.stats != nil {
		channels := e.plan.Channels()
		for _, name := range []string{"running_mean", "running_variance"} {
			if err := stage(name, channels); err != nil {
				return err
			}
		}
		if err := stage("step", 1); err != nil {
			return err
		}
		if err := stage("clip", 3); err != nil {
			return err
		}
	}

	if g, ok := staged["gamma"]; ok {
		if err := tensor.CopyInto(e.gamma, g); err != nil {
			return err
		}
	}
	if b, ok := staged["beta"]; ok {
		if err := tensor.CopyInto(e.beta, b); err != nil {
			return err
		}
	}
	if e.stats == nil {
		return nil
	}
	steps := staged["step"].Data()[0]
	if err := e.stats.Restore(staged["running_mean"].Data(), staged["running_variance"].Data(), int(steps)); err != nil {
		return err
	}
	bounds := staged["clip"].Data()
	e.clip.Restore(bounds[0], bounds[1], bounds[2])
	return nil
}
