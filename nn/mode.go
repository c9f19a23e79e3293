package nn

import "github.com/fumitoshi0524/ixeorinorm/tensor"

// Phase is the execution phase the caller is running in. It is passed
// explicitly to every forward call; there is no process-wide toggle.
type Phase int

const (
	// PhaseUnset behaves as inference.
	PhaseUnset Phase = iota
	PhaseTrain
	PhaseInfer
)

func (p Phase) String() string {
	switch p {
	case PhaseTrain:
		return "train"
	case PhaseInfer:
		return "infer"
	default:
		return "unset"
	}
}

// Mode selects batch statistics (ModeTrain), running statistics (ModeInfer)
// or whatever the caller's phase says (ModeAuto) for a single call.
type Mode int

const (
	ModeAuto Mode = iota
	ModeTrain
	ModeInfer
)

// Training resolves m against the phase supplied by the caller.
func (m Mode) Training(phase Phase) bool {
	switch m {
	case ModeTrain:
		return true
	case ModeInfer:
		return false
	default:
		return phase == PhaseTrain
	}
}

func (m Mode) String() string {
	switch m {
	case ModeTrain:
		return "train"
	case ModeInfer:
		return "infer"
	default:
		return "auto"
	}
}

type modeForwarder interface {
	Module
	ForwardMode(input *tensor.Tensor, mode Mode, phase Phase) (*tensor.Tensor, error)
}

// CallSite is one use of a layer inside a larger graph with a fixed mode.
// Every call site of a layer shares that layer's parameters and running
// state by reference.
type CallSite struct {
	layer modeForwarder
	mode  Mode
}

func (c *CallSite) Forward(input *tensor.Tensor, phase Phase) (*tensor.Tensor, error) {
	return c.layer.ForwardMode(input, c.mode, phase)
}

func (c *CallSite) Parameters() []*tensor.Tensor {
	return c.layer.Parameters()
}

func (c *CallSite) ZeroGrad() {
	c.layer.ZeroGrad()
}

func (c *CallSite) Mode() Mode {
	return c.mode
}
