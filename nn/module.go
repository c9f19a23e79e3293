package nn

import (
	"errors"
	"fmt"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

// Module is a layer in a computation graph. The caller's phase is threaded
// through every Forward call.
type Module interface {
	Forward(input *tensor.Tensor, phase Phase) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
}

type StatefulModule interface {
	Module
	StateDict(prefix string, state map[string]*tensor.Tensor)
	LoadState(prefix string, state map[string]*tensor.Tensor) error
}

var (
	_ StatefulModule = (*InstanceNorm)(nil)
	_ StatefulModule = (*GroupNorm)(nil)
	_ StatefulModule = (*BatchRenorm)(nil)
	_ StatefulModule = (*Sequential)(nil)
	_ Module         = (*CallSite)(nil)
)

func ZeroGradAll(mods ...Module) {
	for _, m := range mods {
		if m == nil {
			continue
		}
		m.ZeroGrad()
	}
}

func SaveModule(path string, mod StatefulModule) error {
	if mod == nil {
		return errors.New("SaveModule requires non-nil module")
	}
	state := make(map[string]*tensor.Tensor)
	mod.StateDict("", state)
	if len(state) == 0 {
		return errors.New("module has no state to save")
	}
	return tensor.SaveTensors(path, state)
}

func LoadModule(path string, mod StatefulModule) error {
	if mod == nil {
		return errors.New("LoadModule requires non-nil module")
	}
	state, err := tensor.LoadTensors(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return mod.LoadState("", state)
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}
