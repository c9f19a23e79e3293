package nn

import (
	"fmt"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

type Sequential struct {
	modules []Module
}

func NewSequential(mods ...Module) *Sequential {
	copyMods := make([]Module, len(mods))
	copy(copyMods, mods)
	return &Sequential{modules: copyMods}
}

func (s *Sequential) Forward(input *tensor.Tensor, phase Phase) (*tensor.Tensor, error) {
	var err error
	out := input
	for idx, m := range s.modules {
		out, err = m.Forward(out, phase)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", idx, err)
		}
	}
	return out, nil
}

// Parameters lists each distinct parameter once, even when a layer appears
// through several call sites.
func (s *Sequential) Parameters() []*tensor.Tensor {
	seen := make(map[*tensor.Tensor]struct{})
	var params []*tensor.Tensor
	for _, m := range s.modules {
		for _, p := range m.Parameters() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			params = append(params, p)
		}
	}
	return params
}

func (s *Sequential) ZeroGrad() {
	for _, m := range s.modules {
		m.ZeroGrad()
	}
}

func (s *Sequential) StateDict(prefix string, state map[string]*tensor.Tensor) {
	for idx, mod := range s.modules {
		if sm, ok := mod.(StatefulModule); ok {
			sm.StateDict(joinPrefix(prefix, fmt.Sprintf("%d", idx)), state)
		}
	}
}

func (s *Sequential) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	for idx, mod := range s.modules {
		if sm, ok := mod.(StatefulModule); ok {
			if err := sm.LoadState(joinPrefix(prefix, fmt.Sprintf("%d", idx)), state); err != nil {
				return err
			}
		}
	}
	return nil
}
