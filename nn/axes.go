package nn

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Axis is a configured feature axis: a concrete index (negative values count
// from the end) or NoAxis.
type Axis struct {
	index int
	set   bool
}

// NoAxis means there is no channel axis: statistics are shared by every
// non-batch element and gamma/beta are scalars.
var NoAxis = Axis{}

func AxisAt(index int) Axis {
	return Axis{index: index, set: true}
}

func (a Axis) Index() (int, bool) {
	return a.index, a.set
}

func (a Axis) String() string {
	if !a.set {
		return "none"
	}
	return strconv.Itoa(a.index)
}

func (a Axis) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return json.Marshal(a.index)
}

func (a *Axis) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = NoAxis
		return nil
	}
	var idx int
	if err := json.Unmarshal(b, &idx); err != nil {
		return fmt.Errorf("axis: %w", err)
	}
	*a = AxisAt(idx)
	return nil
}

// AxisPlan is the resolved reduction layout for one input shape.
type AxisPlan struct {
	// Shape is the shape the plan was resolved against.
	Shape []int
	// Feature is the normalised feature axis, or -1 for NoAxis.
	Feature int
	// Reduce lists the axes collapsed by the moment estimate, ascending.
	Reduce []int
	// Broadcast has the channel count at Feature and 1 elsewhere.
	Broadcast []int
}

// Channels is the number of independent gamma/beta entries.
func (p AxisPlan) Channels() int {
	if p.Feature < 0 {
		return 1
	}
	return p.Shape[p.Feature]
}

// ResolveAxes computes the reduction axes and parameter broadcast shape for
// an input of the given shape. Axis 0 is the batch axis; it is reduced only
// when reduceBatch is set (batch statistics) and can never be the feature axis.
func ResolveAxes(shape []int, axis Axis, reduceBatch bool) (AxisPlan, error) {
	rank := len(shape)
	if rank < 2 {
		return AxisPlan{}, fmt.Errorf("%w: input rank %d has no axes besides the batch axis", ErrConfiguration, rank)
	}
	plan := AxisPlan{
		Shape:     append([]int(nil), shape...),
		Feature:   -1,
		Broadcast: make([]int, rank),
	}
	for i := range plan.Broadcast {
		plan.Broadcast[i] = 1
	}
	if idx, ok := axis.Index(); ok {
		if idx < 0 {
			idx += rank
		}
		if idx < 0 || idx >= rank {
			return AxisPlan{}, fmt.Errorf("%w: axis %s out of range for rank %d", ErrConfiguration, axis, rank)
		}
		if idx == 0 {
			return AxisPlan{}, fmt.Errorf("%w: axis %s resolves to the batch axis", ErrConfiguration, axis)
		}
		plan.Feature = idx
		plan.Broadcast[idx] = shape[idx]
	}
	for i := 0; i < rank; i++ {
		if i == plan.Feature || (i == 0 && !reduceBatch) {
			continue
		}
		plan.Reduce = append(plan.Reduce, i)
	}
	return plan, nil
}

// Check rejects inputs whose rank or feature size differs from the plan.
// The batch size and the other reduced dimensions may vary between calls.
func (p AxisPlan) Check(shape []int) error {
	if len(shape) != len(p.Shape) {
		return fmt.Errorf("%w: expected rank %d, got shape %v", ErrShapeMismatch, len(p.Shape), shape)
	}
	if p.Feature >= 0 && shape[p.Feature] != p.Shape[p.Feature] {
		return fmt.Errorf("%w: expected %d channels on axis %d, got shape %v", ErrShapeMismatch, p.Shape[p.Feature], p.Feature, shape)
	}
	return nil
}
