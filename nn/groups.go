package nn

import "fmt"

// GroupPlan splits a channel axis into Groups contiguous blocks of Span
// channels each.
type GroupPlan struct {
	Groups   int
	Channels int
	Span     int
}

func PartitionGroups(channels, groups int) (GroupPlan, error) {
	if groups <= 0 {
		return GroupPlan{}, fmt.Errorf("%w: groups must be positive, got %d", ErrConfiguration, groups)
	}
	if channels%groups != 0 {
		return GroupPlan{}, fmt.Errorf("%w: %d groups do not divide %d channels", ErrConfiguration, groups, channels)
	}
	return GroupPlan{Groups: groups, Channels: channels, Span: channels / groups}, nil
}

// GroupOf returns the group index of channel c.
func (g GroupPlan) GroupOf(c int) int {
	return c / g.Span
}

// ViewShape replaces the channel dimension at feature with (Groups, Span).
// Channels are contiguous in row-major order, so the view is a plain reshape.
func (g GroupPlan) ViewShape(shape []int, feature int) []int {
	view := make([]int, 0, len(shape)+1)
	view = append(view, shape[:feature]...)
	view = append(view, g.Groups, g.Span)
	view = append(view, shape[feature+1:]...)
	return view
}

// ReduceAxes lists every axis of the grouped view except the batch axis and
// the group axis, which sits at the original feature index.
func (g GroupPlan) ReduceAxes(viewRank, feature int) []int {
	axes := make([]int, 0, viewRank-2)
	for i := 1; i < viewRank; i++ {
		if i == feature {
			continue
		}
		axes = append(axes, i)
	}
	return axes
}
