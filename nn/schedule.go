package nn

import "math"

// dMaxFloor is the d_max value the ramp starts from once it begins moving.
const dMaxFloor = 1e-3

// ClipSchedule owns the renormalization bounds r_max and d_max. They start at
// 1 and 0 (no correction) and follow logistic ramps towards their ceilings
// as training steps accumulate. Each step moves 1/t_delta along the ramp, so
// a smaller t_delta reaches the ceilings in fewer steps.
type ClipSchedule struct {
	rCeil  float64
	dCeil  float64
	tDelta float64
	t      float64
	rMax   float64
	dMax   float64
}

func NewClipSchedule(rCeil, dCeil, tDelta float64) *ClipSchedule {
	return &ClipSchedule{rCeil: rCeil, dCeil: dCeil, tDelta: tDelta, rMax: 1}
}

// Bounds returns the current (r_max, d_max).
func (c *ClipSchedule) Bounds() (float64, float64) {
	return c.rMax, c.dMax
}

// Elapsed is the ramp position reached so far.
func (c *ClipSchedule) Elapsed() float64 {
	return c.t
}

// Advance moves the bounds one training step along the ramp. The bounds
// never decrease and never exceed their ceilings.
func (c *ClipSchedule) Advance() {
	r := c.rCeil / (1 + (c.rCeil-1)*math.Exp(-c.t))
	d := 0.0
	if c.dCeil > 0 {
		d = c.dCeil / (1 + (c.dCeil/dMaxFloor-1)*math.Exp(-2*c.t))
	}
	c.rMax = math.Max(c.rMax, math.Min(r, c.rCeil))
	c.dMax = math.Max(c.dMax, math.Min(d, c.dCeil))
	c.t += 1 / c.tDelta
}

// Restore sets the schedule to a saved position.
func (c *ClipSchedule) Restore(rMax, dMax, elapsed float64) {
	c.rMax = math.Min(math.Max(rMax, 1), c.rCeil)
	c.dMax = math.Min(math.Max(dMax, 0), c.dCeil)
	c.t = elapsed
}

// Correct returns the per-channel renormalization factors
//
//	r = clip(batchStd/runStd, 1/r_max, r_max)
//	d = clip((batchMean-runMean)/runStd, -d_max, d_max)
func (c *ClipSchedule) Correct(batchMean, batchStd, runMean, runStd []float64) (r, d []float64) {
	r = make([]float64, len(batchMean))
	d = make([]float64, len(batchMean))
	for i := range batchMean {
		r[i] = clamp(batchStd[i]/runStd[i], 1/c.rMax, c.rMax)
		d[i] = clamp((batchMean[i]-runMean[i])/runStd[i], -c.dMax, c.dMax)
	}
	return r, d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
