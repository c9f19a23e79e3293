package optim

import "github.com/fumitoshi0524/ixeorinorm/tensor"

type RMSProp struct {
	params      []*tensor.Tensor
	lr          float64
	alpha       float64
	eps         float64
	weightDecay float64
	momentum    float64
	squareAvg   map[*tensor.Tensor]*tensor.Tensor
	buffer      map[*tensor.Tensor]*tensor.Tensor
}

type RMSPropConfig struct {
	LR          float64
	Alpha       float64
	Eps         float64
	WeightDecay float64
	Momentum    float64
}

func NewRMSProp(params []*tensor.Tensor, lr float64) *RMSProp {
	return NewRMSPropWithConfig(params, RMSPropConfig{LR: lr})
}

// NewRMSPropWithConfig fills a zero Alpha with 0.99 and a zero Eps with 1e-8.
func NewRMSPropWithConfig(params []*tensor.Tensor, cfg RMSPropConfig) *RMSProp {
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.99
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}
	return &RMSProp{
		params:      params,
		lr:          cfg.LR,
		alpha:       cfg.Alpha,
		eps:         cfg.Eps,
		weightDecay: cfg.WeightDecay,
		momentum:    cfg.Momentum,
		squareAvg:   map[*tensor.Tensor]*tensor.Tensor{},
		buffer:      map[*tensor.Tensor]*tensor.Tensor{},
	}
}

func (o *RMSProp) Step() error {
	for _, p := range o.params {
		if p == nil {
			continue
		}
		grad := p.Grad()
		if grad == nil {
			continue
		}
		if o.weightDecay > 0 {
			if err := grad.AddScaled(p, o.weightDecay); err != nil {
				return err
			}
		}
		sq := o.squareAvg[p]
		if sq == nil {
			sq = tensor.Zeros(grad.Shape()...)
			o.squareAvg[p] = sq
		}
		squared := grad.Clone()
		if err := squared.MulInPlace(grad); err != nil {
			return err
		}
		sq.Scale(o.alpha)
		if err := sq.AddScaled(squared, 1-o.alpha); err != nil {
			return err
		}
		adj, err := tensor.Div(grad, tensor.Sqrt(tensor.AddScalar(sq, o.eps)))
		if err != nil {
			return err
		}
		if o.momentum <= 0 {
			if err := p.AddScaled(adj, -o.lr); err != nil {
				return err
			}
			continue
		}
		buf := o.buffer[p]
		if buf == nil {
			buf = tensor.Zeros(adj.Shape()...)
			o.buffer[p] = buf
		}
		buf.Scale(o.momentum)
		if err := buf.AddScaled(adj, o.lr); err != nil {
			return err
		}
		if err := p.AddScaled(buf, -1); err != nil {
			return err
		}
	}
	return nil
}

func (o *RMSProp) ZeroGrad() {
	zeroGrads(o.params)
}
