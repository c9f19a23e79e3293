package optim

import "github.com/fumitoshi0524/ixeorinorm/tensor"

type SGD struct {
	params   []*tensor.Tensor
	cfg      SGDConfig
	velocity map[*tensor.Tensor]*tensor.Tensor
}

// SGDConfig holds the SGD hyperparameters. Zero values disable the
// corresponding feature; GradNormType defaults to 2.
type SGDConfig struct {
	LR            float64
	Momentum      float64
	WeightDecay   float64
	Nesterov      bool
	MaxGradNorm   float64
	GradNormType  float64
	GradValueClip float64
	Constraints   []Constraint
}

func NewSGD(params []*tensor.Tensor, lr float64, momentum float64) *SGD {
	return NewSGDWithConfig(params, SGDConfig{LR: lr, Momentum: momentum})
}

func NewSGDWithConfig(params []*tensor.Tensor, cfg SGDConfig) *SGD {
	cfg.Constraints = append([]Constraint(nil), cfg.Constraints...)
	return &SGD{
		params:   params,
		cfg:      cfg,
		velocity: make(map[*tensor.Tensor]*tensor.Tensor),
	}
}

func (o *SGD) Step() error {
	if o.cfg.MaxGradNorm > 0 {
		ClipGradNorm(o.params, o.cfg.MaxGradNorm, o.cfg.GradNormType)
	}
	if o.cfg.GradValueClip > 0 {
		ClipGradValue(o.params, o.cfg.GradValueClip)
	}
	for _, p := range o.params {
		if p == nil {
			continue
		}
		update := p.Grad()
		if update == nil {
			continue
		}
		if o.cfg.WeightDecay > 0 {
			if err := update.AddScaled(p, o.cfg.WeightDecay); err != nil {
				return err
			}
		}
		if o.cfg.Momentum > 0 {
			v := o.velocity[p]
			if v == nil {
				v = tensor.Zeros(update.Shape()...)
				o.velocity[p] = v
			}
			v.Scale(o.cfg.Momentum)
			if err := v.AddScaled(update, 1); err != nil {
				return err
			}
			if o.cfg.Nesterov {
				if err := update.AddScaled(v, o.cfg.Momentum); err != nil {
					return err
				}
			} else {
				update = v.Clone()
			}
		}
		if err := p.AddScaled(update, -o.cfg.LR); err != nil {
			return err
		}
		for _, c := range o.cfg.Constraints {
			if err := c.Apply(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddConstraint appends a constraint applied to every parameter after each
// update.
func (o *SGD) AddConstraint(c Constraint) {
	o.cfg.Constraints = append(o.cfg.Constraints, c)
}

func (o *SGD) ZeroGrad() {
	zeroGrads(o.params)
}
