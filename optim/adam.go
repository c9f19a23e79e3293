package optim

import (
	"math"

	"github.com/fumitoshi0524/ixeorinorm/tensor"
)

type Adam struct {
	params []*tensor.Tensor
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	m      map[*tensor.Tensor]*tensor.Tensor
	v      map[*tensor.Tensor]*tensor.Tensor
	step   int
}

func NewAdam(params []*tensor.Tensor, lr, beta1, beta2, eps float64) *Adam {
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    eps,
		m:      map[*tensor.Tensor]*tensor.Tensor{},
		v:      map[*tensor.Tensor]*tensor.Tensor{},
	}
}

func (o *Adam) Step() error {
	o.step++
	corr1 := 1 - math.Pow(o.beta1, float64(o.step))
	corr2 := 1 - math.Pow(o.beta2, float64(o.step))
	for _, p := range o.params {
		if p == nil {
			continue
		}
		grad := p.Grad()
		if grad == nil {
			continue
		}
		m := o.m[p]
		if m == nil {
			m = tensor.Zeros(grad.Shape()...)
			o.m[p] = m
		}
		v := o.v[p]
		if v == nil {
			v = tensor.Zeros(grad.Shape()...)
			o.v[p] = v
		}
		m.Scale(o.beta1)
		if err := m.AddScaled(grad, 1-o.beta1); err != nil {
			return err
		}
		squared := grad.Clone()
		if err := squared.MulInPlace(grad); err != nil {
			return err
		}
		v.Scale(o.beta2)
		if err := v.AddScaled(squared, 1-o.beta2); err != nil {
			return err
		}
		// update = (m / corr1) / (sqrt(v / corr2) + eps)
		denom := tensor.AddScalar(tensor.Sqrt(tensor.MulScalar(v, 1/corr2)), o.eps)
		update, err := tensor.Div(tensor.MulScalar(m, 1/corr1), denom)
		if err != nil {
			return err
		}
		if err := p.AddScaled(update, -o.lr); err != nil {
			return err
		}
	}
	return nil
}

func (o *Adam) ZeroGrad() {
	zeroGrads(o.params)
}
