package regressor

import (
	"math"

	"vigil/pkg/vector"
)

// sgd hyperparameters, matching the squared-loss member with L2 penalty
// and an inverse-scaling learning rate.
const (
	sgdAlpha  = 0.0001
	sgdEta0   = 0.01
	sgdPowerT = 0.25
)

func newSGD(dim int) *sgd {
	return &sgd{w: vector.Zeros(dim)}
}

type sgd struct {
	w vector.V
	b float64
	t uint64
}

func (s *sgd) Kind() Kind {
	return KindSGD
}

func (s *sgd) Predict(x vector.V) float64 {
	return s.w.Dot(x) + s.b
}

// PartialFit takes one gradient step on the squared loss for (x, y).
// The learning rate decays as eta0 / t^powerT.
func (s *sgd) PartialFit(x vector.V, y float64) {
	s.t++
	eta := sgdEta0 / math.Pow(float64(s.t), sgdPowerT)

	grad := s.Predict(x) - y
	for i := range s.w {
		s.w[i] -= eta * (grad*x[i] + sgdAlpha*s.w[i])
	}
	s.b -= eta * grad
}

func (s *sgd) Coef() vector.V {
	return s.w.Copy()
}

func (s *sgd) State() State {
	return State{Kind: KindSGD, Weights: s.w.Copy(), Intercept: s.b, Steps: s.t}
}
