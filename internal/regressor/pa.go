package regressor

import (
	"math"

	"vigil/pkg/vector"
)

// pa hyperparameters: PA-I regression with an epsilon-insensitive loss.
const (
	paC       = 1.0
	paEpsilon = 0.1
)

func newPA(dim int) *pa {
	return &pa{w: vector.Zeros(dim)}
}

type pa struct {
	w vector.V
	b float64
	t uint64
}

func (p *pa) Kind() Kind {
	return KindPA
}

func (p *pa) Predict(x vector.V) float64 {
	return p.w.Dot(x) + p.b
}

// PartialFit applies one passive-aggressive update. Losses inside the
// epsilon tube leave the model untouched.
func (p *pa) PartialFit(x vector.V, y float64) {
	p.t++

	diff := y - p.Predict(x)
	loss := math.Abs(diff) - paEpsilon
	if loss <= 0 {
		return
	}

	// +1 accounts for the implicit intercept feature.
	norm := x.Dot(x) + 1
	tau := math.Min(paC, loss/norm)
	step := math.Copysign(tau, diff)

	for i := range p.w {
		p.w[i] += step * x[i]
	}
	p.b += step
}

func (p *pa) Coef() vector.V {
	return p.w.Copy()
}

func (p *pa) State() State {
	return State{Kind: KindPA, Weights: p.w.Copy(), Intercept: p.b, Steps: p.t}
}
