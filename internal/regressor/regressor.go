// Package regressor holds the online linear models combined by the ensemble.
package regressor

import (
	"fmt"

	"vigil/pkg/vector"
)

type Kind string

const (
	KindSGD Kind = "sgd"
	KindPA  Kind = "pa"
)

// DefaultKinds is the closed member list of the ensemble, in fixed order.
func DefaultKinds() []Kind {
	return []Kind{KindSGD, KindPA}
}

// Online is an incrementally trainable linear regressor.
// Callers must serialize PartialFit calls; updates are order dependent.
type Online interface {
	Kind() Kind
	// PartialFit applies one gradient step for a single observation.
	PartialFit(x vector.V, y float64)
	Predict(x vector.V) float64
	// Coef returns the learned weights, excluding the intercept.
	Coef() vector.V
	State() State
}

// State is the serializable snapshot of a single member.
type State struct {
	Kind      Kind      `json:"kind"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Steps     uint64    `json:"steps"`
}

// New returns a fresh member of the given kind sized for dim features.
func New(kind Kind, dim int) (Online, error) {
	switch kind {
	case KindSGD:
		return newSGD(dim), nil
	case KindPA:
		return newPA(dim), nil
	default:
		return nil, fmt.Errorf("unknown regressor kind %q", kind)
	}
}

// Restore rebuilds a member from its serialized state.
func Restore(state State) (Online, error) {
	switch state.Kind {
	case KindSGD:
		r := newSGD(len(state.Weights))
		r.w = vector.New(state.Weights).Copy()
		r.b = state.Intercept
		r.t = state.Steps
		return r, nil
	case KindPA:
		r := newPA(len(state.Weights))
		r.w = vector.New(state.Weights).Copy()
		r.b = state.Intercept
		r.t = state.Steps
		return r, nil
	default:
		return nil, fmt.Errorf("unknown regressor kind %q", state.Kind)
	}
}
