package regressor

import (
	"math"
	"testing"

	"vigil/pkg/vector"
)

func TestSGDConverges(t *testing.T) {
	// y = 2*x0 + 1, standardized inputs
	r := newSGD(1)
	xs := []vector.V{{-1.5}, {-0.5}, {0.5}, {1.5}}
	ys := []float64{-2, 0, 2, 4}

	for epoch := 0; epoch < 500; epoch++ {
		for i := range xs {
			r.PartialFit(xs[i], ys[i])
		}
	}

	got := r.Predict(vector.V{1.0})
	if math.Abs(got-3.0) > 0.5 {
		t.Errorf("prediction after training got: %v, expected close to: %v", got, 3.0)
	}
}

func TestPANoUpdateInsideEpsilon(t *testing.T) {
	r := newPA(2)
	r.w = vector.V{1, 1}
	r.b = 0

	before := r.Coef()
	// prediction 2.0, target within the epsilon tube
	r.PartialFit(vector.V{1, 1}, 2.05)

	if !r.Coef().Equal(before) {
		t.Errorf("weights changed inside the epsilon tube: %v -> %v", before, r.Coef())
	}
}

func TestPAUpdateDirection(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		upward bool
	}{
		{name: "target_above", target: 5, upward: true},
		{name: "target_below", target: -5, upward: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := newPA(1)
			before := r.Predict(vector.V{1})
			r.PartialFit(vector.V{1}, test.target)
			after := r.Predict(vector.V{1})

			if test.upward && after <= before {
				t.Errorf("expected prediction to move up, got %v -> %v", before, after)
			}
			if !test.upward && after >= before {
				t.Errorf("expected prediction to move down, got %v -> %v", before, after)
			}
		})
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	for _, kind := range DefaultKinds() {
		t.Run(string(kind), func(t *testing.T) {
			r, err := New(kind, 3)
			if err != nil {
				t.Fatalf("creating regressor: %v", err)
			}
			for i := 0; i < 30; i++ {
				r.PartialFit(vector.V{float64(i % 3), 1, -1}, float64(i%7)*10)
			}

			restored, err := Restore(r.State())
			if err != nil {
				t.Fatalf("restoring regressor: %v", err)
			}

			probe := vector.V{0.3, -1.2, 2.5}
			if got, want := restored.Predict(probe), r.Predict(probe); got != want {
				t.Errorf("restored prediction got: %v, expected: %v", got, want)
			}
		})
	}
}

func TestScaler(t *testing.T) {
	s := NewScaler()
	samples := []vector.V{{0, 5}, {2, 5}, {4, 5}}
	if err := s.Fit(samples); err != nil {
		t.Fatalf("fitting scaler: %v", err)
	}

	out, err := s.Transform(vector.V{2, 5})
	if err != nil {
		t.Fatalf("transforming: %v", err)
	}
	if math.Abs(out[0]) > 1e-9 {
		t.Errorf("centered column got: %v, expected: 0", out[0])
	}
	// constant column passes through centered but unscaled
	if math.Abs(out[1]) > 1e-9 {
		t.Errorf("constant column got: %v, expected: 0", out[1])
	}

	if _, err := s.Transform(vector.V{1}); err == nil {
		t.Errorf("expected dimension mismatch error")
	}
}

func TestScalerUnfitted(t *testing.T) {
	s := NewScaler()
	if _, err := s.Transform(vector.V{1, 2}); err == nil {
		t.Errorf("expected error for unfitted scaler")
	}
}
