package regressor

import (
	"fmt"
	"math"

	"vigil/pkg/vector"
)

// Scaler centers and scales features to unit variance. It is fitted over a
// sample set and then applied sample by sample; constant columns pass through
// unscaled.
type Scaler struct {
	Mean   []float64 `json:"mean"`
	Std    []float64 `json:"std"`
	Fitted bool      `json:"fitted"`
}

func NewScaler() *Scaler {
	return &Scaler{}
}

// Fit recomputes per-column means and standard deviations over the samples.
// All samples must share one dimensionality.
func (s *Scaler) Fit(samples []vector.V) error {
	if len(samples) == 0 {
		return fmt.Errorf("scaler: no samples to fit")
	}

	dim := samples[0].Dimensions()
	for i := range samples {
		if samples[i].Dimensions() != dim {
			return fmt.Errorf("scaler: sample %d has %d dims, expected %d", i, samples[i].Dimensions(), dim)
		}
	}

	mean := make([]float64, dim)
	for _, sample := range samples {
		for j := range mean {
			mean[j] += sample[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(len(samples))
	}

	std := make([]float64, dim)
	for _, sample := range samples {
		for j := range std {
			d := sample[j] - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(len(samples)))
		if std[j] == 0 {
			std[j] = 1
		}
	}

	s.Mean = mean
	s.Std = std
	s.Fitted = true
	return nil
}

// Transform returns the standardized copy of x.
func (s *Scaler) Transform(x vector.V) (vector.V, error) {
	if !s.Fitted {
		return nil, fmt.Errorf("scaler: not fitted")
	}
	if x.Dimensions() != len(s.Mean) {
		return nil, fmt.Errorf("scaler: vector has %d dims, expected %d", x.Dimensions(), len(s.Mean))
	}

	out := make(vector.V, len(x))
	for i := range x {
		out[i] = (x[i] - s.Mean[i]) / s.Std[i]
	}
	return out, nil
}

// Dim reports the fitted dimensionality, 0 before the first fit.
func (s *Scaler) Dim() int {
	return len(s.Mean)
}
