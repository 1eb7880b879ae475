package vector

import "math"

type V []float64

func New(vec []float64) V {
	return vec
}

func Zeros(n int) V {
	return make(V, n)
}

func (v V) Dimensions() int {
	return len(v)
}

func (v V) Point(idx int) float64 {
	return v[idx]
}

func (v V) Points() []float64 {
	return v
}

func (v V) Copy() V {
	v1 := make(V, len(v))
	copy(v1, v)
	return v1
}

func (v V) Scale(value float64) {
	for i := range v {
		v[i] *= value
	}
}

func (v V) Apply(applyFn func(float64) float64) {
	for i := range v {
		v[i] = applyFn(v[i])
	}
}

func (v V) Sum() float64 {
	var s float64
	for i := range v {
		s += v[i]
	}
	return s
}

func (v V) Mean() float64 {
	if len(v) == 0 {
		return 0
	}
	return v.Sum() / float64(len(v))
}

// Std is the population standard deviation.
func (v V) Std() float64 {
	if len(v) == 0 {
		return 0
	}
	mean := v.Mean()
	var s float64
	for i := range v {
		d := v[i] - mean
		s += d * d
	}
	return math.Sqrt(s / float64(len(v)))
}

func (v V) Dot(vec V) float64 {
	var s float64
	for i := range v {
		s += v[i] * vec[i]
	}
	return s
}

func (v V) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v V) Max() float64 {
	if len(v) == 0 {
		return 0
	}
	max := v[0]
	for i := range v {
		if v[i] > max {
			max = v[i]
		}
	}
	return max
}

func (v V) Min() float64 {
	if len(v) == 0 {
		return 0
	}
	min := v[0]
	for i := range v {
		if v[i] < min {
			min = v[i]
		}
	}
	return min
}

func (v V) SizeEqual(vec V) bool {
	return len(v) == len(vec)
}

func (v V) Equal(vec V) bool {
	if len(v) != len(vec) {
		return false
	}
	for i, value := range v {
		if vec[i] != value {
			return false
		}
	}
	return true
}

// Pad returns a copy extended with zeros up to n dimensions.
// Vectors already at least n long are returned as a plain copy.
func (v V) Pad(n int) V {
	if len(v) >= n {
		return v.Copy()
	}
	v1 := make(V, n)
	copy(v1, v)
	return v1
}
