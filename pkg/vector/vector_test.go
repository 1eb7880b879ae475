package vector

import (
	"math"
	"testing"
)

func TestStats(t *testing.T) {
	tests := []struct {
		name         string
		vec          V
		expectedMean float64
		expectedStd  float64
	}{
		{name: "empty", vec: V{}, expectedMean: 0, expectedStd: 0},
		{name: "single", vec: V{4}, expectedMean: 4, expectedStd: 0},
		{name: "uniform", vec: V{2, 2, 2, 2}, expectedMean: 2, expectedStd: 0},
		{name: "spread", vec: V{2, 4, 4, 4, 5, 5, 7, 9}, expectedMean: 5, expectedStd: 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.vec.Mean(); math.Abs(got-test.expectedMean) > 1e-9 {
				t.Errorf("calling the Mean method, got: %v, expected: %v", got, test.expectedMean)
			}
			if got := test.vec.Std(); math.Abs(got-test.expectedStd) > 1e-9 {
				t.Errorf("calling the Std method, got: %v, expected: %v", got, test.expectedStd)
			}
		})
	}
}

func TestPad(t *testing.T) {
	tests := []struct {
		name     string
		vec      V
		n        int
		expected V
	}{
		{name: "extend", vec: V{1, 2}, n: 4, expected: V{1, 2, 0, 0}},
		{name: "already_long_enough", vec: V{1, 2, 3}, n: 2, expected: V{1, 2, 3}},
		{name: "exact", vec: V{1, 2}, n: 2, expected: V{1, 2}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := test.vec.Pad(test.n)
			if !got.Equal(test.expected) {
				t.Errorf("calling the Pad method, got: %v, expected: %v", got, test.expected)
			}
		})
	}
}

func TestPadCopies(t *testing.T) {
	src := V{1, 2, 3}
	got := src.Pad(2)
	got[0] = 9
	if src[0] != 1 {
		t.Errorf("Pad must not alias the source vector")
	}
}
