package dataset

import (
	"fmt"
	"math"

	"github.com/valyala/fastrand"
	"vigil/internal/feature"
	"vigil/pkg/vector"
)

// Dimensions is the trained vector arity: the live feature vector plus seven
// psychometric values.
const Dimensions = feature.Dimensions + 7

// FeatureNames returns the 35 names in preprocessing order.
func FeatureNames() []string {
	return append(feature.FeatureNames(),
		"mental_demand",
		"physical_demand",
		"temporal_demand",
		"performance",
		"effort",
		"frustration",
		"overall_workload",
	)
}

// Preprocessor maps assessment records onto training vectors. All randomness
// comes from the seeded generator, so a given seed reproduces the same set.
type Preprocessor struct {
	rng fastrand.RNG
}

func NewPreprocessor(seed uint32) *Preprocessor {
	p := &Preprocessor{}
	p.rng.Seed(seed)
	return p
}

// Process converts every record into a feature vector and target score.
func (p *Preprocessor) Process(ds *Dataset) ([]vector.V, []float64, error) {
	xs := make([]vector.V, 0, len(ds.Records))
	ys := make([]float64, 0, len(ds.Records))

	for _, rec := range ds.Records {
		var x vector.V
		switch ds.Assessment {
		case NASATLX:
			x = append(p.synthesizeNASATLX(rec), psychometricNASATLX(rec)...)
		case CFQ:
			x = append(p.synthesizeCFQ(rec), psychometricCFQ(rec)...)
		default:
			return nil, nil, fmt.Errorf("unsupported assessment: %s", ds.Assessment)
		}
		xs = append(xs, x)
		ys = append(ys, rec.FatigueScore)
	}
	return xs, ys, nil
}

// synthesizeNASATLX maps the six workload dimensions onto the live activity
// feature layout. Mental demand drives typing, temporal demand session
// length, poor performance the decline signals.
func (p *Preprocessor) synthesizeNASATLX(rec Record) vector.V {
	mental := rec.MentalDemand / 100
	physical := rec.PhysicalDemand / 100
	temporal := rec.TemporalDemand / 100
	performance := rec.Performance / 100
	effort := rec.Effort / 100
	frustration := rec.Frustration / 100

	rate1 := 10 + mental*20
	rate5 := rate1 * (0.9 + p.uniform(-0.1, 0.1))
	rate15 := rate5 * (0.85 + p.uniform(-0.1, 0.1))
	keyboard := mental * 15
	mouse := (mental*0.5 + physical*0.5) * 10
	variance := frustration * 5
	trend := -(1 - performance) * 0.5
	decline := effort*0.7 - performance*0.3

	blink := clampRange(15-(mental+temporal)*7, 5, 20)
	blinkAvg := blink * (0.95 + p.uniform(-0.05, 0.05))
	blinkVar := frustration * 2
	blinkTrend := -(mental + temporal) * 0.3
	strain := (mental + temporal + effort) / 3 * 25
	blinkDecline := (mental + temporal) / 2 * 0.5

	// assessments carry no wall clock; default to a mid-week afternoon
	angle := 2 * math.Pi * 14 / 24

	return vector.V{
		rate1, rate5, rate15, keyboard, mouse, variance, trend, decline,
		blink, blinkAvg, blinkVar, blinkTrend, strain, blinkDecline,
		math.Sin(angle), math.Cos(angle), 2, 0, 1, temporal * 0.8,
		30 + temporal*90, effort * 60, (1 - temporal) * 5,
		0, 0, 0, 0, 0,
	}
}

// synthesizeCFQ estimates the same layout from fatigue scores alone: higher
// fatigue, lower activity and blink rate.
func (p *Preprocessor) synthesizeCFQ(rec Record) vector.V {
	norm := rec.CFQNormalized / 100

	rate1 := 25 - norm*15
	rate5 := rate1 * 0.95
	rate15 := rate5 * 0.9
	keyboard := (1 - rec.PsychologicalFatigue/12) * 15
	mouse := (1 - rec.PhysicalFatigue/21) * 10

	blink := clampRange(15-rec.PsychologicalFatigue/12*7, 5, 20)

	return vector.V{
		rate1, rate5, rate15, keyboard, mouse, norm * 3, -norm * 0.5, norm * 0.7,
		blink, blink * 0.98, norm * 2, -norm * 0.3, rec.PsychologicalFatigue / 12 * 25, norm * 0.5,
		0, 1, 2, 0, 1, norm * 0.8,
		60 + norm*60, norm * 50, (1 - norm) * 4,
		0, 0, 0, 0, 0,
	}
}

func psychometricNASATLX(rec Record) vector.V {
	return vector.V{
		rec.MentalDemand,
		rec.PhysicalDemand,
		rec.TemporalDemand,
		rec.Performance,
		rec.Effort,
		rec.Frustration,
		rec.Workload,
	}
}

// psychometricCFQ fills the same seven slots from CFQ data, normalized to a
// 0-100 scale; the two unused slots stay zero.
func psychometricCFQ(rec Record) vector.V {
	return vector.V{
		rec.PhysicalFatigue * 100 / 21,
		rec.PsychologicalFatigue * 100 / 12,
		rec.CFQNormalized,
		rec.FatigueRatio * 10,
		0,
		0,
		rec.CFQNormalized,
	}
}

// Balance equalizes the target distribution over score bins by sampling the
// smallest bin's count from every bin. Returns the input unchanged when a bin
// is empty.
func (p *Preprocessor) Balance(xs []vector.V, ys []float64, bins int) ([]vector.V, []float64) {
	if bins < 1 || len(xs) == 0 {
		return xs, ys
	}

	width := 100.0 / float64(bins)
	grouped := make([][]int, bins)
	for i, y := range ys {
		b := int(y / width)
		if b >= bins {
			continue // scores at the upper edge fall outside the balanced range
		}
		grouped[b] = append(grouped[b], i)
	}

	minCount := -1
	for _, g := range grouped {
		if minCount == -1 || len(g) < minCount {
			minCount = len(g)
		}
	}
	if minCount <= 0 {
		return xs, ys
	}

	var outX []vector.V
	var outY []float64
	for _, g := range grouped {
		p.shuffle(g)
		for _, idx := range g[:minCount] {
			outX = append(outX, xs[idx])
			outY = append(outY, ys[idx])
		}
	}
	return outX, outY
}

// AddNoise perturbs each value proportionally to its magnitude.
func (p *Preprocessor) AddNoise(xs []vector.V, level float64) []vector.V {
	out := make([]vector.V, len(xs))
	for i, x := range xs {
		noisy := x.Copy()
		for j := range noisy {
			noisy[j] += p.uniform(-level, level) * math.Abs(noisy[j])
		}
		out[i] = noisy
	}
	return out
}

func (p *Preprocessor) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*float64(p.rng.Uint32())/float64(math.MaxUint32)
}

func (p *Preprocessor) shuffle(idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := int(p.rng.Uint32n(uint32(i + 1)))
		idx[i], idx[j] = idx[j], idx[i]
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
