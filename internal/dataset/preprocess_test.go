package dataset

import (
	"math"
	"testing"

	"vigil/pkg/vector"
)

func nasaDataset() *Dataset {
	ds := &Dataset{Organization: "lab", Assessment: NASATLX, Features: "raw"}
	ds.Records = []Record{
		{ParticipantID: "p1", FatigueScore: 40, MentalDemand: 60, PhysicalDemand: 30, TemporalDemand: 50, Performance: 70, Effort: 80, Frustration: 20},
		{ParticipantID: "p2", FatigueScore: 70, MentalDemand: 90, PhysicalDemand: 10, TemporalDemand: 60, Performance: 40, Effort: 70, Frustration: 50},
	}
	for i := range ds.Records {
		derive(&ds.Records[i], ds)
	}
	return ds
}

func cfqDataset() *Dataset {
	ds := &Dataset{Organization: "clinic", Assessment: CFQ, Features: "report", Bimodal: false}
	ds.Records = []Record{
		{ParticipantID: "p1", FatigueScore: 40, PhysicalFatigue: 12, PsychologicalFatigue: 8, TotalScore: 22},
	}
	for i := range ds.Records {
		derive(&ds.Records[i], ds)
	}
	return ds
}

func TestFeatureNamesArity(t *testing.T) {
	names := FeatureNames()
	if len(names) != Dimensions {
		t.Fatalf("len(names) = %d, want %d", len(names), Dimensions)
	}
	if names[0] != "activity_rate_1min" || names[len(names)-1] != "overall_workload" {
		t.Fatalf("unexpected boundary names: %s, %s", names[0], names[len(names)-1])
	}
}

func TestProcessNASATLX(t *testing.T) {
	xs, ys, err := NewPreprocessor(1).Process(nasaDataset())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(xs) != 2 || len(ys) != 2 {
		t.Fatalf("got %d/%d examples", len(xs), len(ys))
	}
	for i, x := range xs {
		if x.Dimensions() != Dimensions {
			t.Fatalf("example %d: dims = %d, want %d", i, x.Dimensions(), Dimensions)
		}
	}
	if ys[0] != 40 || ys[1] != 70 {
		t.Fatalf("targets = %v", ys)
	}

	// first record: rate 10 + 0.6*20, blink 15 - (0.6+0.5)*7
	if got := xs[0].Point(0); math.Abs(got-22) > 1e-9 {
		t.Fatalf("activity_rate_1min = %f, want 22", got)
	}
	if got := xs[0].Point(8); math.Abs(got-7.3) > 1e-9 {
		t.Fatalf("blink_rate = %f, want 7.3", got)
	}
	// psychometric slots carry the raw assessment values
	if got := xs[0].Point(28); got != 60 {
		t.Fatalf("mental_demand slot = %f, want 60", got)
	}
	if got := xs[0].Point(34); math.Abs(got-(60.0+30+50+70+80+20)/6) > 1e-9 {
		t.Fatalf("workload slot = %f", got)
	}
}

func TestProcessCFQ(t *testing.T) {
	xs, _, err := NewPreprocessor(1).Process(cfqDataset())
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	x := xs[0]
	if x.Dimensions() != Dimensions {
		t.Fatalf("dims = %d, want %d", x.Dimensions(), Dimensions)
	}
	norm := 22.0 / 33 * 100 / 100
	if got := x.Point(0); math.Abs(got-(25-norm*15)) > 1e-9 {
		t.Fatalf("activity_rate_1min = %f", got)
	}
	if got := x.Point(15); got != 1 {
		t.Fatalf("hour_cos = %f, want 1", got)
	}
	if got := x.Point(30); math.Abs(got-norm*100) > 1e-9 {
		t.Fatalf("cfq_normalized slot = %f", got)
	}
	if got := x.Point(32); got != 0 {
		t.Fatalf("padding slot = %f, want 0", got)
	}
}

func TestProcessDeterministic(t *testing.T) {
	ds := nasaDataset()

	a, _, err := NewPreprocessor(7).Process(ds)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	b, _, err := NewPreprocessor(7).Process(ds)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("example %d differs across runs with the same seed", i)
		}
	}

	c, _, err := NewPreprocessor(8).Process(ds)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if a[0].Equal(c[0]) {
		t.Fatal("different seeds produced identical jitter")
	}
}

func TestBalance(t *testing.T) {
	var xs []vector.V
	var ys []float64
	add := func(score float64, n int) {
		for i := 0; i < n; i++ {
			xs = append(xs, vector.V{score})
			ys = append(ys, score)
		}
	}
	add(10, 8)
	add(30, 3)
	add(50, 6)
	add(70, 5)
	add(90, 9)

	outX, outY := NewPreprocessor(3).Balance(xs, ys, 5)
	if len(outX) != 15 || len(outY) != 15 {
		t.Fatalf("balanced size = %d, want 15", len(outX))
	}
	counts := make(map[float64]int)
	for _, y := range outY {
		counts[y]++
	}
	for score, n := range counts {
		if n != 3 {
			t.Fatalf("bin for score %f has %d samples, want 3", score, n)
		}
	}
}

func TestBalanceSkipsWhenBinEmpty(t *testing.T) {
	xs := []vector.V{{10}, {12}, {90}}
	ys := []float64{10, 12, 90}

	outX, outY := NewPreprocessor(3).Balance(xs, ys, 5)
	if len(outX) != len(xs) || len(outY) != len(ys) {
		t.Fatal("balancing should be skipped when a bin is empty")
	}
}

func TestAddNoise(t *testing.T) {
	xs := []vector.V{{10, -4, 0}}

	p := NewPreprocessor(5)
	quiet := p.AddNoise(xs, 0)
	if !quiet[0].Equal(xs[0]) {
		t.Fatalf("zero noise level changed the vector: %v", quiet[0])
	}

	noisy := p.AddNoise(xs, 0.1)
	if noisy[0].Equal(xs[0]) {
		t.Fatal("noise level 0.1 left the vector unchanged")
	}
	if noisy[0].Point(2) != 0 {
		t.Fatalf("zero value gained noise: %f", noisy[0].Point(2))
	}
	if math.Abs(noisy[0].Point(0)-10) > 1 || math.Abs(noisy[0].Point(1)+4) > 0.4 {
		t.Fatalf("noise out of bounds: %v", noisy[0])
	}
	if xs[0].Point(0) != 10 {
		t.Fatal("input mutated")
	}
}
