package scoring

import (
	"testing"
	"time"
)

// noon sits in the 1.0 multiplier band so factor sums pass through unscaled.
var noon = time.Date(2024, 3, 12, 12, 30, 0, 0, time.UTC)

func TestRuleScoreNeutralInput(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine(5 * time.Minute)
	r.StartSession()

	score, factors := r.Score(Input{
		At:             noon,
		WorkDuration:   0,
		ActivityRate:   0,
		TimeSinceBreak: 0,
		BlinkRate:      20,
	})
	if score != 0 {
		t.Errorf("neutral score = %v, want 0", score)
	}
	if factors != (Factors{}) {
		t.Errorf("neutral factors = %+v, want all zero", factors)
	}
}

func TestEyeStrainFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		blinkRate float64
		want      float64
	}{
		{name: "disabled", blinkRate: 0, want: 0},
		{name: "severe", blinkRate: 4, want: 25},
		{name: "boundary severe", blinkRate: 5, want: 20},
		{name: "high", blinkRate: 9, want: 20},
		{name: "boundary high", blinkRate: 10, want: 10},
		{name: "mild", blinkRate: 14, want: 10},
		{name: "boundary healthy", blinkRate: 15, want: 0},
		{name: "healthy", blinkRate: 22, want: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := eyeStrainFactor(tc.blinkRate); got != tc.want {
				t.Errorf("eyeStrainFactor(%v) = %v, want %v", tc.blinkRate, got, tc.want)
			}
		})
	}
}

func TestFactorBounds(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine(5 * time.Minute)
	r.StartSession()

	// calibrate a baseline of 60; then drop to zero activity far past grace
	r.Score(Input{At: noon, WorkDuration: 1, ActivityRate: 60, BlinkRate: 20})

	score, factors := r.Score(Input{
		At:             noon,
		WorkDuration:   600,
		ActivityRate:   0,
		TimeSinceBreak: 300,
		BlinkRate:      2,
	})

	if factors.Time != 35 {
		t.Errorf("time factor = %v, want capped 35", factors.Time)
	}
	if factors.ActivityDecline != 15 {
		t.Errorf("decline factor = %v, want capped 15", factors.ActivityDecline)
	}
	if factors.BreakRecency != 20 {
		t.Errorf("break factor = %v, want capped 20", factors.BreakRecency)
	}
	if factors.SessionDuration != 15 {
		t.Errorf("session factor = %v, want capped 15", factors.SessionDuration)
	}
	if factors.EyeStrain != 25 {
		t.Errorf("eye factor = %v, want 25", factors.EyeStrain)
	}
	if score != 100 {
		t.Errorf("worst-case score = %v, want clamped 100", score)
	}
}

func TestIntensityAboveBaseline(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine(5 * time.Minute)
	r.StartSession()
	r.Score(Input{At: noon, WorkDuration: 1, ActivityRate: 50, BlinkRate: 20})

	// 1.5x the baseline, halfway to the 2x cap
	_, factors := r.Score(Input{At: noon, WorkDuration: 10, ActivityRate: 75, BlinkRate: 20})
	if factors.ActivityIntensity != 10 {
		t.Errorf("intensity factor = %v, want 10", factors.ActivityIntensity)
	}
	if factors.ActivityDecline != 0 {
		t.Errorf("decline factor = %v, want 0 above baseline", factors.ActivityDecline)
	}
}

func TestBaselineFreezesAfterGrace(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine(5 * time.Minute)
	r.StartSession()

	r.Score(Input{At: noon, WorkDuration: 1, ActivityRate: 40, BlinkRate: 20})
	r.Score(Input{At: noon, WorkDuration: 2, ActivityRate: 60, BlinkRate: 20})
	if r.Baseline() != 50 {
		t.Fatalf("running baseline = %v, want 50", r.Baseline())
	}

	// past the grace window the baseline stops moving
	r.Score(Input{At: noon, WorkDuration: 6, ActivityRate: 500, BlinkRate: 20})
	r.Score(Input{At: noon, WorkDuration: 7, ActivityRate: 500, BlinkRate: 20})
	if r.Baseline() != 50 {
		t.Errorf("frozen baseline = %v, want 50", r.Baseline())
	}
}

func TestOnBreakHalvesScore(t *testing.T) {
	t.Parallel()

	r := NewRuleEngine(5 * time.Minute)
	r.StartSession()
	working, _ := r.Score(Input{At: noon, WorkDuration: 60, ActivityRate: 0, TimeSinceBreak: 30, BlinkRate: 20})

	r2 := NewRuleEngine(5 * time.Minute)
	r2.StartSession()
	onBreak, _ := r2.Score(Input{At: noon, WorkDuration: 60, ActivityRate: 0, TimeSinceBreak: 30, BlinkRate: 20, OnBreak: true})

	if onBreak != working/2 {
		t.Errorf("on-break score = %v, want %v", onBreak, working/2)
	}
}

func TestTimeOfDayMultiplier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hour int
		want float64
	}{
		{hour: 7, want: 0.9},
		{hour: 10, want: 0.8},
		{hour: 13, want: 1.0},
		{hour: 15, want: 1.1},
		{hour: 18, want: 1.2},
		{hour: 23, want: 1.3},
		{hour: 3, want: 1.3},
	}

	for _, tc := range tests {
		if got := timeOfDayMultiplier(tc.hour); got != tc.want {
			t.Errorf("multiplier at hour %d = %v, want %v", tc.hour, got, tc.want)
		}
	}
}
