// Package scoring computes the fatigue score each tick, blending a bounded
// rule heuristic with the learned predictor.
package scoring

import (
	"time"
)

// Factors is the fixed breakdown of one rule-based score.
type Factors struct {
	Time              float64 `json:"time"`
	ActivityDecline   float64 `json:"activityDecline"`
	ActivityIntensity float64 `json:"activityIntensity"`
	BreakRecency      float64 `json:"breakRecency"`
	SessionDuration   float64 `json:"sessionDuration"`
	EyeStrain         float64 `json:"eyeStrain"`
}

func (f Factors) Sum() float64 {
	return f.Time + f.ActivityDecline + f.ActivityIntensity + f.BreakRecency + f.SessionDuration + f.EyeStrain
}

// RuleEngine is the heuristic half of the scorer. The activity baseline is a
// running mean over the grace window at session start, frozen afterwards.
type RuleEngine struct {
	grace time.Duration

	baseline  float64
	baselineN int
	frozen    bool
}

func NewRuleEngine(grace time.Duration) *RuleEngine {
	return &RuleEngine{grace: grace}
}

// StartSession clears the baseline for a new calibration window.
func (r *RuleEngine) StartSession() {
	r.baseline = 0
	r.baselineN = 0
	r.frozen = false
}

func (r *RuleEngine) Baseline() float64 {
	return r.baseline
}

// InGrace reports whether the session is still inside the calibration window.
func (r *RuleEngine) InGrace(workDuration float64) bool {
	return workDuration < r.grace.Minutes()
}

// observe folds one activity rate into the running baseline while in grace,
// freezing it the first time a tick lands past the window.
func (r *RuleEngine) observe(workDuration, rate float64) {
	if r.frozen {
		return
	}
	if !r.InGrace(workDuration) {
		r.frozen = true
		return
	}
	r.baselineN++
	r.baseline += (rate - r.baseline) / float64(r.baselineN)
}

// Score computes the rule-based fatigue score and its factor breakdown.
// Durations are minutes.
func (r *RuleEngine) Score(in Input) (float64, Factors) {
	r.observe(in.WorkDuration, in.ActivityRate)

	var f Factors
	f.Time = minf(in.WorkDuration/120, 1) * 35

	if r.baseline > 0 {
		if in.ActivityRate < r.baseline {
			f.ActivityDecline = (1 - in.ActivityRate/r.baseline) * 15
		} else if in.ActivityRate > r.baseline {
			f.ActivityIntensity = minf((in.ActivityRate-r.baseline)/r.baseline, 1) * 20
		}
	}

	f.BreakRecency = minf(in.TimeSinceBreak/60, 1) * 20
	f.SessionDuration = minf(in.WorkDuration/240, 1) * 15
	f.EyeStrain = eyeStrainFactor(in.BlinkRate)

	score := f.Sum() * timeOfDayMultiplier(in.At.Hour())
	if in.OnBreak {
		score /= 2
	}
	return clamp(score, 0, 100), f
}

// eyeStrainFactor steps down as the blink rate recovers. A zero rate means
// eye tracking is disabled and contributes nothing.
func eyeStrainFactor(blinkRate float64) float64 {
	switch {
	case blinkRate <= 0:
		return 0
	case blinkRate < 5:
		return 25
	case blinkRate < 10:
		return 20
	case blinkRate < 15:
		return 10
	default:
		return 0
	}
}

func timeOfDayMultiplier(hour int) float64 {
	switch {
	case hour >= 6 && hour < 9:
		return 0.9
	case hour >= 9 && hour < 12:
		return 0.8
	case hour >= 12 && hour < 14:
		return 1.0
	case hour >= 14 && hour < 16:
		return 1.1
	case hour >= 16 && hour < 20:
		return 1.2
	default:
		return 1.3
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
