// Package feature turns raw activity and eye-tracking streams into the fixed
// numeric vector the predictor consumes.
package feature

import (
	"math"
	"time"

	"vigil/pkg/vector"
)

const (
	activityCap = 1000
	eyeCap      = 100
	fatigueCap  = 100

	// Dimensions is the fixed arity of every extracted vector.
	Dimensions = 28
)

// Kind labels an input activity event.
type Kind string

const (
	KindKeyboard    Kind = "keyboard"
	KindMouseClick  Kind = "mouse_click"
	KindMouseMove   Kind = "mouse_move"
	KindMouseScroll Kind = "mouse_scroll"
)

// ActivityEvent is one raw input event.
type ActivityEvent struct {
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`
}

type sample struct {
	at    time.Time
	value float64
}

// Engineer holds the rolling buffers and session baselines. Not safe for
// concurrent use; the session manager serializes access.
type Engineer struct {
	activity []ActivityEvent
	eye      []sample
	fatigue  []sample

	activityBaseline float64
	blinkBaseline    float64
	sessionStart     time.Time
}

func NewEngineer() *Engineer {
	return &Engineer{}
}

// AddActivity appends an event, evicting the oldest beyond capacity.
func (e *Engineer) AddActivity(ev ActivityEvent) {
	e.activity = append(e.activity, ev)
	if len(e.activity) > activityCap {
		e.activity = e.activity[len(e.activity)-activityCap:]
	}
}

func (e *Engineer) AddEyeSample(at time.Time, blinkRate float64) {
	e.eye = append(e.eye, sample{at: at, value: blinkRate})
	if len(e.eye) > eyeCap {
		e.eye = e.eye[len(e.eye)-eyeCap:]
	}
}

func (e *Engineer) AddFatigueSample(at time.Time, score float64) {
	e.fatigue = append(e.fatigue, sample{at: at, value: score})
	if len(e.fatigue) > fatigueCap {
		e.fatigue = e.fatigue[len(e.fatigue)-fatigueCap:]
	}
}

// ActivityRate returns events per minute over the trailing window.
func (e *Engineer) ActivityRate(now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(e.countActivity(now, window, nil)) / window.Minutes()
}

// LastBlinkRate returns the most recent recorded blink rate, 0 if none.
func (e *Engineer) LastBlinkRate() float64 {
	if len(e.eye) == 0 {
		return 0
	}
	return e.eye[len(e.eye)-1].value
}

// StartSession clears the buffers and baselines for a new work session.
func (e *Engineer) StartSession(at time.Time) {
	e.Reset()
	e.sessionStart = at
}

func (e *Engineer) Reset() {
	e.activity = nil
	e.eye = nil
	e.fatigue = nil
	e.activityBaseline = 0
	e.blinkBaseline = 0
	e.sessionStart = time.Time{}
}

// ExtractFeatures computes the 28-value vector from the current buffer state.
// Durations are minutes. The blink rate is also recorded into the eye buffer.
func (e *Engineer) ExtractFeatures(now time.Time, blinkRate, sessionDuration, timeSinceBreak float64) vector.V {
	e.AddEyeSample(now, blinkRate)

	out := make(vector.V, 0, Dimensions)
	out = append(out, e.activityFeatures(now)...)
	out = append(out, e.eyeFeatures(now, blinkRate)...)
	out = append(out, e.temporalFeatures(now, sessionDuration)...)
	out = append(out, sessionDuration, timeSinceBreak, 0) // break frequency is a stub
	out = append(out, e.historicalFeatures(now)...)
	return out
}

func (e *Engineer) activityFeatures(now time.Time) vector.V {
	if len(e.activity) == 0 {
		f := vector.Zeros(8)
		f[7] = 1.0 // decline ratio is neutral without a baseline
		return f
	}

	rate1 := float64(e.countActivity(now, time.Minute, nil))
	rate5 := float64(e.countActivity(now, 5*time.Minute, nil)) / 5
	rate15 := float64(e.countActivity(now, 15*time.Minute, nil)) / 15
	keyboard := float64(e.countActivity(now, 5*time.Minute, func(k Kind) bool { return k == KindKeyboard })) / 5
	mouse := float64(e.countActivity(now, 5*time.Minute, func(k Kind) bool { return k != KindKeyboard })) / 5

	// five trailing one-minute rates, newest first
	rates := make(vector.V, 5)
	for i := 0; i < 5; i++ {
		hi := now.Add(-time.Duration(i) * time.Minute)
		lo := hi.Add(-time.Minute)
		var n int
		for _, ev := range e.activity {
			if ev.At.After(lo) && !ev.At.After(hi) {
				n++
			}
		}
		rates[i] = float64(n)
	}
	variance := rates.Std()
	trend := rates[0] - rates[4]

	if e.activityBaseline == 0 && rate5 > 0 {
		e.activityBaseline = rate5
	}
	decline := 1.0
	if e.activityBaseline > 0 {
		decline = rate5 / e.activityBaseline
	}

	return vector.V{rate1, rate5, rate15, keyboard, mouse, variance, trend, decline}
}

func (e *Engineer) countActivity(now time.Time, window time.Duration, match func(Kind) bool) int {
	cutoff := now.Add(-window)
	var n int
	for _, ev := range e.activity {
		if !ev.At.After(cutoff) || ev.At.After(now) {
			continue
		}
		if match == nil || match(ev.Kind) {
			n++
		}
	}
	return n
}

func (e *Engineer) eyeFeatures(now time.Time, blinkRate float64) vector.V {
	window := samplesSince(e.eye, now.Add(-5*time.Minute))

	avg := blinkRate
	if len(window) > 0 {
		avg = window.Mean()
	}
	var variance, trend float64
	if len(window) > 1 {
		variance = window.Std()
		trend = window[len(window)-1] - window[0]
	}

	var strain float64
	switch {
	case blinkRate >= 15:
		strain = 0
	case blinkRate >= 10:
		strain = 0.5
	default:
		strain = 1.0
	}

	if e.blinkBaseline == 0 && blinkRate > 0 {
		e.blinkBaseline = blinkRate
	}
	decline := 1.0
	if e.blinkBaseline > 0 {
		decline = blinkRate / e.blinkBaseline
	}

	return vector.V{blinkRate, avg, variance, trend, strain, decline}
}

func (e *Engineer) temporalFeatures(now time.Time, sessionDuration float64) vector.V {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	angle := 2 * math.Pi * hour / 24

	weekday := float64(now.Weekday()) / 6
	var weekend float64
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		weekend = 1
	}

	var dayPart float64
	switch h := now.Hour(); {
	case h >= 6 && h < 12:
		dayPart = 0
	case h >= 12 && h < 18:
		dayPart = 0.33
	case h >= 18 && h < 22:
		dayPart = 0.66
	default:
		dayPart = 1.0
	}

	elapsed := sessionDuration
	if !e.sessionStart.IsZero() {
		elapsed = now.Sub(e.sessionStart).Minutes()
	}
	fraction := math.Min(elapsed/240, 1)

	return vector.V{math.Sin(angle), math.Cos(angle), weekday, weekend, dayPart, fraction}
}

func (e *Engineer) historicalFeatures(now time.Time) vector.V {
	if len(e.fatigue) == 0 {
		return vector.Zeros(5)
	}

	ago5 := e.nearestFatigue(now.Add(-5 * time.Minute))
	ago15 := e.nearestFatigue(now.Add(-15 * time.Minute))

	window := samplesSince(e.fatigue, now.Add(-time.Hour))
	var mean, trend, variance float64
	if len(window) > 0 {
		mean = window.Mean()
	}
	if len(window) > 1 {
		trend = window[len(window)-1] - window[0]
		variance = window.Std()
	}

	return vector.V{ago5, ago15, mean, trend, variance}
}

// nearestFatigue returns the value of the sample closest in time to target.
func (e *Engineer) nearestFatigue(target time.Time) float64 {
	best := e.fatigue[0]
	bestDist := absDuration(best.at.Sub(target))
	for _, s := range e.fatigue[1:] {
		if d := absDuration(s.at.Sub(target)); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best.value
}

func samplesSince(samples []sample, cutoff time.Time) vector.V {
	var out vector.V
	for _, s := range samples {
		if s.at.After(cutoff) {
			out = append(out, s.value)
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// FeatureNames returns the 28 names in extraction order.
func FeatureNames() []string {
	return []string{
		"activity_rate_1min",
		"activity_rate_5min",
		"activity_rate_15min",
		"keyboard_rate_5min",
		"mouse_rate_5min",
		"activity_variance",
		"activity_trend",
		"activity_decline_ratio",
		"blink_rate",
		"blink_avg_5min",
		"blink_variance",
		"blink_trend",
		"eye_strain",
		"blink_decline_ratio",
		"hour_sin",
		"hour_cos",
		"day_of_week",
		"is_weekend",
		"day_part",
		"session_elapsed",
		"session_duration",
		"time_since_break",
		"break_frequency",
		"fatigue_5min_ago",
		"fatigue_15min_ago",
		"fatigue_1h_mean",
		"fatigue_trend",
		"fatigue_variance",
	}
}
