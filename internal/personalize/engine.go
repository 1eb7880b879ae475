// Package personalize maintains the per-user adaptation profile: how much to
// trust the learned predictor and where the alerting thresholds sit.
package personalize

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"
	"vigil/internal/database"
	"vigil/internal/logging"
	"vigil/pkg/vector"
)

const (
	profileBucket = "personalize:profile"
	profileKey    = "profile"

	feedbackCap     = 100
	progressionBins = 8

	productivityAlpha = 0.2
	progressionAlpha  = 0.3
	thresholdAlpha    = 0.1

	// base thresholds; a uniform shift keeps the 30/20 gaps between them.
	baseLow      = 30.0
	baseModerate = 60.0
	baseHigh     = 80.0

	maxThresholdShift = 10.0
)

// Thresholds are the adaptive score levels used to label severity.
type Thresholds struct {
	Low      float64 `json:"low"`
	Moderate float64 `json:"moderate"`
	High     float64 `json:"high"`
}

func defaultThresholds() Thresholds {
	return Thresholds{Low: baseLow, Moderate: baseModerate, High: baseHigh}
}

// Feedback is one user reaction to an alert or score.
type Feedback struct {
	At        time.Time `json:"at"`
	Score     float64   `json:"score"`
	Positive  bool      `json:"positive"`
	Dismissed bool      `json:"dismissed"`
}

// SessionSummary describes a finished work session for profile adaptation.
type SessionSummary struct {
	StartHour    int     `json:"startHour"`
	Productivity float64 `json:"productivity"`
}

// Profile is the persisted per-user document.
type Profile struct {
	Sessions           int             `json:"sessions"`
	HourlyProductivity map[int]float64 `json:"hourlyProductivity"`
	Progression        []float64       `json:"progression"`
	Thresholds         Thresholds      `json:"thresholds"`
	Feedback           []Feedback      `json:"feedback"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Engine owns the profile. Not safe for concurrent use; the session manager
// serializes access.
type Engine struct {
	sDB     *database.DB
	profile Profile
}

// New loads the stored profile, or starts a fresh one if none exists.
func New(ctx context.Context, db *database.DB) (*Engine, error) {
	if err := db.EnsureBuckets(profileBucket); err != nil {
		return nil, fmt.Errorf("creating profile bucket: %w", err)
	}

	e := &Engine{sDB: db}
	if err := e.load(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// MLWeight maps accumulated sessions to trust in the learned predictor.
func (e *Engine) MLWeight() float64 {
	switch s := e.profile.Sessions; {
	case s < 5:
		return 0.0
	case s < 10:
		return 0.3
	case s < 20:
		return 0.6
	default:
		return 0.85
	}
}

func (e *Engine) Sessions() int {
	return e.profile.Sessions
}

func (e *Engine) AdaptiveThresholds() Thresholds {
	return e.profile.Thresholds
}

// PersonalizationScore reports how established the profile is, saturating at
// 50 sessions.
func (e *Engine) PersonalizationScore() float64 {
	return math.Min(float64(e.profile.Sessions)/50, 1)
}

// ProductivityForecast returns the learned productivity for an hour of day,
// 0.5 when that hour has never been seen.
func (e *Engine) ProductivityForecast(hour int) float64 {
	if p, ok := e.profile.HourlyProductivity[hour]; ok {
		return p
	}
	return 0.5
}

// UpdateProfile folds a finished session into the profile and persists it.
func (e *Engine) UpdateProfile(ctx context.Context, summary SessionSummary, fatigueValues []float64) error {
	p := &e.profile
	p.Sessions++

	prev, ok := p.HourlyProductivity[summary.StartHour]
	if !ok {
		prev = 0.5
	}
	p.HourlyProductivity[summary.StartHour] = (1-productivityAlpha)*prev + productivityAlpha*summary.Productivity

	if len(fatigueValues) > 0 {
		p.Progression = blendProgression(p.Progression, binProgression(fatigueValues))
		e.adaptThresholds(fatigueValues)
	}

	p.UpdatedAt = time.Now()
	if err := e.save(); err != nil {
		return err
	}

	logging.FromContext(ctx).Infof("profile updated, %d sessions, ml weight %.2f", p.Sessions, e.MLWeight())
	return nil
}

// adaptThresholds shifts all three base thresholds by the same clamped amount
// and blends toward the shifted targets. The uniform shift preserves both the
// threshold ordering and the fixed gaps between them.
func (e *Engine) adaptThresholds(fatigueValues []float64) {
	mean := vector.New(fatigueValues).Mean()
	shift := (mean - 40) * 0.2
	if shift > maxThresholdShift {
		shift = maxThresholdShift
	}
	if shift < -maxThresholdShift {
		shift = -maxThresholdShift
	}

	t := &e.profile.Thresholds
	t.Low = blend(t.Low, baseLow+shift)
	t.Moderate = blend(t.Moderate, baseModerate+shift)
	t.High = blend(t.High, baseHigh+shift)
}

func blend(current, target float64) float64 {
	return (1-thresholdAlpha)*current + thresholdAlpha*target
}

// binProgression splits a session's chronological fatigue sequence into at
// most eight bin means.
func binProgression(values []float64) []float64 {
	bins := progressionBins
	if len(values) < bins {
		bins = len(values)
	}
	size := len(values) / bins

	out := make([]float64, 0, bins)
	for i := 0; i < bins; i++ {
		lo := i * size
		hi := lo + size
		if i == bins-1 {
			hi = len(values)
		}
		out = append(out, vector.New(values[lo:hi]).Mean())
	}
	return out
}

func blendProgression(prev, next []float64) []float64 {
	if len(prev) != len(next) {
		return next
	}
	out := make([]float64, len(next))
	for i := range next {
		out[i] = (1-progressionAlpha)*prev[i] + progressionAlpha*next[i]
	}
	return out
}

// RecordFeedback appends to the bounded feedback ring and persists.
func (e *Engine) RecordFeedback(ctx context.Context, fb Feedback) error {
	e.profile.Feedback = append(e.profile.Feedback, fb)
	if len(e.profile.Feedback) > feedbackCap {
		e.profile.Feedback = e.profile.Feedback[len(e.profile.Feedback)-feedbackCap:]
	}
	e.profile.UpdatedAt = time.Now()
	return e.save()
}

// FeedbackSummary reports the positive ratio and alert dismissal rate over
// the retained feedback.
func (e *Engine) FeedbackSummary() map[string]float64 {
	out := map[string]float64{
		"entries":              float64(len(e.profile.Feedback)),
		"positive_ratio":       0,
		"alert_dismissal_rate": 0,
	}
	if len(e.profile.Feedback) == 0 {
		return out
	}

	var positive, dismissed int
	for _, fb := range e.profile.Feedback {
		if fb.Positive {
			positive++
		}
		if fb.Dismissed {
			dismissed++
		}
	}
	n := float64(len(e.profile.Feedback))
	out["positive_ratio"] = float64(positive) / n
	out["alert_dismissal_rate"] = float64(dismissed) / n
	return out
}

// ShouldAdjustSensitivity suggests a threshold direction from recent
// feedback: frequent dismissals mean alerts fire too eagerly, a strongly
// positive ratio means they can fire earlier. Needs at least 10 entries.
func (e *Engine) ShouldAdjustSensitivity() (direction int, ok bool) {
	if len(e.profile.Feedback) < 10 {
		return 0, false
	}
	summary := e.FeedbackSummary()
	switch {
	case summary["alert_dismissal_rate"] > 0.5:
		return 1, true // raise thresholds, fewer alerts
	case summary["positive_ratio"] > 0.8:
		return -1, true
	default:
		return 0, false
	}
}

// Stats summarizes the profile for diagnostics endpoints.
func (e *Engine) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sessions":              e.profile.Sessions,
		"ml_weight":             e.MLWeight(),
		"personalization_score": e.PersonalizationScore(),
		"thresholds":            e.profile.Thresholds,
		"progression":           e.profile.Progression,
		"feedback":              e.FeedbackSummary(),
		"updated_at":            e.profile.UpdatedAt,
	}
}

// Reset discards the profile and persists the fresh state.
func (e *Engine) Reset(ctx context.Context) error {
	e.profile = freshProfile()
	if err := e.save(); err != nil {
		return err
	}
	logging.FromContext(ctx).Infof("personalization profile reset")
	return nil
}

func freshProfile() Profile {
	return Profile{
		HourlyProductivity: map[int]float64{},
		Thresholds:         defaultThresholds(),
		CreatedAt:          time.Now(),
	}
}

func (e *Engine) load(ctx context.Context) error {
	var raw []byte
	err := e.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(profileBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(profileKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("view transaction error: %w", err)
	}

	if raw == nil {
		e.profile = freshProfile()
		return nil
	}

	if err := json.Unmarshal(raw, &e.profile); err != nil {
		logging.FromContext(ctx).Errorf("corrupt profile, starting fresh: %v", err)
		e.profile = freshProfile()
		return nil
	}
	if e.profile.HourlyProductivity == nil {
		e.profile.HourlyProductivity = map[int]float64{}
	}
	return nil
}

func (e *Engine) save() error {
	raw, err := json.Marshal(e.profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := e.sDB.DB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(profileBucket)).Put([]byte(profileKey), raw)
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}
