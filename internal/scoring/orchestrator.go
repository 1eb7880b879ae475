package scoring

import (
	"context"
	"time"

	"vigil/internal/ensemble"
	"vigil/internal/feature"
	"vigil/internal/personalize"
)

// Method tags which path produced a score.
type Method string

const (
	MethodRuleBased Method = "rule_based"
	MethodHybrid    Method = "hybrid"
)

// Level labels severity against the adaptive thresholds.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// minMLConfidence is the floor below which the learned score is ignored.
const minMLConfidence = 0.2

// graceCap limits the combined score during baseline calibration.
const graceCap = 25.0

// Input is one tick's observation snapshot. Durations are minutes.
type Input struct {
	At             time.Time `json:"at"`
	WorkDuration   float64   `json:"workDuration"`
	ActivityRate   float64   `json:"activityRate"`
	TimeSinceBreak float64   `json:"timeSinceBreak"`
	OnBreak        bool      `json:"onBreak"`
	BlinkRate      float64   `json:"blinkRate"`
}

// Result is the full outcome of one scoring tick.
type Result struct {
	At         time.Time `json:"at"`
	Score      float64   `json:"score"`
	Level      Level     `json:"level"`
	Method     Method    `json:"method"`
	Confidence float64   `json:"confidence"`
	RuleScore  float64   `json:"ruleScore"`
	MLScore    float64   `json:"mlScore"`
	MLWeight   float64   `json:"mlWeight"`
	Factors    Factors   `json:"factors"`
}

// Orchestrator wires the rule engine, feature engineer, ensemble and
// personalization profile into one scoring path. Not safe for concurrent
// use; the session manager serializes ticks.
type Orchestrator struct {
	rules     *RuleEngine
	engineer  *feature.Engineer
	predictor *ensemble.Ensemble
	profile   *personalize.Engine

	sessionScores []float64
}

func NewOrchestrator(rules *RuleEngine, eng *feature.Engineer, pred *ensemble.Ensemble, profile *personalize.Engine) *Orchestrator {
	return &Orchestrator{
		rules:     rules,
		engineer:  eng,
		predictor: pred,
		profile:   profile,
	}
}

// Tick scores one observation. The path fails open: any predictor failure
// degrades to the rule-based score, and the tick itself never errors.
func (o *Orchestrator) Tick(ctx context.Context, in Input) Result {
	ruleScore, factors := o.rules.Score(in)

	v := o.engineer.ExtractFeatures(in.At, in.BlinkRate, in.WorkDuration, in.TimeSinceBreak)
	mlScore, confidence := o.predictor.Predict(ctx, v)

	weight := o.profile.MLWeight()
	if confidence < minMLConfidence {
		weight = 0
	}

	final := weight*mlScore + (1-weight)*ruleScore
	method := MethodRuleBased
	if weight > 0 {
		method = MethodHybrid
	}

	if o.rules.InGrace(in.WorkDuration) && final > graceCap {
		final = graceCap
	}
	final = clamp(final, 0, 100)

	// the score feeds its own future inputs: historical features and the
	// predictor's training target
	o.engineer.AddFatigueSample(in.At, final)
	o.predictor.PartialFit(ctx, v, final)
	o.sessionScores = append(o.sessionScores, final)

	return Result{
		At:         in.At,
		Score:      final,
		Level:      o.level(final),
		Method:     method,
		Confidence: confidence,
		RuleScore:  ruleScore,
		MLScore:    mlScore,
		MLWeight:   weight,
		Factors:    factors,
	}
}

func (o *Orchestrator) level(score float64) Level {
	th := o.profile.AdaptiveThresholds()
	switch {
	case score < th.Low:
		return LevelLow
	case score < th.Moderate:
		return LevelModerate
	case score < th.High:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// StartSession resets the calibration window, the feature buffers and the
// per-session score accumulator.
func (o *Orchestrator) StartSession(at time.Time) {
	o.rules.StartSession()
	o.engineer.StartSession(at)
	o.sessionScores = nil
}

// SessionScores returns the scores accumulated since the session started.
func (o *Orchestrator) SessionScores() []float64 {
	out := make([]float64, len(o.sessionScores))
	copy(out, o.sessionScores)
	return out
}
