// Package ensemble combines online linear regressors into one fatigue
// predictor with buffered incremental training.
package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"vigil/internal/feature"
	"vigil/internal/logging"
	"vigil/internal/model"
	"vigil/internal/regressor"
	"vigil/pkg/vector"
)

const (
	bufferCap     = 1000
	initThreshold = 10
	weightEvery   = 20
	retrainEvery  = 100

	errorRingCap   = 100
	errorWindow    = 20
	highErrorLimit = 15.0

	// coldScore and coldConfidence are returned before initialization.
	coldScore      = 50.0
	coldConfidence = 0.0

	sufficiencySamples = 100
)

type errSample struct {
	Predicted float64 `json:"predicted"`
	Actual    float64 `json:"actual"`
}

type trainingSample struct {
	x vector.V
	y float64
}

// Ensemble is the online fatigue predictor. Not safe for concurrent use;
// the session manager serializes access.
type Ensemble struct {
	kinds   []regressor.Kind
	members []regressor.Online
	weights []float64
	scaler  *regressor.Scaler

	buffer       []trainingSample
	totalSamples int
	sinceRetrain int
	initialized  bool
	dim          int

	errors []errSample

	store *model.Store
	names []string
}

// Option configures the ensemble.
type Option func(*Ensemble)

// WithKinds overrides the member list.
func WithKinds(kinds []regressor.Kind) Option {
	return func(e *Ensemble) {
		e.kinds = kinds
	}
}

// WithFeatureNames overrides the names used for importance reporting.
func WithFeatureNames(names []string) Option {
	return func(e *Ensemble) {
		e.names = names
	}
}

// New builds an ensemble and restores any previously saved state from the
// store. A store without a saved model yields a fresh uninitialized ensemble.
func New(ctx context.Context, store *model.Store, opts ...Option) (*Ensemble, error) {
	e := &Ensemble{
		kinds: regressor.DefaultKinds(),
		store: store,
		names: feature.FeatureNames(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.kinds) == 0 {
		return nil, fmt.Errorf("ensemble: no member kinds configured")
	}

	if store != nil {
		blob, ok, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading model: %w", err)
		}
		if ok {
			if err := e.restore(blob); err != nil {
				return nil, fmt.Errorf("restoring model: %w", err)
			}
			logging.FromContext(ctx).Infof("restored model version %s, %d samples seen",
				store.CurrentVersion(), e.totalSamples)
		}
	}
	return e, nil
}

func (e *Ensemble) Initialized() bool {
	return e.initialized
}

func (e *Ensemble) TotalSamples() int {
	return e.totalSamples
}

// Predict scores a feature vector. Before initialization it returns the
// neutral midpoint with zero confidence. Internal failures degrade to the
// same neutral output rather than propagate.
func (e *Ensemble) Predict(ctx context.Context, v vector.V) (score, confidence float64) {
	if !e.initialized {
		return coldScore, coldConfidence
	}

	x, err := e.conform(v)
	if err != nil {
		logging.FromContext(ctx).Errorf("predict degraded to neutral: %v", err)
		return coldScore, coldConfidence
	}
	scaled, err := e.scaler.Transform(x)
	if err != nil {
		logging.FromContext(ctx).Errorf("predict degraded to neutral: %v", err)
		return coldScore, coldConfidence
	}

	preds := make(vector.V, len(e.members))
	for i, m := range e.members {
		preds[i] = m.Predict(scaled)
	}

	var combined, total float64
	for i, p := range preds {
		combined += e.weights[i] * p
		total += e.weights[i]
	}
	if total > 0 {
		combined /= total
	}

	agreement := 0.5
	if len(preds) > 1 {
		agreement = math.Max(0, 1-preds.Std()/50)
	}
	sufficiency := math.Min(float64(e.totalSamples)/sufficiencySamples, 1)

	return clamp(combined, 0, 100), agreement * sufficiency
}

// PartialFit feeds one labeled observation. Errors are absorbed at this
// boundary; the scoring loop keeps running on training failures.
func (e *Ensemble) PartialFit(ctx context.Context, v vector.V, target float64) {
	logger := logging.FromContext(ctx)

	x, err := e.conform(v)
	if err != nil {
		logger.Errorf("dropping training sample: %v", err)
		return
	}
	if e.dim == 0 {
		e.dim = x.Dimensions()
	}

	e.buffer = append(e.buffer, trainingSample{x: x, y: target})
	if len(e.buffer) > bufferCap {
		e.buffer = e.buffer[len(e.buffer)-bufferCap:]
	}
	e.totalSamples++
	e.sinceRetrain++

	switch {
	case !e.initialized && len(e.buffer) >= initThreshold:
		if err := e.initialize(); err != nil {
			logger.Errorf("ensemble initialization failed: %v", err)
			return
		}
		logger.Infof("ensemble initialized with %d buffered samples", len(e.buffer))
	case e.initialized:
		scaled, err := e.scaler.Transform(x)
		if err != nil {
			logger.Errorf("dropping training sample: %v", err)
			return
		}
		for _, m := range e.members {
			m.PartialFit(scaled, target)
		}
	}

	if e.initialized && e.totalSamples%weightEvery == 0 {
		e.reweigh()
	}
	if e.initialized && e.sinceRetrain >= retrainEvery {
		if err := e.retrain(ctx); err != nil {
			logger.Errorf("full retrain failed: %v", err)
		}
	}
}

// BatchTrain bulk-loads labeled samples, typically from an offline dataset,
// and forces a full retrain. Length mismatches fail closed.
func (e *Ensemble) BatchTrain(ctx context.Context, xs []vector.V, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("ensemble: %d vectors for %d targets", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return fmt.Errorf("ensemble: empty training batch")
	}

	for i := range xs {
		x, err := e.conform(xs[i])
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if e.dim == 0 {
			e.dim = x.Dimensions()
		}
		e.buffer = append(e.buffer, trainingSample{x: x, y: ys[i]})
		e.totalSamples++
	}
	if len(e.buffer) > bufferCap {
		e.buffer = e.buffer[len(e.buffer)-bufferCap:]
	}

	if !e.initialized {
		if len(e.buffer) < initThreshold {
			return nil
		}
		if err := e.initialize(); err != nil {
			return fmt.Errorf("initializing from batch: %w", err)
		}
	}
	return e.retrain(ctx)
}

// RecordError tracks prediction error against later ground truth. A sustained
// high error over the recent window forces a full retrain.
func (e *Ensemble) RecordError(ctx context.Context, predicted, actual float64) {
	e.errors = append(e.errors, errSample{Predicted: predicted, Actual: actual})
	if len(e.errors) > errorRingCap {
		e.errors = e.errors[len(e.errors)-errorRingCap:]
	}

	if !e.initialized || len(e.errors) < errorWindow {
		return
	}
	recent := e.errors[len(e.errors)-errorWindow:]
	var mae float64
	for _, s := range recent {
		mae += math.Abs(s.Predicted - s.Actual)
	}
	mae /= float64(len(recent))

	if mae > highErrorLimit {
		logger := logging.FromContext(ctx)
		logger.Infof("recent MAE %.2f above %.2f, forcing retrain", mae, highErrorLimit)
		if err := e.retrain(ctx); err != nil {
			logger.Errorf("error-triggered retrain failed: %v", err)
		}
	}
}

// conform pads short vectors with zeros up to the model dimension and rejects
// longer ones. Before the dimension is pinned the vector passes unchanged.
func (e *Ensemble) conform(v vector.V) (vector.V, error) {
	if e.dim == 0 {
		return v.Copy(), nil
	}
	if v.Dimensions() > e.dim {
		return nil, fmt.Errorf("vector has %d dims, model takes %d", v.Dimensions(), e.dim)
	}
	if v.Dimensions() < e.dim {
		return v.Pad(e.dim), nil
	}
	return v.Copy(), nil
}

func (e *Ensemble) initialize() error {
	scaler := regressor.NewScaler()
	xs := make([]vector.V, len(e.buffer))
	for i := range e.buffer {
		xs[i] = e.buffer[i].x
	}
	if err := scaler.Fit(xs); err != nil {
		return err
	}

	members := make([]regressor.Online, len(e.kinds))
	for i, kind := range e.kinds {
		m, err := regressor.New(kind, e.dim)
		if err != nil {
			return err
		}
		members[i] = m
	}
	for _, s := range e.buffer {
		scaled, err := scaler.Transform(s.x)
		if err != nil {
			return err
		}
		for _, m := range members {
			m.PartialFit(scaled, s.y)
		}
	}

	e.scaler = scaler
	e.members = members
	e.weights = equalWeights(len(members))
	e.initialized = true
	return nil
}

// retrain refits the scaler over the whole buffer and replays every buffered
// sample through fresh members, one incremental update each.
func (e *Ensemble) retrain(ctx context.Context) error {
	if !e.initialized {
		return fmt.Errorf("retrain before initialization")
	}
	if err := e.initialize(); err != nil {
		return err
	}
	e.reweigh()
	e.sinceRetrain = 0

	if e.store == nil {
		return nil
	}
	blob, err := e.snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting model: %w", err)
	}
	version, err := e.store.Save(ctx, blob, e.bufferMetrics())
	if err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	logging.FromContext(ctx).Infof("retrained, saved model version %s", version.Name)
	return nil
}

// reweigh recomputes member weights from inverse MAE over the most recently
// buffered samples.
func (e *Ensemble) reweigh() {
	window := e.buffer
	if len(window) > weightEvery {
		window = window[len(window)-weightEvery:]
	}
	if len(window) == 0 {
		return
	}

	maes := make([]float64, len(e.members))
	for _, s := range window {
		scaled, err := e.scaler.Transform(s.x)
		if err != nil {
			return
		}
		for i, m := range e.members {
			maes[i] += math.Abs(m.Predict(scaled) - s.y)
		}
	}

	var total float64
	weights := make([]float64, len(e.members))
	for i := range maes {
		weights[i] = 1 / (maes[i]/float64(len(window)) + 1e-6)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	e.weights = weights
}

// bufferMetrics evaluates the current members over the training buffer.
func (e *Ensemble) bufferMetrics() map[string]float64 {
	var absSum, sqSum, maxErr float64
	var n int
	for _, s := range e.buffer {
		scaled, err := e.scaler.Transform(s.x)
		if err != nil {
			continue
		}
		var pred, total float64
		for i, m := range e.members {
			pred += e.weights[i] * m.Predict(scaled)
			total += e.weights[i]
		}
		if total > 0 {
			pred /= total
		}
		diff := math.Abs(pred - s.y)
		absSum += diff
		sqSum += diff * diff
		if diff > maxErr {
			maxErr = diff
		}
		n++
	}
	if n == 0 {
		return nil
	}
	return map[string]float64{
		"mae":       absSum / float64(n),
		"rmse":      math.Sqrt(sqSum / float64(n)),
		"max_error": maxErr,
		"samples":   float64(e.totalSamples),
	}
}

// PerfMetrics summarizes recorded prediction errors.
func (e *Ensemble) PerfMetrics() map[string]float64 {
	out := map[string]float64{
		"samples":     float64(e.totalSamples),
		"initialized": 0,
	}
	if e.initialized {
		out["initialized"] = 1
	}
	if len(e.errors) == 0 {
		return out
	}

	var absSum, sqSum, maxErr float64
	for _, s := range e.errors {
		diff := math.Abs(s.Predicted - s.Actual)
		absSum += diff
		sqSum += diff * diff
		if diff > maxErr {
			maxErr = diff
		}
	}
	n := float64(len(e.errors))
	out["mae"] = absSum / n
	out["rmse"] = math.Sqrt(sqSum / n)
	out["max_error"] = maxErr
	return out
}

// FeatureImportance reports normalized absolute coefficients of the first
// gradient-descent member, keyed by feature name.
func (e *Ensemble) FeatureImportance() map[string]float64 {
	if !e.initialized {
		return nil
	}

	var coef vector.V
	for _, m := range e.members {
		if m.Kind() == regressor.KindSGD {
			coef = m.Coef()
			break
		}
	}
	if coef == nil {
		coef = e.members[0].Coef()
	}

	abs := coef.Copy()
	abs.Apply(math.Abs)
	total := abs.Sum()
	if total == 0 {
		total = 1
	}

	out := make(map[string]float64, len(abs))
	for i, w := range abs {
		out[e.featureName(i)] = w / total
	}
	return out
}

// FeatureRank is one entry of a sorted importance report.
type FeatureRank struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// TopFeatures returns the n most influential features, heaviest first.
func (e *Ensemble) TopFeatures(n int) []FeatureRank {
	importance := e.FeatureImportance()
	if importance == nil {
		return nil
	}

	ranks := make([]FeatureRank, 0, len(importance))
	for name, w := range importance {
		ranks = append(ranks, FeatureRank{Name: name, Weight: w})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Weight != ranks[j].Weight {
			return ranks[i].Weight > ranks[j].Weight
		}
		return ranks[i].Name < ranks[j].Name
	})
	if n < len(ranks) {
		ranks = ranks[:n]
	}
	return ranks
}

func (e *Ensemble) featureName(i int) string {
	if i < len(e.names) {
		return e.names[i]
	}
	return fmt.Sprintf("feature_%d", i)
}

// Save snapshots the current state into the lifecycle store.
func (e *Ensemble) Save(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("ensemble: no store configured")
	}
	if !e.initialized {
		return nil
	}
	blob, err := e.snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting model: %w", err)
	}
	if _, err := e.store.Save(ctx, blob, e.bufferMetrics()); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	return nil
}

// Reset discards all learned state and clears the store history.
func (e *Ensemble) Reset(ctx context.Context) error {
	e.members = nil
	e.weights = nil
	e.scaler = nil
	e.buffer = nil
	e.errors = nil
	e.totalSamples = 0
	e.sinceRetrain = 0
	e.initialized = false
	e.dim = 0

	if e.store != nil {
		return e.store.Reset(ctx)
	}
	return nil
}

// state is the serialized ensemble document. The training buffer is
// deliberately excluded; it lives only in process memory.
type state struct {
	Members      []regressor.State `json:"members"`
	Weights      []float64         `json:"weights"`
	Scaler       *regressor.Scaler `json:"scaler"`
	TotalSamples int               `json:"totalSamples"`
	Dim          int               `json:"dim"`
	Errors       []errSample       `json:"errors,omitempty"`
}

func (e *Ensemble) snapshot() ([]byte, error) {
	s := state{
		Weights:      e.weights,
		Scaler:       e.scaler,
		TotalSamples: e.totalSamples,
		Dim:          e.dim,
		Errors:       e.errors,
	}
	for _, m := range e.members {
		s.Members = append(s.Members, m.State())
	}
	return json.Marshal(s)
}

func (e *Ensemble) restore(blob []byte) error {
	var s state
	if err := json.Unmarshal(blob, &s); err != nil {
		return fmt.Errorf("unmarshal model state: %w", err)
	}
	if len(s.Members) == 0 || s.Scaler == nil || !s.Scaler.Fitted {
		return fmt.Errorf("model state incomplete")
	}
	if len(s.Weights) != len(s.Members) {
		return fmt.Errorf("%d weights for %d members", len(s.Weights), len(s.Members))
	}

	members := make([]regressor.Online, len(s.Members))
	kinds := make([]regressor.Kind, len(s.Members))
	for i, ms := range s.Members {
		m, err := regressor.Restore(ms)
		if err != nil {
			return err
		}
		members[i] = m
		kinds[i] = ms.Kind
	}

	e.members = members
	e.kinds = kinds
	e.weights = s.Weights
	e.scaler = s.Scaler
	e.totalSamples = s.TotalSamples
	e.dim = s.Dim
	e.errors = s.Errors
	e.initialized = true
	return nil
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
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
