// Package session drives the scoring loop: it owns the orchestrator, runs
// the periodic tick, and manages session and break lifecycle plus score
// persistence.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"vigil/internal/database"
	"vigil/internal/ensemble"
	"vigil/internal/feature"
	"vigil/internal/logging"
	"vigil/internal/personalize"
	scoreDb "vigil/internal/score/database"
	"vigil/internal/score/model"
	"vigil/internal/scoring"
	"vigil/pkg/metrics"
)

// ProvideFn builds the manager once the daemon owns the shutdown channel.
type ProvideFn func(shutdownCh chan<- error) (*Manager, error)

type Options struct {
	tickInterval   time.Duration
	dbFlushTime    time.Duration
	dbFlushSize    int
	maxItemsStored int
	maxStorageTime time.Duration
	rebuildDBTime  time.Duration
	deps           pullDependencies
}

type Option func(*Manager)

func WithTickInterval(t time.Duration) Option {
	return func(m *Manager) {
		m.opts.tickInterval = t
	}
}

func WithDBFlushTime(t time.Duration) Option {
	return func(m *Manager) {
		m.opts.dbFlushTime = t
	}
}

func WithDBFlushSize(n int) Option {
	return func(m *Manager) {
		m.opts.dbFlushSize = n
	}
}

func WithMaxItemsStored(n int) Option {
	return func(m *Manager) {
		m.opts.maxItemsStored = n
	}
}

func WithMaxStorageTime(t time.Duration) Option {
	return func(m *Manager) {
		m.opts.maxStorageTime = t
	}
}

func WithRebuildDBTime(t time.Duration) Option {
	return func(m *Manager) {
		m.opts.rebuildDBTime = t
	}
}

// New wires the manager to its collaborators. The orchestrator, engineer,
// predictor and profile are owned by the manager afterwards; all access to
// them goes through its mutex.
func New(
	db *database.DB,
	orch *scoring.Orchestrator,
	eng *feature.Engineer,
	pred *ensemble.Ensemble,
	profile *personalize.Engine,
	mtr *metrics.Metrics,
	shutdownCh chan<- error,
	opts ...Option,
) (*Manager, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator instance is not created")
	}
	if mtr == nil {
		return nil, fmt.Errorf("metrics instance is not created")
	}

	m := &Manager{
		scoreDB:    scoreDb.New(db),
		orch:       orch,
		engineer:   eng,
		predictor:  pred,
		profile:    profile,
		metrics:    mtr,
		shutdownCh: shutdownCh,
		opts: Options{
			tickInterval:   30 * time.Second,
			dbFlushTime:    5 * time.Second,
			dbFlushSize:    50,
			maxItemsStored: 10000,
			maxStorageTime: 30 * 24 * time.Hour,
			rebuildDBTime:  time.Hour,
		},
	}
	for _, f := range opts {
		f(m)
	}

	m.opts.deps = pullDependencies{
		fetchScoresBySession: m.scoreDB.FindBySession,
		deleteScores:         m.scoreDB.DeleteMany,
		appendScores:         m.appendScores,
		fetchSessions:        m.scoreDB.Sessions,
		countBySession:       m.scoreDB.CountBySession,
	}

	m.dbScheduler = newDBScheduler(dbSchedulerConfig{
		deps:           m.opts.deps,
		maxItemsStored: m.opts.maxItemsStored,
		maxStorageTime: m.opts.maxStorageTime,
		rebuildDBTime:  m.opts.rebuildDBTime,
	})
	m.dbTxExecutor = newDBTxExecutor(dbTxExecutorOptions{
		flushSize: m.opts.dbFlushSize,
		flushTime: m.opts.dbFlushTime,
		appendFn:  m.opts.deps.appendScores,
	}, shutdownCh)

	return m, nil
}

// Manager serializes every touch of the scoring-path state behind one mutex:
// ingest, ticks, and session lifecycle.
type Manager struct {
	mtx sync.Mutex

	opts Options

	scoreDB   *scoreDb.DB
	orch      *scoring.Orchestrator
	engineer  *feature.Engineer
	predictor *ensemble.Ensemble
	profile   *personalize.Engine
	metrics   *metrics.Metrics

	dbTxExecutor *dbTxExecutor
	dbScheduler  *dbScheduler
	shutdownCh   chan<- error

	sessionID    string
	sessionStart time.Time
	onBreak      bool
	breakStart   time.Time
	lastBreakEnd time.Time
	latest       *model.Score

	closed bool
	cancel func()
}

// Run starts the tick loop and the storage background services.
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go m.tickLoop(ctx)
	go m.dbTxExecutor.flusher(ctx)
	go m.dbScheduler.schedule(ctx)

	return nil
}

func (m *Manager) Stop() {
	m.mtx.Lock()
	m.closed = true
	m.mtx.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one scoring pass. It is a no-op without an active session and
// never returns an error; the scoring path fails open.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed || m.sessionID == "" {
		return
	}

	started := time.Now()
	in := m.buildInput(now)
	res := m.orch.Tick(ctx, in)

	record := model.NewScore(m.sessionID, res)
	m.latest = &record
	m.dbTxExecutor.write(ctx, record)

	m.metrics.ScoringTicks.Inc()
	m.metrics.TickDuration.Observe(time.Since(started).Seconds())
	m.metrics.FatigueScore.Set(res.Score)
	m.metrics.MLConfidence.Set(res.Confidence)
	m.metrics.MLWeight.Set(res.MLWeight)
	m.metrics.TrainingSamples.Set(float64(m.predictor.TotalSamples()))
	m.metrics.PredictionMethod.WithLabelValues(string(res.Method)).Inc()
}

// buildInput assembles the tick observation from manager and buffer state.
// Caller holds the mutex.
func (m *Manager) buildInput(now time.Time) scoring.Input {
	sinceBreak := now.Sub(m.sessionStart)
	if !m.lastBreakEnd.IsZero() {
		sinceBreak = now.Sub(m.lastBreakEnd)
	}

	return scoring.Input{
		At:             now,
		WorkDuration:   now.Sub(m.sessionStart).Minutes(),
		ActivityRate:   m.engineer.ActivityRate(now, time.Minute),
		TimeSinceBreak: sinceBreak.Minutes(),
		OnBreak:        m.onBreak,
		BlinkRate:      m.engineer.LastBlinkRate(),
	}
}

// CollectEvents ingests activity events. Callers pass them ordered by
// timestamp.
func (m *Manager) CollectEvents(ctx context.Context, events []feature.ActivityEvent) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed {
		return fmt.Errorf("error send to collect, shutting down")
	}
	for i := range events {
		m.engineer.AddActivity(events[i])
	}
	m.metrics.EventsCollected.Add(float64(len(events)))
	return nil
}

// CollectBlink ingests one blink-rate sample.
func (m *Manager) CollectBlink(ctx context.Context, at time.Time, rate float64) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed {
		return fmt.Errorf("error send to collect, shutting down")
	}
	m.engineer.AddEyeSample(at, rate)
	return nil
}

// StartSession begins a new work session, ending any active one first.
func (m *Manager) StartSession(ctx context.Context, now time.Time) (string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed {
		return "", fmt.Errorf("error start session, shutting down")
	}
	if m.sessionID != "" {
		if err := m.endSessionLocked(ctx, now); err != nil {
			return "", err
		}
	}

	m.sessionID = uuid.New().String()
	m.sessionStart = now
	m.onBreak = false
	m.lastBreakEnd = time.Time{}
	m.latest = nil
	m.orch.StartSession(now)

	logging.FromContext(ctx).Infof("session %s started", m.sessionID)
	return m.sessionID, nil
}

// EndSession closes the active session, folds its scores into the
// personalization profile, and saves the model.
func (m *Manager) EndSession(ctx context.Context, now time.Time) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.endSessionLocked(ctx, now)
}

func (m *Manager) endSessionLocked(ctx context.Context, now time.Time) error {
	if m.sessionID == "" {
		return fmt.Errorf("no active session")
	}
	logger := logging.FromContext(ctx)

	scores := m.orch.SessionScores()
	summary := personalize.SessionSummary{
		StartHour:    m.sessionStart.Hour(),
		Productivity: sessionProductivity(scores),
	}
	if err := m.profile.UpdateProfile(ctx, summary, scores); err != nil {
		logger.Errorf("profile update failed: %v", err)
	}
	if err := m.predictor.Save(ctx); err != nil {
		logger.Errorf("model save failed: %v", err)
	}

	go m.dbTxExecutor.bulkAppend(ctx)

	logger.Infof("session %s ended after %.1f minutes, %d scores",
		m.sessionID, now.Sub(m.sessionStart).Minutes(), len(scores))

	m.sessionID = ""
	m.sessionStart = time.Time{}
	m.onBreak = false
	return nil
}

// sessionProductivity derives a 0..1 productivity estimate from the session's
// fatigue profile; a low-fatigue session counts as productive.
func sessionProductivity(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	p := 1 - sum/float64(len(scores))/100
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// StartBreak marks the session as paused.
func (m *Manager) StartBreak(now time.Time) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.sessionID == "" {
		return fmt.Errorf("no active session")
	}
	if m.onBreak {
		return fmt.Errorf("already on break")
	}
	m.onBreak = true
	m.breakStart = now
	return nil
}

// EndBreak resumes work and resets the break recency clock.
func (m *Manager) EndBreak(ctx context.Context, now time.Time) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if !m.onBreak {
		return fmt.Errorf("not on break")
	}
	m.onBreak = false
	m.lastBreakEnd = now

	logging.FromContext(ctx).Infof("break ended after %.1f minutes", now.Sub(m.breakStart).Minutes())
	return nil
}

// Latest returns the most recent score of the active session.
func (m *Manager) Latest() (model.Score, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.latest == nil {
		return model.Score{}, false
	}
	return *m.latest, true
}

// ActiveSession returns the current session ID, empty if none.
func (m *Manager) ActiveSession() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.sessionID
}

// History returns the stored scores for a session, oldest first.
func (m *Manager) History(sessionID string) ([]model.Score, error) {
	scores, err := m.scoreDB.FindBySession(sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching session history: %w", err)
	}
	return scores, nil
}

// TopFeatures reports the predictor's current feature ranking.
func (m *Manager) TopFeatures(n int) []ensemble.FeatureRank {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.predictor.TopFeatures(n)
}

// Stats aggregates diagnostics across the scoring components.
func (m *Manager) Stats() map[string]interface{} {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return map[string]interface{}{
		"session":     m.sessionID,
		"on_break":    m.onBreak,
		"performance": m.predictor.PerfMetrics(),
		"profile":     m.profile.Stats(),
	}
}

// RecordFeedback forwards user feedback into the personalization profile.
func (m *Manager) RecordFeedback(ctx context.Context, fb personalize.Feedback) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.profile.RecordFeedback(ctx, fb)
}

func (m *Manager) appendScores(ctx context.Context, scores []model.Score) error {
	if len(scores) == 0 {
		return nil
	}
	if err := m.scoreDB.AppendMany(ctx, scores); err != nil {
		return err
	}
	m.metrics.ScoresFlushed.Add(float64(len(scores)))
	return nil
}
