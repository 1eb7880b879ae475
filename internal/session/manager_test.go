package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/database"
	"vigil/internal/ensemble"
	"vigil/internal/feature"
	"vigil/internal/personalize"
	"vigil/internal/scoring"
	"vigil/pkg/metrics"
)

func newTestManager(t *testing.T) (*Manager, context.Context) {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewFromEnv(ctx, &database.Config{FileName: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close(ctx)
	})

	pred, err := ensemble.New(ctx, nil)
	if err != nil {
		t.Fatalf("creating ensemble: %v", err)
	}
	profile, err := personalize.New(ctx, db)
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}

	eng := feature.NewEngineer()
	orch := scoring.NewOrchestrator(scoring.NewRuleEngine(5*time.Minute), eng, pred, profile)

	shutdownCh := make(chan error, 1)
	m, err := New(db, orch, eng, pred, profile, metrics.New(), shutdownCh,
		WithDBFlushSize(1000), WithDBFlushTime(time.Hour))
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	return m, ctx
}

func TestTickWithoutSession(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	m.Tick(ctx, time.Now())
	if _, ok := m.Latest(); ok {
		t.Error("tick without a session produced a score")
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	id, err := m.StartSession(ctx, now)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if id == "" || m.ActiveSession() != id {
		t.Fatalf("active session = %q, want %q", m.ActiveSession(), id)
	}

	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		m.Tick(ctx, now)
	}
	latest, ok := m.Latest()
	if !ok {
		t.Fatal("no latest score after ticks")
	}
	if latest.SessionID != id {
		t.Errorf("latest score session = %s, want %s", latest.SessionID, id)
	}
	if latest.Value < 0 || latest.Value > 100 {
		t.Errorf("latest score = %v outside [0, 100]", latest.Value)
	}

	if err := m.EndSession(ctx, now); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if m.ActiveSession() != "" {
		t.Error("session still active after EndSession")
	}
	if m.profile.Sessions() != 1 {
		t.Errorf("profile sessions = %d, want 1", m.profile.Sessions())
	}
}

func TestEndSessionWithoutActive(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	if err := m.EndSession(ctx, time.Now()); err == nil {
		t.Error("EndSession without active session succeeded")
	}
}

func TestBreakLifecycle(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	if err := m.StartBreak(now); err == nil {
		t.Error("StartBreak without session succeeded")
	}

	if _, err := m.StartSession(ctx, now); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.StartBreak(now.Add(30 * time.Minute)); err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if err := m.StartBreak(now.Add(31 * time.Minute)); err == nil {
		t.Error("second StartBreak succeeded")
	}

	breakEnd := now.Add(40 * time.Minute)
	if err := m.EndBreak(ctx, breakEnd); err != nil {
		t.Fatalf("EndBreak: %v", err)
	}

	// the break recency clock restarts at the break end
	in := m.buildInput(breakEnd.Add(10 * time.Minute))
	if in.TimeSinceBreak != 10 {
		t.Errorf("time since break = %v, want 10", in.TimeSinceBreak)
	}
	if in.OnBreak {
		t.Error("still marked on break after EndBreak")
	}
}

func TestCollectFeedsEngineer(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	if _, err := m.StartSession(ctx, now); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	events := make([]feature.ActivityEvent, 30)
	for i := range events {
		events[i] = feature.ActivityEvent{Kind: feature.KindKeyboard, At: now.Add(time.Duration(i) * time.Second)}
	}
	if err := m.CollectEvents(ctx, events); err != nil {
		t.Fatalf("CollectEvents: %v", err)
	}
	if err := m.CollectBlink(ctx, now, 12); err != nil {
		t.Fatalf("CollectBlink: %v", err)
	}

	in := m.buildInput(now.Add(45 * time.Second))
	if in.ActivityRate != 30 {
		t.Errorf("activity rate = %v, want 30", in.ActivityRate)
	}
	if in.BlinkRate != 12 {
		t.Errorf("blink rate = %v, want 12", in.BlinkRate)
	}
}

func TestScoresFlushedToStorage(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	id, err := m.StartSession(ctx, now)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		m.Tick(ctx, now)
	}

	// force a synchronous flush
	if err := m.dbTxExecutor.shutdown(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	history, err := m.History(id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 5 {
		t.Errorf("stored scores = %d, want 5", len(history))
	}
}

// TestMethodTransitionOverSessions drives repeated full sessions and checks
// the predictor trust ramp: early sessions score rule-based, later ones
// hybrid, with the ml weight never decreasing.
func TestMethodTransitionOverSessions(t *testing.T) {
	t.Parallel()
	m, ctx := newTestManager(t)

	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	var prevWeight float64
	var sawRuleBased, sawHybrid bool

	for s := 0; s < 25; s++ {
		if _, err := m.StartSession(ctx, now); err != nil {
			t.Fatalf("StartSession %d: %v", s, err)
		}

		for i := 0; i < 12; i++ {
			now = now.Add(time.Minute)
			// declining activity and blink rate as the session wears on
			events := make([]feature.ActivityEvent, 40-3*i)
			for j := range events {
				events[j] = feature.ActivityEvent{Kind: feature.KindKeyboard, At: now.Add(-time.Duration(j) * time.Second)}
			}
			if err := m.CollectEvents(ctx, events); err != nil {
				t.Fatalf("CollectEvents: %v", err)
			}
			if err := m.CollectBlink(ctx, now, 18-float64(i)); err != nil {
				t.Fatalf("CollectBlink: %v", err)
			}
			m.Tick(ctx, now)
		}

		latest, ok := m.Latest()
		if !ok {
			t.Fatalf("session %d produced no score", s)
		}
		switch latest.Method {
		case scoring.MethodRuleBased:
			sawRuleBased = true
			if sawHybrid {
				t.Fatalf("session %d regressed from hybrid to rule_based", s)
			}
		case scoring.MethodHybrid:
			sawHybrid = true
		}
		if latest.MLWeight < prevWeight {
			t.Fatalf("ml weight decreased at session %d: %v < %v", s, latest.MLWeight, prevWeight)
		}
		prevWeight = latest.MLWeight

		if err := m.EndSession(ctx, now); err != nil {
			t.Fatalf("EndSession %d: %v", s, err)
		}
		now = now.Add(12 * time.Hour)
	}

	if !sawRuleBased || !sawHybrid {
		t.Errorf("expected both methods across sessions, rule_based=%v hybrid=%v", sawRuleBased, sawHybrid)
	}
}
