package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"vigil/internal/logging"
	scoreDb "vigil/internal/score/database"
	"vigil/internal/score/model"
)

type dbSchedulerConfig struct {
	maxItemsStored int
	maxStorageTime time.Duration
	rebuildDBTime  time.Duration
	deps           pullDependencies
}

func newDBScheduler(config dbSchedulerConfig) *dbScheduler {
	return &dbScheduler{opts: config}
}

// dbScheduler trims stored score history, bounding both the per-session
// record count and the record age.
type dbScheduler struct {
	opts dbSchedulerConfig
}

// processOutdated deletes the session's records older than the configured
// storage time.
func (s *dbScheduler) processOutdated(sessionID string) error {
	scores, err := s.opts.deps.fetchScoresBySession(sessionID, func(score model.Score) bool {
		return time.Since(score.CreatedAt) > s.opts.maxStorageTime
	})
	if err != nil {
		return fmt.Errorf("unable find scores by session %s: %v", sessionID, err)
	}

	if err := s.opts.deps.deleteScores(context.Background(), scores); err != nil {
		return fmt.Errorf("unable delete outdated scores for session %s: %v", sessionID, err)
	}
	return nil
}

// processOverSize deletes the session's oldest records beyond the configured
// count.
func (s *dbScheduler) processOverSize(sessionID string) error {
	scores, err := s.opts.deps.fetchScoresBySession(sessionID, nil)
	if err != nil {
		return fmt.Errorf("unable find scores by session %s: %v", sessionID, err)
	}
	if len(scores) <= s.opts.maxItemsStored {
		return nil
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].CreatedAt.UnixNano() < scores[j].CreatedAt.UnixNano()
	})

	if err := s.opts.deps.deleteScores(context.Background(), scores[:len(scores)-s.opts.maxItemsStored]); err != nil {
		return fmt.Errorf("unable delete oversize scores for session %s: %v", sessionID, err)
	}
	return nil
}

func (s *dbScheduler) rebuildOutdated() error {
	keys, err := s.opts.deps.fetchSessions()
	if err != nil {
		return fmt.Errorf("unable to fetch session keys: %v", err)
	}
	for i := range keys {
		if err := s.processOutdated(keys[i]); err != nil {
			return fmt.Errorf("unable process scores: %v", err)
		}
	}
	return nil
}

func (s *dbScheduler) rebuildSize() error {
	keys, err := s.opts.deps.fetchSessions()
	if err != nil {
		return fmt.Errorf("unable fetch keys: %v", err)
	}
	for i := range keys {
		length, err := s.opts.deps.countBySession(keys[i])
		if err != nil {
			return fmt.Errorf("unable count by session %s: %v", keys[i], err)
		}
		if length > s.opts.maxItemsStored {
			if err := s.processOverSize(keys[i]); err != nil {
				return fmt.Errorf("unable process scores: %v", err)
			}
		}
	}
	return nil
}

// schedule runs the cleanup passes on a timer until the context ends.
func (s *dbScheduler) schedule(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.opts.rebuildDBTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.opts.maxItemsStored > 0 {
				if err := s.rebuildSize(); err != nil {
					logger.Errorf("unable db rebuild size: %v", err)
				}
			}
			if s.opts.maxStorageTime > 0 {
				if err := s.rebuildOutdated(); err != nil {
					logger.Errorf("unable db rebuild outdated: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// pullDependencies aggregates the storage functions the background services
// pull from the score database.
type (
	fetchScoresBySessionFn func(string, scoreDb.FilterFn) ([]model.Score, error)
	deleteScoresFn         func(context.Context, []model.Score) error
	appendScoresFn         func(context.Context, []model.Score) error
	fetchSessionsFn        func() ([]string, error)
	countBySessionFn       func(string) (int, error)
)

type pullDependencies struct {
	fetchScoresBySession fetchScoresBySessionFn
	deleteScores         deleteScoresFn
	appendScores         appendScoresFn
	fetchSessions        fetchSessionsFn
	countBySession       countBySessionFn
}
