// Package model manages persistence and versioning of the ensemble state.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"vigil/internal/database"
	"vigil/internal/logging"
)

const (
	metadataBucket = "model:metadata"
	metadataKey    = "metadata"

	modelFileName = "current_model.json"
	backupDirName = "backups"

	// maxBackups bounds the rotating backup directory.
	maxBackups = 5

	backupTimeLayout = "20060102T150405.000000000"
)

// Store is the model lifecycle manager. The model blob lives as a file with
// rotating file backups; the version history document lives in bolt.
// Single-writer: callers must serialize Save/Reset.
type Store struct {
	dir  string
	sDB  *database.DB
	meta Metadata
}

func NewStore(ctx context.Context, db *database.DB, cfg *Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(cfg.Dir, backupDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating models dir: %w", err)
	}
	if err := db.EnsureBuckets(metadataBucket); err != nil {
		return nil, fmt.Errorf("creating metadata bucket: %w", err)
	}

	s := &Store{dir: cfg.Dir, sDB: db}
	if err := s.loadMetadata(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) modelFile() string {
	return filepath.Join(s.dir, modelFileName)
}

func (s *Store) backupDir() string {
	return filepath.Join(s.dir, backupDirName)
}

// Save backs up the current blob, overwrites it, and appends a new version to
// the history.
func (s *Store) Save(ctx context.Context, blob []byte, metrics map[string]float64) (Version, error) {
	logger := logging.FromContext(ctx)

	if _, err := os.Stat(s.modelFile()); err == nil {
		if err := s.backupCurrent(ctx); err != nil {
			return Version{}, fmt.Errorf("backing up current model: %w", err)
		}
	}

	if err := os.WriteFile(s.modelFile(), blob, 0o600); err != nil {
		return Version{}, fmt.Errorf("writing model file: %w", err)
	}

	now := time.Now()
	version := Version{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("v%d", len(s.meta.Versions)+1),
		CreatedAt: now,
		Metrics:   metrics,
	}

	s.meta.Versions = append(s.meta.Versions, version)
	s.meta.CurrentVersion = version.Name
	s.meta.LastUpdated = now
	if s.meta.CreatedAt.IsZero() {
		s.meta.CreatedAt = now
	}

	if err := s.saveMetadata(); err != nil {
		return Version{}, err
	}

	logger.Infof("saved model version %s", version.Name)
	return version, nil
}

// Load returns the current model blob. A missing file is not an error; the
// second return value reports presence.
func (s *Store) Load(ctx context.Context) ([]byte, bool, error) {
	blob, err := os.ReadFile(s.modelFile())
	if os.IsNotExist(err) {
		logging.FromContext(ctx).Infof("no saved model found, starting fresh")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading model file: %w", err)
	}
	return blob, true, nil
}

// History returns a copy of the version history, oldest first.
func (s *Store) History() []Version {
	out := make([]Version, len(s.meta.Versions))
	copy(out, s.meta.Versions)
	return out
}

func (s *Store) CurrentVersion() string {
	return s.meta.CurrentVersion
}

func (s *Store) LatestMetrics() map[string]float64 {
	if len(s.meta.Versions) == 0 {
		return nil
	}
	return s.meta.Versions[len(s.meta.Versions)-1].Metrics
}

// UpdateMetrics replaces the metrics of the most recent version.
func (s *Store) UpdateMetrics(metrics map[string]float64) error {
	if len(s.meta.Versions) == 0 {
		return fmt.Errorf("no versions to update")
	}
	s.meta.Versions[len(s.meta.Versions)-1].Metrics = metrics
	return s.saveMetadata()
}

// TrainingStats summarizes the version history for diagnostics.
type TrainingStats struct {
	TotalVersions  int                `json:"totalVersions"`
	CurrentVersion string             `json:"currentVersion"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastUpdated    time.Time          `json:"lastUpdated"`
	HasModel       bool               `json:"hasModel"`
	LatestMetrics  map[string]float64 `json:"latestMetrics"`
	AverageMetrics map[string]float64 `json:"averageMetrics"`
	Trend          Trend              `json:"trend"`
}

func (s *Store) Stats() TrainingStats {
	_, statErr := os.Stat(s.modelFile())

	stats := TrainingStats{
		TotalVersions:  len(s.meta.Versions),
		CurrentVersion: s.meta.CurrentVersion,
		CreatedAt:      s.meta.CreatedAt,
		LastUpdated:    s.meta.LastUpdated,
		HasModel:       statErr == nil,
		LatestMetrics:  s.LatestMetrics(),
		Trend:          ComputeTrend(s.meta.Versions),
	}

	if len(s.meta.Versions) > 0 {
		sums := map[string]float64{}
		counts := map[string]int{}
		for _, v := range s.meta.Versions {
			for k, m := range v.Metrics {
				sums[k] += m
				counts[k]++
			}
		}
		avg := make(map[string]float64, len(sums))
		for k := range sums {
			avg[k] = sums[k] / float64(counts[k])
		}
		stats.AverageMetrics = avg
	}

	return stats
}

// Reset backs up and removes the current model and clears the history.
func (s *Store) Reset(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	if _, err := os.Stat(s.modelFile()); err == nil {
		if err := s.backupCurrent(ctx); err != nil {
			return fmt.Errorf("backing up before reset: %w", err)
		}
		if err := os.Remove(s.modelFile()); err != nil {
			return fmt.Errorf("removing model file: %w", err)
		}
	}

	s.meta = Metadata{CreatedAt: time.Now()}
	if err := s.saveMetadata(); err != nil {
		return err
	}

	logger.Infof("model reset complete")
	return nil
}

// backupCurrent copies the model file into the backup directory and prunes the
// directory down to maxBackups entries. Backup names embed a nanosecond
// timestamp so lexicographic order is creation order.
func (s *Store) backupCurrent(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	blob, err := os.ReadFile(s.modelFile())
	if err != nil {
		return fmt.Errorf("reading model for backup: %w", err)
	}

	version := s.meta.CurrentVersion
	if version == "" {
		version = "unversioned"
	}
	name := fmt.Sprintf("model_%s_%s.json", version, time.Now().Format(backupTimeLayout))

	if err := os.WriteFile(filepath.Join(s.backupDir(), name), blob, 0o600); err != nil {
		return fmt.Errorf("writing backup: %w", err)
	}
	logger.Debugf("created model backup %s", name)

	return s.pruneBackups(ctx)
}

func (s *Store) pruneBackups(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		return fmt.Errorf("reading backup dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= maxBackups {
		return nil
	}

	// newest first; timestamps at the name tail keep this chronological
	// within a version, and pruning only ever removes the oldest tail
	sort.Slice(names, func(i, j int) bool {
		return backupSortKey(names[i]) > backupSortKey(names[j])
	})

	for _, name := range names[maxBackups:] {
		if err := os.Remove(filepath.Join(s.backupDir(), name)); err != nil {
			return fmt.Errorf("removing old backup %s: %w", name, err)
		}
		logger.Debugf("removed old backup %s", name)
	}
	return nil
}

// backupSortKey extracts the timestamp suffix so files compare by creation
// time regardless of the version part of the name.
func backupSortKey(name string) string {
	if len(name) < len(backupTimeLayout)+len(".json") {
		return name
	}
	return name[len(name)-len(backupTimeLayout)-len(".json"):]
}

func (s *Store) loadMetadata(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var raw []byte
	err := s.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metadataBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(metadataKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("view transaction error: %w", err)
	}

	if raw == nil {
		s.meta = Metadata{CreatedAt: time.Now()}
		return nil
	}

	if err := json.Unmarshal(raw, &s.meta); err != nil {
		logger.Errorf("corrupt model metadata, starting fresh: %v", err)
		s.meta = Metadata{CreatedAt: time.Now()}
	}
	return nil
}

func (s *Store) saveMetadata() error {
	raw, err := json.Marshal(s.meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := s.sDB.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(metadataBucket))
		if b == nil {
			created, err := tx.CreateBucket([]byte(metadataBucket))
			if err != nil {
				return fmt.Errorf("create bucket: %w", err)
			}
			b = created
		}
		return b.Put([]byte(metadataKey), raw)
	}); err != nil {
		return fmt.Errorf("update transaction error: %w", err)
	}
	return nil
}
