// Package database stores score history in bolt, one bucket per session with
// a keys bucket listing known sessions.
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"
	"vigil/internal/database"
	"vigil/internal/score/model"
)

const (
	sessionKeys = "session:keys:"
	prefix      = "score:"
)

type FilterFn func(score model.Score) bool

func New(db *database.DB) *DB {
	return &DB{sDB: db}
}

type DB struct {
	sDB *database.DB
}

func (db *DB) extractKey(key string) string {
	prefixPos := strings.Index(key, prefix)

	return key[prefixPos+len(prefix):]
}

// Sessions lists the session IDs with stored history.
func (db *DB) Sessions() ([]string, error) {
	var bucketKeys []string
	err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionKeys))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			bucketKeys = append(bucketKeys, db.extractKey(string(k)))
		}
		return nil
	})

	return bucketKeys, err
}

func (db *DB) Store(_ context.Context, score model.Score) error {
	bytes, err := json.Marshal(score)
	if err != nil {
		return err
	}

	if err := db.sDB.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(prefix + score.SessionID))
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if err := b.Put([]byte(score.ID.String()), bytes); err != nil {
			return fmt.Errorf("put to bucket error: %w", err)
		}
		keys, err := tx.CreateBucketIfNotExists([]byte(sessionKeys))
		if err != nil {
			return fmt.Errorf("create session keys bucket: %w", err)
		}
		if err := keys.Put([]byte(prefix+score.SessionID), []byte{0x0}); err != nil {
			return fmt.Errorf("put to session keys bucket: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}

	return nil
}

func (db *DB) AppendMany(_ context.Context, scores []model.Score) error {
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		for _, score := range scores {
			b, err := tx.CreateBucketIfNotExists([]byte(prefix + score.SessionID))
			if err != nil {
				return fmt.Errorf("create bucket: %w", err)
			}
			bytes, err := json.Marshal(score)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(score.ID.String()), bytes); err != nil {
				return fmt.Errorf("put to bucket error: %w", err)
			}
			keys, err := tx.CreateBucketIfNotExists([]byte(sessionKeys))
			if err != nil {
				return fmt.Errorf("create session keys bucket: %w", err)
			}
			if err := keys.Put([]byte(prefix+score.SessionID), []byte{0x0}); err != nil {
				return fmt.Errorf("put to session keys bucket: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}

	return nil
}

func (db *DB) DeleteMany(_ context.Context, scores []model.Score) error {
	if err := db.sDB.DB.Batch(func(tx *bolt.Tx) error {
		for _, score := range scores {
			b := tx.Bucket([]byte(prefix + score.SessionID))
			if b == nil {
				continue
			}
			if err := b.Delete([]byte(score.ID.String())); err != nil {
				return fmt.Errorf("unable delete: %w", err)
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("update transaction error: %v", err)
	}

	return nil
}

// FindAll returns every stored score matching the filter, across sessions.
func (db *DB) FindAll(_ context.Context, filter FilterFn) ([]model.Score, error) {
	var scores []model.Score
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket([]byte(sessionKeys))
		if keys == nil {
			return nil
		}
		c := keys.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			b := tx.Bucket(k)
			if b == nil {
				continue
			}
			sc := b.Cursor()
			for sk, v := sc.First(); sk != nil; sk, v = sc.Next() {
				var s model.Score
				if err := json.Unmarshal(v, &s); err != nil {
					return fmt.Errorf("score unmarshal error, %q", err)
				}
				if filter == nil || filter(s) {
					scores = append(scores, s)
				}
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %v", err)
	}

	return scores, nil
}

func (db *DB) CountBySession(sessionID string) (int, error) {
	var length int
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix + sessionID))
		if b == nil {
			length = 0
			return nil
		}
		stats := b.Stats()
		length = stats.KeyN
		return nil
	}); err != nil {
		return 0, fmt.Errorf("view transaction error: %v", err)
	}

	return length, nil
}

func (db *DB) FindBySession(sessionID string, filter FilterFn) ([]model.Score, error) {
	var list []model.Score
	if err := db.sDB.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(prefix + sessionID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var score model.Score
			if err := json.Unmarshal(v, &score); err != nil {
				return fmt.Errorf("json unmarshal error, %q", err)
			}
			if filter == nil || filter(score) {
				list = append(list, score)
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("view transaction error: %v", err)
	}

	return list, nil
}
