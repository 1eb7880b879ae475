package database

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
	"vigil/internal/logging"
)

type DB struct {
	DB *bolt.DB
}

func NewFromEnv(ctx context.Context, config *Config) (*DB, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("opening db file %s", config.FileName)

	db, err := bolt.Open(config.FileName, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening db file: %w", err)
	}

	return &DB{DB: db}, nil
}

// EnsureBuckets creates the named buckets if they do not exist yet.
func (db *DB) EnsureBuckets(names ...string) error {
	return db.DB.Update(func(tx *bolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (db *DB) Close(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Infof("closing db file")

	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("error closing db file: %w", err)
	}

	return nil
}
