package session

import "time"

type Config struct {
	TickInterval   time.Duration `envconfig:"VIGIL_TICK_INTERVAL" default:"30s"`
	FlushTime      time.Duration `envconfig:"VIGIL_FLUSH_TIME" default:"5s"`
	FlushSize      int           `envconfig:"VIGIL_FLUSH_SIZE" default:"50"`
	MaxItemsStored int           `envconfig:"VIGIL_MAX_SCORES_STORED" default:"10000"`
	MaxStorageTime time.Duration `envconfig:"VIGIL_MAX_STORAGE_TIME" default:"720h"`
	RebuildDBTime  time.Duration `envconfig:"VIGIL_REBUILD_DB_TIME" default:"1h"`
}

func (c *Config) SessionConfig() *Config {
	return c
}

// AsOptions converts the environment configuration into manager options.
func (c *Config) AsOptions() []Option {
	return []Option{
		WithTickInterval(c.TickInterval),
		WithDBFlushTime(c.FlushTime),
		WithDBFlushSize(c.FlushSize),
		WithMaxItemsStored(c.MaxItemsStored),
		WithMaxStorageTime(c.MaxStorageTime),
		WithRebuildDBTime(c.RebuildDBTime),
	}
}
