package collect

import (
	"time"
)

type Config struct {
	RequestTimeout time.Duration `envconfig:"VIGIL_COLLECT_REQUEST_TIMEOUT" default:"60s"`
}

func (c *Config) CollectConfig() *Config {
	return c
}
