package scoring

import "time"

type Config struct {
	GraceWindow time.Duration `envconfig:"VIGIL_GRACE_WINDOW" default:"5m"`
}

func (c *Config) ScoringConfig() *Config {
	return c
}
