package vigil

import (
	"vigil/internal/collect"
	"vigil/internal/database"
	"vigil/internal/model"
	"vigil/internal/predict"
	"vigil/internal/scoring"
	"vigil/internal/session"
	"vigil/internal/setup"
)

var (
	_ setup.DatabaseConfigProvider = (*Config)(nil)
	_ setup.ModelConfigProvider    = (*Config)(nil)
	_ setup.ScoringConfigProvider  = (*Config)(nil)
	_ setup.SessionConfigProvider  = (*Config)(nil)
)

type Config struct {
	SrvAddr     string `envconfig:"VIGIL_ADDR" default:":8989"`
	ProfileAddr string `envconfig:"VIGIL_PROFILE_ADDR" default:""`
	Database    database.Config
	Model       model.Config
	Scoring     scoring.Config
	Session     session.Config
	Collect     collect.Config
	Predict     predict.Config
}

func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

func (c *Config) ModelConfig() *model.Config {
	return &c.Model
}

func (c *Config) ScoringConfig() *scoring.Config {
	return &c.Scoring
}

func (c *Config) SessionConfig() *session.Config {
	return &c.Session
}

func (c *Config) CollectConfig() *collect.Config {
	return &c.Collect
}

func (c *Config) PredictConfig() *predict.Config {
	return &c.Predict
}
