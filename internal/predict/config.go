package predict

import "time"

type Config struct {
	RequestTimeout time.Duration `envconfig:"VIGIL_PREDICT_REQUEST_TIMEOUT" default:"30s"`
	MaxTopFeatures int           `envconfig:"VIGIL_PREDICT_MAX_TOP_FEATURES" default:"10"`
}

func (c *Config) PredictConfig() *Config {
	return c
}
