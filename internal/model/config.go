package model

type Config struct {
	Dir string `envconfig:"VIGIL_MODELS_DIR" default:"models"`
}
