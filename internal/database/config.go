package database

type Config struct {
	FileName string `envconfig:"VIGIL_DB_FILE" default:"vigil.db"`
}
