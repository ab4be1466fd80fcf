package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AdminUser string `envconfig:"ADMIN_USER" default:"admin"`
	// AdminPasswordHash is a bcrypt hash. An empty hash rejects every request.
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
