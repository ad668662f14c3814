// Package config loads CLI configuration from config files, environment
// variables and .env files.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

var AppFs = afero.NewOsFs()

// Config holds the CLI configuration.
type Config struct {
	Region   string
	Endpoint string
	Table    string
	PageSize int32
	Debug    bool
}

// Load reads configuration from .partiq.yaml (working directory or home),
// PARTIQ_* environment variables and .env files. Flags override whatever
// is loaded here.
func Load() (*Config, error) {
	viper.SetConfigName(".partiq")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".config", "partiq"))
	}

	viper.SetEnvPrefix("PARTIQ")
	viper.AutomaticEnv()

	viper.SetDefault("region", "us-east-1")
	viper.SetDefault("page_size", 0)

	// A missing config file is fine; flags and env still apply.
	_ = viper.ReadInConfig()

	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}

	return &Config{
		Region:   viper.GetString("region"),
		Endpoint: viper.GetString("endpoint"),
		Table:    viper.GetString("table"),
		PageSize: viper.GetInt32("page_size"),
		Debug:    viper.GetBool("debug"),
	}, nil
}
