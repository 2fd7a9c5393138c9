package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	AppName     = "resale-pricer"
	EnvFileName = "config.env"
)

// ConfigDir returns the application's directory under the user config dir.
func ConfigDir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configBase, AppName), nil
}

// EnvFilePath returns the full path to the config file.
func EnvFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory, then from a .env file in the working directory.
// Variables already set in the environment win. Errors are ignored since
// neither file has to exist.
func LoadEnvFile() {
	if path, err := EnvFilePath(); err == nil {
		_ = godotenv.Load(path)
	}
	_ = godotenv.Load(".env")
}
