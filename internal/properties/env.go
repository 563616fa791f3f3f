package properties

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

var envFiles = []string{"../../.env", "../.env", ".env"}

// LoadEnv loads the first .env file found. Running without one is allowed,
// the process environment is then used as is.
func LoadEnv() (string, error) {
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return path, err
		}
		return path, nil
	}
	return "", errors.New("no .env file found")
}
