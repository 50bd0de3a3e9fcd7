package env

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
)

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. With no arguments it reads ./.env.
// It reports whether a file was found; a missing file is not an error.
func LoadEnv(files ...string) (bool, error) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrap(err, "env: load .env")
	}
	return true, nil
}
