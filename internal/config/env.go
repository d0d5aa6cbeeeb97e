package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Settings are the runtime knobs that do not belong to a pipeline.
type Settings struct {
	Threads   int    // per-operator concurrency, zero means one per CPU
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text
	OutputDir string // default directory of save operators
}

// DefaultEnvFiles are read by LoadSettings when no file is given.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadSettings reads the environment, after loading the env files that
// exist. Variables already set win over the files. A file that exists but
// cannot be parsed is an error.
func LoadSettings(files ...string) (Settings, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		// missing files are fine, malformed ones are not
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	s := Settings{
		LogLevel:  getenv("PHOTOFLOW_LOG_LEVEL", "info"),
		LogFormat: getenv("PHOTOFLOW_LOG_FORMAT", "json"),
		OutputDir: getenv("PHOTOFLOW_OUTPUT_DIR", "."),
	}
	if v := getenv("PHOTOFLOW_THREADS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s, fmt.Errorf("invalid PHOTOFLOW_THREADS %q: must be a non-negative integer", v)
		}
		s.Threads = n
	}
	return s, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
