package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and .env from dir and every parent of dir,
// nearest first. Variables already set in the environment win, matching
// godotenv. It returns the files that were loaded.
func LoadDotEnv(dir string) ([]string, error) {
	if IsDotEnvDisabled() {
		return nil, nil
	}
	if strings.TrimSpace(dir) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var loaded []string
	for d := dir; ; {
		for _, name := range []string{".env.local", ".env"} {
			p := filepath.Join(d, name)
			if err := godotenv.Load(p); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return loaded, fmt.Errorf("load %s: %w", p, err)
			}
			loaded = append(loaded, p)
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return loaded, nil
}

func IsDotEnvDisabled() bool {
	v := strings.TrimSpace(os.Getenv(envPrefix + "DOTENV"))
	switch strings.ToLower(v) {
	case "0", "false", "off", "no":
		return true
	default:
		return false
	}
}
