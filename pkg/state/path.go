package state

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// BaseDir returns the base directory used for persistent bot state.
//
// Default:
// - system user cache dir + "/linkbot"
// - "./.linkbot" when no cache dir can be determined
func BaseDir() string {
	if d := strings.TrimSpace(userCacheDir()); d != "" {
		return filepath.Join(d, "linkbot")
	}
	return ".linkbot"
}

// HistoryFile is the default URL history log for one server/channel pair.
func HistoryFile(server, channel string) string {
	identity := strings.ToLower(strings.TrimSpace(server)) + "\n" + strings.ToLower(strings.TrimSpace(channel))
	sum := sha256.Sum256([]byte(identity))
	shortHash := hex.EncodeToString(sum[:])[:12]

	name := sanitize(channel)
	if name == "" {
		name = "history"
	}
	return filepath.Join(BaseDir(), "history", name+"-"+shortHash+".log")
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}

func userCacheDir() string {
	if d, err := os.UserCacheDir(); err == nil && strings.TrimSpace(d) != "" {
		return d
	}

	switch runtime.GOOS {
	case "windows":
		if d := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); d != "" {
			return d
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, "Library", "Caches")
		}
	default:
		if d := strings.TrimSpace(os.Getenv("XDG_CACHE_HOME")); d != "" {
			return d
		}
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, ".cache")
		}
	}

	return ""
}
