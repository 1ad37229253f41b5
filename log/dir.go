package log

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName = "rephrase"
	envDir  = "REPHRASE_LOG_PATH"
)

// ResolveDir picks the log directory: flag, then REPHRASE_LOG_PATH, then
// the platform default.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv(envDir)} {
		if p != "" {
			return filepath.Abs(p)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return defaultDir(runtime.GOOS, home, os.Getenv), nil
}

func defaultDir(goos, home string, getenv func(string) string) string {
	switch goos {
	case "windows":
		base := getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, appName, "logs")
	case "darwin":
		return filepath.Join(home, "Library", "Logs", appName)
	}
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName, "logs")
}
