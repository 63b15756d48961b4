package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

const (
	devcellConfigDirEnv = "DEVCELL_CONFIG_DIR"
	devcellStateDirEnv  = "DEVCELL_STATE_DIR"
	xdgConfigHome       = "XDG_CONFIG_HOME"
	xdgStateHome        = "XDG_STATE_HOME"
	appData             = "AppData"

	// InstanceEnv selects an instance profile. Each profile has its own
	// container, image tags and state file.
	InstanceEnv = "DEVCELL_INSTANCE"

	// SettingsFileName is the user settings file inside ConfigDir.
	SettingsFileName = "settings.yaml"
	// LockFileName is the host exclusivity lock inside StateDir.
	LockFileName = "devcell.lock"
	logsSubdir   = "logs"
)

var instanceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,62}$`)

// ConfigDir returns the directory holding settings.yaml.
func ConfigDir() string {
	if a := os.Getenv(devcellConfigDirEnv); a != "" {
		return a
	}
	if b := os.Getenv(xdgConfigHome); b != "" {
		return filepath.Join(b, "devcell")
	}
	if runtime.GOOS == "windows" {
		if c := os.Getenv(appData); c != "" {
			return filepath.Join(c, "devcell")
		}
	}
	d, _ := os.UserHomeDir()
	return filepath.Join(d, ".config", "devcell")
}

// StateDir returns the directory holding provenance records, the host lock,
// the update-check cache and logs.
func StateDir() string {
	if a := os.Getenv(devcellStateDirEnv); a != "" {
		return a
	}
	if b := os.Getenv(xdgStateHome); b != "" {
		return filepath.Join(b, "devcell")
	}
	if runtime.GOOS == "windows" {
		if c := os.Getenv(appData); c != "" {
			return filepath.Join(c, "devcell", "state")
		}
	}
	d, _ := os.UserHomeDir()
	return filepath.Join(d, ".local", "state", "devcell")
}

// LogsDir returns the rotating log directory.
func LogsDir() string {
	return filepath.Join(StateDir(), logsSubdir)
}

// SettingsFilePath returns the full path of settings.yaml.
func SettingsFilePath() string {
	return filepath.Join(ConfigDir(), SettingsFileName)
}

// LockFilePath returns the full path of the host exclusivity lock.
func LockFilePath() string {
	return filepath.Join(StateDir(), LockFileName)
}

// Instance returns the active instance profile name, or "" for the default.
func Instance() (string, error) {
	name := os.Getenv(InstanceEnv)
	if name == "" {
		return "", nil
	}
	if !instanceNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid %s %q: use lowercase letters, digits, '.', '_' or '-'", InstanceEnv, name)
	}
	return name, nil
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
