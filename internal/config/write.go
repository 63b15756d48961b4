package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// writeLockTimeout bounds the wait for another devcell writing settings.
const writeLockTimeout = 10 * time.Second

var settingKeys = []string{
	"image.source",
	"image.repository",
	"image.name",
	"image.registries",
	"update.check",
	"update.pull_timeout",
	"update.health_timeout",
	"update.health_interval",
	"update.purge_after_update",
	"container.name",
	"container.mounts",
	"container.ports",
	"container.env",
	"logging.file_enabled",
	"logging.max_size_mb",
	"logging.max_age_days",
	"logging.max_backups",
}

var listKeys = []string{"image.registries", "container.mounts", "container.ports", "container.env"}

// Keys returns every settings key in display order.
func Keys() []string { return slices.Clone(settingKeys) }

// IsKnownKey reports whether key names a setting.
func IsKnownKey(key string) bool { return slices.Contains(settingKeys, key) }

// KeyNotFoundError is returned for a key that names no setting.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("unknown settings key %q", e.Key)
}

// Write persists one key to the settings file and leaves the other keys in
// the file as they were. A comma separated string is split for list keys.
// The resulting settings are validated before anything is written.
func (l *Loader) Write(key string, value any) error {
	if !IsKnownKey(key) {
		return &KeyNotFoundError{Key: key}
	}
	if s, ok := value.(string); ok && slices.Contains(listKeys, key) {
		value = splitList(s)
	}

	err := withFileLock(l.path, func() error {
		file, err := readFileOnly(l.path)
		if err != nil {
			return err
		}
		file.Set(key, value)

		merged := newViperConfig()
		if err := merged.MergeConfigMap(file.AllSettings()); err != nil {
			return fmt.Errorf("merging settings: %w", err)
		}
		if _, err := decode(merged); err != nil {
			return err
		}

		data, err := yaml.Marshal(file.AllSettings())
		if err != nil {
			return fmt.Errorf("encoding settings %s: %w", l.path, err)
		}
		if err := atomicwriter.WriteFile(l.path, data, 0o644); err != nil {
			return fmt.Errorf("writing settings %s: %w", l.path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.viper.Set(key, value)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// readFileOnly loads the settings file without defaults or environment
// overrides so that only keys the user wrote are written back.
func readFileOnly(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return v, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat settings %s: %w", path, err)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("loading settings %s: %w", path, err)
	}
	return v, nil
}

func withFileLock(path string, fn func() error) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("creating settings directory for %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeLockTimeout)
	defer cancel()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring file lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring file lock for %s", path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
