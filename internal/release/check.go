package release

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v3"

	"github.com/schmitthub/devcell/internal/negotiate"
)

// NoUpdateNotifierEnv disables the background release check when set.
const NoUpdateNotifierEnv = "DEVCELL_NO_UPDATE_NOTIFIER"

// StateFileName is the cache file name inside the state directory.
const StateFileName = "update-check.yaml"

// cacheTTL is how long a cached check result is considered fresh.
const cacheTTL = 24 * time.Hour

// StateEntry is the cached update check result, persisted as YAML.
type StateEntry struct {
	CheckedAt      time.Time `yaml:"checked_at"`
	LatestVersion  string    `yaml:"latest_version"`
	LatestURL      string    `yaml:"latest_url"`
	CurrentVersion string    `yaml:"current_version"`
}

// CheckResult is returned when a newer version is available.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	ReleaseURL     string
}

// ShouldCheckForUpdate returns false if update checks should be suppressed:
//   - DEVCELL_NO_UPDATE_NOTIFIER is set
//   - CI is set
//   - currentVersion is an unreleased build
//   - the cache at stateFilePath is less than 24h old
func ShouldCheckForUpdate(stateFilePath, currentVersion string) bool {
	if os.Getenv(NoUpdateNotifierEnv) != "" {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	if negotiate.IsSnapshot(currentVersion) {
		return false
	}
	if stateFilePath != "" {
		if entry, err := readState(stateFilePath); err == nil {
			if time.Since(entry.CheckedAt) < cacheTTL {
				return false
			}
		}
	}
	return true
}

// CheckForUpdate asks GitHub for the latest release of repo.
// Returns (nil, nil) if current is latest or checks are suppressed,
// (nil, err) on API failures and a result when a newer version exists.
func (c *GitHubClient) CheckForUpdate(ctx context.Context, stateFilePath, currentVersion, repo string) (*CheckResult, error) {
	if !ShouldCheckForUpdate(stateFilePath, currentVersion) {
		return nil, nil
	}

	rel, err := c.LatestRelease(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", repo, err)
	}

	current := negotiate.Normalize(currentVersion)
	if stateFilePath != "" {
		_ = writeState(stateFilePath, StateEntry{
			CheckedAt:      time.Now(),
			LatestVersion:  rel.Version,
			LatestURL:      rel.URL,
			CurrentVersion: current,
		})
	}

	if !negotiate.Newer(rel.Version, current) {
		return nil, nil
	}
	return &CheckResult{
		CurrentVersion: current,
		LatestVersion:  rel.Version,
		ReleaseURL:     rel.URL,
	}, nil
}

// CheckForUpdate runs the check against api.github.com.
func CheckForUpdate(ctx context.Context, stateFilePath, currentVersion, repo string) (*CheckResult, error) {
	return NewGitHubClient().CheckForUpdate(ctx, stateFilePath, currentVersion, repo)
}

func readState(path string) (*StateEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry StateEntry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func writeState(path string, entry StateEntry) error {
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicwriter.WriteFile(path, data, 0o644)
}
