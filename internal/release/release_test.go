package release

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearUpdateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{NoUpdateNotifierEnv, "CI"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func newReleaseServer(t *testing.T, tag string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/schmitthub/devcell/releases/latest", r.URL.Path)
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name": tag,
			"html_url": "https://github.com/schmitthub/devcell/releases/tag/" + tag,
			"assets": []map[string]any{
				{"name": "devcell_linux_amd64", "browser_download_url": "https://example.test/devcell_linux_amd64", "size": 1024},
				{"name": "devcell_windows_amd64.exe", "browser_download_url": "https://example.test/devcell.exe", "size": 2048},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestShouldCheckForUpdate_Suppressed(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		version string
		want    bool
	}{
		{name: "notifier disabled", envVars: map[string]string{NoUpdateNotifierEnv: "1"}, version: "1.0.0", want: false},
		{name: "CI", envVars: map[string]string{"CI": "true"}, version: "1.0.0", want: false},
		{name: "dev build", version: "dev", want: false},
		{name: "pre-release build", version: "1.1.0-rc.1", want: false},
		{name: "allowed", version: "1.0.0", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearUpdateEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, ShouldCheckForUpdate("", tt.version))
		})
	}
}

func TestShouldCheckForUpdate_Cache(t *testing.T) {
	clearUpdateEnv(t)
	stateFile := filepath.Join(t.TempDir(), StateFileName)

	require.NoError(t, writeState(stateFile, StateEntry{CheckedAt: time.Now(), LatestVersion: "1.0.0"}))
	assert.False(t, ShouldCheckForUpdate(stateFile, "1.0.0"), "fresh cache")

	require.NoError(t, writeState(stateFile, StateEntry{CheckedAt: time.Now().Add(-25 * time.Hour), LatestVersion: "1.0.0"}))
	assert.True(t, ShouldCheckForUpdate(stateFile, "1.0.0"), "stale cache")
}

func TestCheckForUpdate(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		current string
		want    *CheckResult
	}{
		{
			name:    "newer release",
			tag:     "v2.0.0",
			current: "1.0.0",
			want: &CheckResult{
				CurrentVersion: "1.0.0",
				LatestVersion:  "2.0.0",
				ReleaseURL:     "https://github.com/schmitthub/devcell/releases/tag/v2.0.0",
			},
		},
		{
			name:    "v prefix on current",
			tag:     "v2.0.0",
			current: "v1.0.0",
			want: &CheckResult{
				CurrentVersion: "1.0.0",
				LatestVersion:  "2.0.0",
				ReleaseURL:     "https://github.com/schmitthub/devcell/releases/tag/v2.0.0",
			},
		},
		{name: "same version", tag: "v1.0.0", current: "1.0.0"},
		{name: "older remote", tag: "v0.9.0", current: "1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearUpdateEnv(t)
			srv := newReleaseServer(t, tt.tag)
			stateFile := filepath.Join(t.TempDir(), StateFileName)

			got, err := NewGitHubClient(WithBaseURL(srv.URL)).CheckForUpdate(context.Background(), stateFile, tt.current, DefaultRepo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckForUpdate_WritesYAMLCache(t *testing.T) {
	clearUpdateEnv(t)
	srv := newReleaseServer(t, "v2.0.0")
	stateFile := filepath.Join(t.TempDir(), "nested", StateFileName)

	_, err := NewGitHubClient(WithBaseURL(srv.URL)).CheckForUpdate(context.Background(), stateFile, "1.0.0", DefaultRepo)
	require.NoError(t, err)

	data, err := os.ReadFile(stateFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "checked_at:")
	assert.Contains(t, string(data), "latest_version: 2.0.0")
	assert.NotContains(t, string(data), `"checked_at"`)

	entry, err := readState(stateFile)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", entry.CurrentVersion)
	assert.WithinDuration(t, time.Now(), entry.CheckedAt, time.Minute)

	assert.False(t, ShouldCheckForUpdate(stateFile, "1.0.0"))
}

func TestCheckForUpdate_APIError(t *testing.T) {
	clearUpdateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	got, err := NewGitHubClient(WithBaseURL(srv.URL)).CheckForUpdate(context.Background(), "", "1.0.0", DefaultRepo)
	require.Error(t, err)
	assert.Nil(t, got)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
}

func TestLatestRelease_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rel, err := NewGitHubClient(WithBaseURL(srv.URL)).LatestRelease(ctx, DefaultRepo)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, rel)
}

func TestLatestRelease_Assets(t *testing.T) {
	srv := newReleaseServer(t, "v3.1.4")

	rel, err := NewGitHubClient(WithBaseURL(srv.URL)).LatestRelease(context.Background(), DefaultRepo)
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", rel.Version)

	a, ok := rel.AssetFor("linux", "amd64")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/devcell_linux_amd64", a.DownloadURL)

	a, ok = rel.AssetFor("windows", "amd64")
	require.True(t, ok)
	assert.Equal(t, "devcell_windows_amd64.exe", a.Name)

	_, ok = rel.AssetFor("darwin", "arm64")
	assert.False(t, ok)
}

func TestNPMClient_LatestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/devcell":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name":      "devcell",
				"dist-tags": map[string]string{"latest": "3.1.4", "next": "3.2.0-rc.1"},
			})
		case "/untagged":
			_ = json.NewEncoder(w).Encode(map[string]any{"name": "untagged", "dist-tags": map[string]string{}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewNPMClient(WithBaseURL(srv.URL))

	v, err := c.LatestVersion(context.Background(), NPMPackage)
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", v)

	tags, err := c.FetchDistTags(context.Background(), NPMPackage)
	require.NoError(t, err)
	assert.Equal(t, "3.2.0-rc.1", tags["next"])

	_, err = c.LatestVersion(context.Background(), "untagged")
	assert.ErrorContains(t, err, "no latest dist-tag")

	_, err = c.LatestVersion(context.Background(), "missing")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("binary-bytes"))
	}))
	t.Cleanup(srv.Close)

	client := NewGitHubClient()
	body, err := client.Download(context.Background(), Asset{Name: "devcell_linux_amd64", DownloadURL: srv.URL + "/devcell_linux_amd64"})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(data))

	_, err = client.Download(context.Background(), Asset{Name: "devcell_linux_amd64"})
	assert.ErrorContains(t, err, "no download url")
}
