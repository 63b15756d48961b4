package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moby/moby/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)

	s, err := NewLoader(WithSettingsFile(path)).Load()
	require.NoError(t, err)

	assert.Equal(t, SourcePrebuilt, s.Image.Source)
	assert.Equal(t, DefaultRegistries, s.Image.Registries)
	assert.Equal(t, DefaultRepository, s.Image.Repository)
	assert.Equal(t, CheckAlways, s.Update.Check)
	assert.Equal(t, 10*time.Minute, s.Update.PullTimeout)
	assert.Equal(t, 60*time.Second, s.Update.HealthTimeout)
	assert.Equal(t, 2*time.Second, s.Update.HealthInterval)
	assert.True(t, s.Update.PurgeAfterUpdate)
	assert.Equal(t, DefaultContainerName, s.Container.Name)
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	content := `
image:
  source: build
  registries:
    - registry.example.com/team
update:
  check: once
  pull_timeout: 90s
  health_timeout: 30s
container:
  name: sandbox
  mounts:
    - /home/me/code:/workspace
  ports:
    - "127.0.0.1:8080:80"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := NewLoader(WithSettingsFile(path)).Load()
	require.NoError(t, err)

	assert.Equal(t, SourceBuild, s.Image.Source)
	assert.Equal(t, []string{"registry.example.com/team"}, s.Image.Registries)
	assert.Equal(t, CheckOnce, s.Update.Check)
	assert.Equal(t, 90*time.Second, s.Update.PullTimeout)
	assert.Equal(t, 30*time.Second, s.Update.HealthTimeout)
	assert.Equal(t, "sandbox", s.Container.Name)
	assert.Equal(t, []string{"/home/me/code:/workspace"}, s.Container.Mounts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	t.Setenv("DEVCELL_IMAGE_SOURCE", "build")
	t.Setenv("DEVCELL_UPDATE_CHECK", "NEVER")

	s, err := NewLoader(WithSettingsFile(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, SourceBuild, s.Image.Source)
	assert.Equal(t, CheckNever, s.Update.Check)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{name: "bad source", content: "image:\n  source: ftp\n", key: "image.source"},
		{name: "bad policy", content: "update:\n  check: sometimes\n", key: "update.check"},
		{name: "interval above timeout", content: "update:\n  health_timeout: 1s\n  health_interval: 5s\n", key: "update.health_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), SettingsFileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewLoader(WithSettingsFile(path)).Load()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.key, verr.Key)
		})
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte("container:\n  ports:\n    - \"abc:def\"\n"), 0o644))

	_, err := NewLoader(WithSettingsFile(path)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port mapping")
}

func TestWrite_PreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SettingsFileName)
	l := NewLoader(WithSettingsFile(path))

	require.NoError(t, l.Write("image.source", "build"))
	require.NoError(t, l.Write("update.check", "never"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, "build", raw["image"]["source"])
	assert.Equal(t, "never", raw["update"]["check"])

	s, err := NewLoader(WithSettingsFile(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, SourceBuild, s.Image.Source)
	assert.Equal(t, CheckNever, s.Update.Check)
}

func TestWrite_UnknownKey(t *testing.T) {
	l := NewLoader(WithSettingsFile(filepath.Join(t.TempDir(), SettingsFileName)))
	err := l.Write("image.colour", "blue")
	var knf *KeyNotFoundError
	require.ErrorAs(t, err, &knf)
	assert.Equal(t, "image.colour", knf.Key)
}

func TestWrite_RejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	l := NewLoader(WithSettingsFile(path))
	require.NoError(t, l.Write("image.source", "build"))

	err := l.Write("update.check", "sometimes")
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "update.check", valErr.Key)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sometimes")
}

func TestWrite_SplitsListValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	l := NewLoader(WithSettingsFile(path))

	require.NoError(t, l.Write("image.registries", "ghcr.io/me, docker.io/me"))

	s, err := NewLoader(WithSettingsFile(path)).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ghcr.io/me", "docker.io/me"}, s.Image.Registries)
}

func TestGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte("image:\n  source: build\n"), 0o644))
	l := NewLoader(WithSettingsFile(path))

	v, err := l.Get("image.source")
	require.NoError(t, err)
	assert.Equal(t, "build", v)

	v, err = l.Get("container.name")
	require.NoError(t, err)
	assert.Equal(t, DefaultContainerName, v)

	_, err = l.Get("nope")
	var knf *KeyNotFoundError
	assert.ErrorAs(t, err, &knf)
	assert.False(t, IsKnownKey("nope"))
	assert.Contains(t, Keys(), "update.check")
}

func TestDirs_EnvOverrides(t *testing.T) {
	t.Setenv("DEVCELL_CONFIG_DIR", "/tmp/devcell-config")
	t.Setenv("DEVCELL_STATE_DIR", "/tmp/devcell-state")

	assert.Equal(t, "/tmp/devcell-config", ConfigDir())
	assert.Equal(t, "/tmp/devcell-state", StateDir())
	assert.Equal(t, filepath.Join("/tmp/devcell-state", "logs"), LogsDir())
	assert.Equal(t, filepath.Join("/tmp/devcell-state", LockFileName), LockFilePath())
	assert.Equal(t, filepath.Join("/tmp/devcell-config", SettingsFileName), SettingsFilePath())
}

func TestDirs_XDG(t *testing.T) {
	t.Setenv("DEVCELL_CONFIG_DIR", "")
	t.Setenv("DEVCELL_STATE_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, filepath.Join("/xdg/config", "devcell"), ConfigDir())
	assert.Equal(t, filepath.Join("/xdg/state", "devcell"), StateDir())
}

func TestInstance(t *testing.T) {
	t.Setenv(InstanceEnv, "")
	name, err := Instance()
	require.NoError(t, err)
	assert.Empty(t, name)

	t.Setenv(InstanceEnv, "work")
	name, err = Instance()
	require.NoError(t, err)
	assert.Equal(t, "work", name)

	t.Setenv(InstanceEnv, "Bad Name")
	_, err = Instance()
	require.Error(t, err)
}

func TestNamesFor(t *testing.T) {
	s := DefaultSettings()

	n := NamesFor(s, "")
	assert.Equal(t, "devcell", n.Container)
	assert.Equal(t, "devcell/sandbox:current", n.Canonical)
	assert.Equal(t, "devcell/sandbox:previous", n.Backup)
	assert.Equal(t, "image-state.json", n.StateFile)
	assert.Equal(t, "image-state-previous.json", n.PreviousStateFile)

	n = NamesFor(s, "work")
	assert.Equal(t, "devcell-work", n.Container)
	assert.Equal(t, "devcell/sandbox:current-work", n.Canonical)
	assert.Equal(t, "devcell/sandbox:previous-work", n.Backup)
	assert.Equal(t, "image-state-work.json", n.StateFile)
	assert.Equal(t, "image-state-work-previous.json", n.PreviousStateFile)
}

func TestParsePorts(t *testing.T) {
	exposed, bindings, err := ParsePorts([]string{"8080:80", "127.0.0.1:2222:22/tcp"})
	require.NoError(t, err)

	p80, err := network.ParsePort("80/tcp")
	require.NoError(t, err)
	p22, err := network.ParsePort("22/tcp")
	require.NoError(t, err)

	assert.Contains(t, exposed, p80)
	assert.Contains(t, exposed, p22)
	require.Len(t, bindings[p80], 1)
	assert.Equal(t, "8080", bindings[p80][0].HostPort)
	require.Len(t, bindings[p22], 1)
	assert.Equal(t, "127.0.0.1", bindings[p22][0].HostIP.String())
	assert.Equal(t, "2222", bindings[p22][0].HostPort)
}

func TestParsePorts_Empty(t *testing.T) {
	exposed, bindings, err := ParsePorts(nil)
	require.NoError(t, err)
	assert.Empty(t, exposed)
	assert.Empty(t, bindings)
}
