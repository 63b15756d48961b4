package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = CloseFileWriter()
		SetInteractiveMode(false)
		SetInstance("")
		Log = zerolog.Nop()
	})
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, CloseFileWriter())
	content, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	return string(content)
}

func TestInit_SetsLevel(t *testing.T) {
	resetLogger(t)

	Init(false)
	assert.Equal(t, zerolog.InfoLevel, Log.GetLevel())

	Init(true)
	assert.Equal(t, zerolog.DebugLevel, Log.GetLevel())
}

func TestLoggingConfig_Rotation(t *testing.T) {
	var cfg *LoggingConfig
	assert.False(t, cfg.fileEnabled(), "nil config disables file logging")

	cfg = &LoggingConfig{}
	assert.True(t, cfg.fileEnabled(), "nil FileEnabled defaults to true")
	w := cfg.rotation("/tmp/devcell.log")
	assert.Equal(t, 50, w.MaxSize)
	assert.Equal(t, 7, w.MaxAge)
	assert.Equal(t, 3, w.MaxBackups)

	off := false
	cfg = &LoggingConfig{FileEnabled: &off, MaxSizeMB: 20, MaxAgeDays: 14, MaxBackups: 5}
	assert.False(t, cfg.fileEnabled())
	w = cfg.rotation("/tmp/devcell.log")
	assert.Equal(t, 20, w.MaxSize)
	assert.Equal(t, 14, w.MaxAge)
	assert.Equal(t, 5, w.MaxBackups)
}

func TestInitWithFile_WritesJSON(t *testing.T) {
	resetLogger(t)
	dir := t.TempDir()

	require.NoError(t, InitWithFile(false, dir, &LoggingConfig{MaxSizeMB: 1}))
	assert.Equal(t, filepath.Join(dir, LogFileName), FilePath())

	SetInstance("work")
	Info().Msg("acquired image")
	log := WithField("update_id", "abc")
	log.Info().Msg("swapped")

	out := readLog(t, dir)
	assert.Contains(t, out, "acquired image")
	assert.Contains(t, out, `"instance":"work"`)
	assert.Contains(t, out, `"update_id":"abc"`)
}

func TestInitWithFile_Disabled(t *testing.T) {
	resetLogger(t)

	off := false
	require.NoError(t, InitWithFile(false, "/some/path", &LoggingConfig{FileEnabled: &off}))
	assert.Empty(t, FilePath())
}

func TestInitWithFile_EmptyDir(t *testing.T) {
	resetLogger(t)

	require.NoError(t, InitWithFile(false, "", &LoggingConfig{}))
	assert.Empty(t, FilePath())
}

func TestInteractiveMode_FileOnly(t *testing.T) {
	resetLogger(t)
	dir := t.TempDir()
	require.NoError(t, InitWithFile(false, dir, &LoggingConfig{}))

	SetInteractiveMode(true)
	Warn().Msg("suppressed on console")

	assert.Contains(t, readLog(t, dir), "suppressed on console",
		"interactive mode must still write to the log file")
}

func TestInteractiveMode_NoFile(t *testing.T) {
	resetLogger(t)
	Init(false)

	SetInteractiveMode(true)
	assert.Nil(t, Info())
	assert.Nil(t, Debug(), "debug is below the info level")
}
