package get

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/iostreams/iostreamstest"
)

func TestNewCmdGet(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantKey string
		wantErr bool
	}{
		{name: "no key", args: nil},
		{name: "key", args: []string{"image.source"}, wantKey: "image.source"},
		{name: "too many", args: []string{"a", "b"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOpts *GetOptions
			cmd := NewCmdGet(&cmdutil.Factory{}, func(_ context.Context, opts *GetOptions) error {
				gotOpts = opts
				return nil
			})
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			_, err := cmd.ExecuteC()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, gotOpts.Key)
		})
	}
}

func testOptions(t *testing.T, content string) (*GetOptions, *iostreamstest.TestIOStreams) {
	t.Helper()
	t.Setenv("DEVCELL_IMAGE_SOURCE", "")
	path := filepath.Join(t.TempDir(), config.SettingsFileName)
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	loader := config.NewLoader(config.WithSettingsFile(path))

	tio := iostreamstest.New()
	return &GetOptions{
		IOStreams: tio.IOStreams,
		Settings:  func() Reader { return loader },
	}, tio
}

func TestGetRun_Key(t *testing.T) {
	opts, tio := testOptions(t, "image:\n  source: build\n")
	opts.Key = "image.source"

	require.NoError(t, getRun(opts))
	assert.Equal(t, "build\n", tio.OutBuf.String())
}

func TestGetRun_All(t *testing.T) {
	opts, tio := testOptions(t, "")

	require.NoError(t, getRun(opts))
	out := tio.OutBuf.String()
	assert.Contains(t, out, "image.source")
	assert.Contains(t, out, "prebuilt")
	assert.Contains(t, out, "ghcr.io/schmitthub,docker.io/schmitthub")
	assert.Contains(t, tio.ErrBuf.String(), "Settings file:")
}

func TestGetRun_UnknownKey(t *testing.T) {
	opts, _ := testOptions(t, "")
	opts.Key = "image.colour"

	var knf *config.KeyNotFoundError
	assert.ErrorAs(t, getRun(opts), &knf)
}
