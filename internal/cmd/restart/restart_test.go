package restart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams/iostreamstest"
	"github.com/schmitthub/devcell/internal/service"
)

func TestCmdRestart_Properties(t *testing.T) {
	cmd := NewCmdRestart(&cmdutil.Factory{}, nil)

	assert.Equal(t, "restart", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.Args)
}

type fakeRestarter struct {
	err    error
	called bool
}

func (r *fakeRestarter) Restart(context.Context) error {
	r.called = true
	return r.err
}

func testOptions(r *fakeRestarter) (*RestartOptions, *iostreamstest.TestIOStreams) {
	tio := iostreamstest.New()
	return &RestartOptions{
		IOStreams: tio.IOStreams,
		Names: func() (config.Names, error) {
			return config.NamesFor(config.DefaultSettings(), ""), nil
		},
		HostLock: func(context.Context) (*hostlock.Lock, error) { return nil, nil },
		Service:  func(context.Context) (Restarter, error) { return r, nil },
	}, tio
}

func TestRestartRun(t *testing.T) {
	r := &fakeRestarter{}
	opts, tio := testOptions(r)

	require.NoError(t, restartRun(context.Background(), opts))
	assert.True(t, r.called)
	assert.Contains(t, tio.OutBuf.String(), "Restarted devcell")
}

func TestRestartRun_NoImage(t *testing.T) {
	opts, _ := testOptions(&fakeRestarter{err: service.ErrNoImage})

	err := restartRun(context.Background(), opts)
	assert.ErrorIs(t, err, service.ErrNoImage)
	assert.ErrorContains(t, err, "devcell start")
}

func TestRestartRun_Error(t *testing.T) {
	opts, _ := testOptions(&fakeRestarter{err: errors.New("daemon down")})

	assert.EqualError(t, restartRun(context.Background(), opts), "restarting devcell: daemon down")
}
