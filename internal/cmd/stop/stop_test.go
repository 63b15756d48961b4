package stop

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/devcell/internal/cmdutil"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/hostlock"
	"github.com/schmitthub/devcell/internal/iostreams/iostreamstest"
)

func TestCmdStop_Properties(t *testing.T) {
	cmd := NewCmdStop(&cmdutil.Factory{}, nil)

	assert.Equal(t, "stop", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotNil(t, cmd.RunE)

	cmd = NewCmdStop(&cmdutil.Factory{}, func(context.Context, *StopOptions) error { return nil })
	cmd.SetArgs([]string{"devcell"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	_, err := cmd.ExecuteC()
	assert.ErrorContains(t, err, "accepts no arguments")
}

type fakeStopper struct {
	stopped bool
	err     error
}

func (s *fakeStopper) Stop(context.Context) (bool, error) {
	return s.stopped, s.err
}

func testOptions(s *fakeStopper) (*StopOptions, *iostreamstest.TestIOStreams) {
	tio := iostreamstest.New()
	return &StopOptions{
		IOStreams: tio.IOStreams,
		Names: func() (config.Names, error) {
			return config.NamesFor(config.DefaultSettings(), "work"), nil
		},
		HostLock: func(context.Context) (*hostlock.Lock, error) { return nil, nil },
		Service:  func(context.Context) (Stopper, error) { return s, nil },
	}, tio
}

func TestStopRun(t *testing.T) {
	tests := []struct {
		name    string
		stopper *fakeStopper
		wantOut string
		wantErr string
	}{
		{name: "stops running", stopper: &fakeStopper{stopped: true}, wantOut: "Stopped devcell-work"},
		{name: "nothing running", stopper: &fakeStopper{}, wantOut: "devcell-work is not running"},
		{name: "docker error", stopper: &fakeStopper{err: errors.New("daemon down")}, wantErr: "stopping devcell-work: daemon down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, tio := testOptions(tt.stopper)
			err := stopRun(context.Background(), opts)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, tio.OutBuf.String(), tt.wantOut)
		})
	}
}

func TestStopRun_LockBusy(t *testing.T) {
	s := &fakeStopper{stopped: true}
	opts, _ := testOptions(s)
	opts.HostLock = func(context.Context) (*hostlock.Lock, error) {
		return nil, &hostlock.BusyError{Path: "/tmp/devcell.lock"}
	}

	var busy *hostlock.BusyError
	assert.ErrorAs(t, stopRun(context.Background(), opts), &busy)
}
