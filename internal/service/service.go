// Package service starts, stops and restarts the managed container.
//
// The container runs with an unless-stopped restart policy, so the Docker
// daemon keeps it up across reboots. Generating boot units for the daemon
// itself is left to the platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
)

// DefaultStopTimeout is how long the container gets to exit on stop.
const DefaultStopTimeout = 15 * time.Second

// ErrNoImage is returned by Start when no container exists and no image has
// been acquired yet.
var ErrNoImage = errors.New("no devcell image has been acquired")

// SpecFunc returns the configuration for a newly created container.
type SpecFunc func() (docker.RunSpec, error)

// Manager controls the managed container of one instance.
type Manager struct {
	client      *docker.Client
	names       config.Names
	spec        SpecFunc
	stopTimeout time.Duration
}

// NewManager returns a Manager.
func NewManager(client *docker.Client, names config.Names, spec SpecFunc) *Manager {
	return &Manager{
		client:      client,
		names:       names,
		spec:        spec,
		stopTimeout: DefaultStopTimeout,
	}
}

// StartResult reports what Start did.
type StartResult struct {
	Created        bool
	AlreadyRunning bool
	ContainerID    string
}

// Start starts the container, creating it from the canonical image when it
// does not exist. ErrNoImage means an image must be acquired first.
func (m *Manager) Start(ctx context.Context) (*StartResult, error) {
	st, found, err := m.client.InspectContainer(ctx, m.names.Container)
	if err != nil {
		return nil, err
	}
	if found {
		if st.Running {
			return &StartResult{AlreadyRunning: true, ContainerID: st.ID}, nil
		}
		if err := m.client.StartContainer(ctx, m.names.Container); err != nil {
			return nil, err
		}
		logger.Info().Str("container", m.names.Container).Msg("started container")
		return &StartResult{ContainerID: st.ID}, nil
	}

	exists, err := m.client.ImageExists(ctx, m.names.Canonical)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoImage
	}
	spec, err := m.spec()
	if err != nil {
		return nil, fmt.Errorf("container configuration: %w", err)
	}
	id, err := m.client.RunContainer(ctx, m.names.Container, m.names.Canonical, spec)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("container", m.names.Container).Str("image", m.names.Canonical).Msg("created container")
	return &StartResult{Created: true, ContainerID: id}, nil
}

// Stop stops the container. It reports false when nothing was running.
func (m *Manager) Stop(ctx context.Context) (bool, error) {
	st, found, err := m.client.InspectContainer(ctx, m.names.Container)
	if err != nil {
		return false, err
	}
	if !found || !st.Running {
		return false, nil
	}
	if err := m.client.StopContainer(ctx, m.names.Container, m.stopTimeout); err != nil {
		return false, err
	}
	return true, nil
}

// Restart restarts a running container and starts a stopped or missing one.
func (m *Manager) Restart(ctx context.Context) error {
	st, found, err := m.client.InspectContainer(ctx, m.names.Container)
	if err != nil {
		return err
	}
	if found && st.Running {
		return m.client.RestartContainer(ctx, m.names.Container)
	}
	_, err = m.Start(ctx)
	return err
}
