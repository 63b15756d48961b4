package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// HealthState is the health signal of the managed container.
type HealthState string

const (
	// HealthStarting means the healthcheck has not produced a verdict yet.
	HealthStarting HealthState = "starting"
	HealthHealthy  HealthState = "healthy"
	// HealthUnhealthy means the healthcheck reported failure.
	HealthUnhealthy HealthState = "unhealthy"
	// HealthRunning is reported for images without a healthcheck.
	HealthRunning HealthState = "running"
	// HealthExited means the container is not running.
	HealthExited HealthState = "exited"
	// HealthMissing means the container does not exist.
	HealthMissing HealthState = "missing"
)

// Ready reports whether the state counts as a verified start.
func (h HealthState) Ready() bool {
	return h == HealthHealthy || h == HealthRunning
}

// Terminal reports whether waiting longer cannot make the state ready.
func (h HealthState) Terminal() bool {
	return h == HealthUnhealthy || h == HealthExited || h == HealthMissing
}

// RunSpec is the configuration carried across swaps.
type RunSpec struct {
	Binds        []string
	Mounts       []mount.Mount
	ExposedPorts network.PortSet
	PortBindings network.PortMap
	Env          []string
	Labels       map[string]string
}

// ContainerState is the inspected state of the managed container.
type ContainerState struct {
	ID      string
	Name    string
	ImageID LocalImageID
	// ImageRef is the reference the container was created from.
	ImageRef  string
	Running   bool
	Status    string
	Health    HealthState
	StartedAt time.Time
	Spec      RunSpec
}

// InspectContainer returns the state of a container by name. The boolean is
// false when no such container exists.
func (c *Client) InspectContainer(ctx context.Context, name string) (*ContainerState, bool, error) {
	result, err := c.API.ContainerInspect(ctx, name, client.ContainerInspectOptions{})
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("inspecting container %s: %w", name, err)
	}
	info := result.Container

	st := &ContainerState{
		ID:      info.ID,
		Name:    strings.TrimPrefix(info.Name, "/"),
		ImageID: LocalImageID(info.Image),
		Health:  HealthExited,
	}
	if info.Config != nil {
		st.ImageRef = info.Config.Image
		st.Spec.Env = info.Config.Env
		st.Spec.Labels = info.Config.Labels
		st.Spec.ExposedPorts = info.Config.ExposedPorts
	}
	if info.HostConfig != nil {
		st.Spec.Binds = info.HostConfig.Binds
		st.Spec.Mounts = info.HostConfig.Mounts
		st.Spec.PortBindings = info.HostConfig.PortBindings
	}
	if info.State != nil {
		st.Running = info.State.Running
		st.Status = string(info.State.Status)
		if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			st.StartedAt = t
		}
		st.Health = healthFromState(info.State)
	}
	return st, true, nil
}

func healthFromState(s *container.State) HealthState {
	if !s.Running {
		return HealthExited
	}
	if s.Health == nil {
		return HealthRunning
	}
	switch string(s.Health.Status) {
	case "healthy":
		return HealthHealthy
	case "unhealthy":
		return HealthUnhealthy
	case "starting":
		return HealthStarting
	default:
		return HealthRunning
	}
}

// ContainerHealth returns the current health signal of a container.
func (c *Client) ContainerHealth(ctx context.Context, name string) (HealthState, error) {
	st, found, err := c.InspectContainer(ctx, name)
	if err != nil {
		return "", err
	}
	if !found {
		return HealthMissing, nil
	}
	return st.Health, nil
}

// RunContainer creates and starts a container from image. A created but
// unstartable container is removed before returning the error.
func (c *Client) RunContainer(ctx context.Context, name, image string, spec RunSpec) (string, error) {
	cfg := &container.Config{
		Image:        image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: spec.ExposedPorts,
	}
	hostCfg := &container.HostConfig{
		Binds:        spec.Binds,
		Mounts:       spec.Mounts,
		PortBindings: spec.PortBindings,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}

	created, err := c.API.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name:       name,
		Config:     cfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return "", ErrContainerCreateFailed(name, err)
	}

	if _, err := c.API.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		_, _ = c.API.ContainerRemove(context.WithoutCancel(ctx), created.ID, client.ContainerRemoveOptions{Force: true})
		return "", ErrContainerStartFailed(name, err)
	}
	return created.ID, nil
}

// StopContainer stops a container, waiting up to timeout before killing it.
// Stopping a missing or already stopped container is not an error.
func (c *Client) StopContainer(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	_, err := c.API.ContainerStop(ctx, name, client.ContainerStopOptions{Timeout: &secs})
	if err != nil && !IsNotFound(err) && !IsNotModified(err) {
		return ErrContainerStopFailed(name, err)
	}
	return nil
}

// StartContainer starts an existing stopped container.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	_, err := c.API.ContainerStart(ctx, name, client.ContainerStartOptions{})
	if err != nil && !IsNotModified(err) {
		return ErrContainerStartFailed(name, err)
	}
	return nil
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, name string) error {
	if _, err := c.API.ContainerRestart(ctx, name, client.ContainerRestartOptions{}); err != nil {
		return ErrContainerStartFailed(name, err)
	}
	return nil
}

// RemoveContainer force-removes a container. A missing container is not an
// error.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	_, err := c.API.ContainerRemove(ctx, name, client.ContainerRemoveOptions{Force: true})
	if err != nil && !IsNotFound(err) {
		return ErrContainerRemoveFailed(name, err)
	}
	return nil
}
