package docker

import (
	"errors"
	"fmt"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
)

// DockerError represents a user-friendly Docker error with remediation steps.
// It wraps underlying Docker SDK errors with context and actionable guidance.
type DockerError struct {
	Op      string // Operation that failed (e.g., "connect", "start")
	Err     error
	Message string
	Steps   []string
}

func (e *DockerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NextSteps returns suggested remediation steps.
func (e *DockerError) NextSteps() []string {
	return e.Steps
}

// ErrDockerNotRunning returns an error for when Docker daemon is not accessible.
func ErrDockerNotRunning(err error) *DockerError {
	return &DockerError{
		Op:      "connect",
		Err:     err,
		Message: "Cannot connect to Docker daemon",
		Steps: []string{
			"Ensure Docker is installed",
			"Start Docker Desktop (macOS/Windows) or run 'sudo systemctl start docker' (Linux)",
			"Check if Docker socket is accessible: ls -la /var/run/docker.sock",
			"Verify your user is in the docker group: groups $USER",
		},
	}
}

// ErrContainerCreateFailed returns an error for when container creation fails.
func ErrContainerCreateFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "create",
		Err:     err,
		Message: fmt.Sprintf("Failed to create container '%s'", name),
		Steps: []string{
			"Check that the configured mount paths exist on the host",
			"Check that the configured host ports are free",
		},
	}
}

// ErrContainerStartFailed returns an error for when container start fails.
func ErrContainerStartFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "start",
		Err:     err,
		Message: fmt.Sprintf("Failed to start container '%s'", name),
		Steps: []string{
			"Check container logs: docker logs " + name,
			"Check that the configured host ports are free",
		},
	}
}

// ErrContainerStopFailed returns an error for when container stop fails.
func ErrContainerStopFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "stop",
		Err:     err,
		Message: fmt.Sprintf("Failed to stop container '%s'", name),
		Steps: []string{
			"Force stop the container: docker kill " + name,
		},
	}
}

// ErrContainerRemoveFailed returns an error for when container removal fails.
func ErrContainerRemoveFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "remove",
		Err:     err,
		Message: fmt.Sprintf("Failed to remove container '%s'", name),
		Steps: []string{
			"Force remove the container: docker rm -f " + name,
		},
	}
}

// ErrImagesPruneFailed returns an error for when pruning images fails.
func ErrImagesPruneFailed(err error) *DockerError {
	return &DockerError{
		Op:      "prune",
		Err:     err,
		Message: "Failed to prune unused images",
		Steps: []string{
			"Prune manually: docker image prune",
		},
	}
}

// IsNotFound reports whether err means the image or container does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if cerrdefs.IsNotFound(err) {
		return true
	}
	var dockerErr *DockerError
	if errors.As(err, &dockerErr) && dockerErr.Err != nil {
		return IsNotFound(dockerErr.Err)
	}
	return strings.Contains(err.Error(), "No such")
}

// IsConflict reports whether err is a daemon conflict (e.g. name in use,
// image referenced by a container).
func IsConflict(err error) bool {
	return err != nil && cerrdefs.IsConflict(err)
}

// IsNotModified reports whether a start/stop was a no-op.
func IsNotModified(err error) bool {
	return err != nil && cerrdefs.IsNotModified(err)
}
