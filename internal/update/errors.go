package update

import (
	"errors"
	"fmt"
	"time"

	"github.com/schmitthub/devcell/internal/docker"
)

// nextStepper is implemented by errors that carry remediation steps.
type nextStepper interface {
	NextSteps() []string
}

// Acquisition stages.
const (
	StagePull  = "pull"
	StageBuild = "build"
)

// AcquisitionError is returned when no candidate image could be obtained.
// Nothing about the running service was changed.
type AcquisitionError struct {
	Stage string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquiring image by %s: %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NextSteps returns the steps of the underlying pull or build error.
func (e *AcquisitionError) NextSteps() []string {
	var steps []string
	var ns nextStepper
	if errors.As(e.Err, &ns) {
		steps = append(steps, ns.NextSteps()...)
	}
	return append(steps, "The running container was not changed")
}

// Swap steps.
const (
	StepStop   = "stop"
	StepBackup = "backup"
	StepRemove = "remove"
	StepStart  = "start"
)

// SwapError is returned when the container swap failed.
type SwapError struct {
	Step string
	Err  error
	// RolledBack is set when the previous container was restored.
	RolledBack bool
}

func (e *SwapError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("update failed (%s), reverted to previous version: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("update failed (%s): %v", e.Step, e.Err)
}

func (e *SwapError) Unwrap() error { return e.Err }

// NextSteps returns the steps of the underlying Docker error.
func (e *SwapError) NextSteps() []string {
	var ns nextStepper
	if errors.As(e.Err, &ns) {
		return ns.NextSteps()
	}
	return nil
}

// VerificationTimeout is returned when the new container did not become
// healthy in time.
type VerificationTimeout struct {
	Container  string
	Waited     time.Duration
	LastState  docker.HealthState
	RolledBack bool
}

func (e *VerificationTimeout) Error() string {
	msg := fmt.Sprintf("container %s not healthy after %s (last state: %s)", e.Container, e.Waited.Round(time.Second), e.LastState)
	if e.RolledBack {
		return "update failed, reverted to previous version: " + msg
	}
	return msg
}

// NextSteps points at the container logs.
func (e *VerificationTimeout) NextSteps() []string {
	return []string{
		fmt.Sprintf("Inspect the new image's startup output: docker logs %s", e.Container),
	}
}

// InterruptedError is returned when the run was cancelled after the old
// container was stopped.
type InterruptedError struct {
	State      string
	Err        error
	RolledBack bool
}

func (e *InterruptedError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("update interrupted while %s, reverted to previous version", e.State)
	}
	return fmt.Sprintf("update interrupted while %s", e.State)
}

func (e *InterruptedError) Unwrap() error { return e.Err }

// RollbackFailure means the previous container could not be restored. The
// service may be stopped.
type RollbackFailure struct {
	Cause       error
	RollbackErr error
	Recovery    []string
}

func (e *RollbackFailure) Error() string {
	return fmt.Sprintf("rollback failed: %v (update failure: %v)", e.RollbackErr, e.Cause)
}

func (e *RollbackFailure) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// NextSteps returns manual recovery instructions.
func (e *RollbackFailure) NextSteps() []string {
	return e.Recovery
}

// ConfigurationError is rejected before any side effect.
type ConfigurationError struct {
	Message  string
	Guidance []string
}

func (e *ConfigurationError) Error() string { return e.Message }

// NextSteps returns the guidance lines.
func (e *ConfigurationError) NextSteps() []string { return e.Guidance }

// NoBackupError is returned by Rollback when no backup tag exists.
type NoBackupError struct {
	Tag string
}

func (e *NoBackupError) Error() string {
	return fmt.Sprintf("no backup image %s to roll back to", e.Tag)
}

// NextSteps explains where backups come from.
func (e *NoBackupError) NextSteps() []string {
	return []string{"A backup is created by 'devcell update'; nothing has been updated on this host yet"}
}

func recoverySteps(container, image, canonical, recordPath string) []string {
	steps := []string{
		fmt.Sprintf("Remove any half-started container: docker rm -f %s", container),
	}
	if image != "" {
		steps = append(steps,
			fmt.Sprintf("Restore the previous image as current: docker tag %s %s", image, canonical),
			"Then start the service again: devcell start",
		)
	} else {
		steps = append(steps, "No previous image is available; run 'devcell update --build' to rebuild")
	}
	if recordPath != "" {
		steps = append(steps, fmt.Sprintf("The provenance record at %s still describes the previous image", recordPath))
	}
	return steps
}
