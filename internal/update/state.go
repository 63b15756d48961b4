package update

import (
	"fmt"
	"time"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/provenance"
	"github.com/schmitthub/devcell/internal/registry"
)

// State is one step of the update pipeline. The concrete types carry what
// the step needs, and the fields that make a step reachable (an acquired
// image, a swapped container) can only be produced by the step before it.
type State interface {
	Name() string
	state()
}

// Idle is terminal: the run is over with Result or Err.
type Idle struct {
	Result *Result
	Err    error
}

// ComputingPlan inspects the host and runs the negotiator.
type ComputingPlan struct{}

// Acquiring pulls or builds the candidate image.
type Acquiring struct {
	Plan  negotiate.Plan
	prior prior
}

// Swapping replaces the running container.
type Swapping struct {
	Plan      negotiate.Plan
	prior     prior
	candidate candidate
}

// Verifying waits for the new container's health signal.
type Verifying struct {
	Plan      negotiate.Plan
	prior     prior
	candidate candidate
	swap      swapped
}

// Committed records provenance for a verified swap.
type Committed struct {
	Plan      negotiate.Plan
	prior     prior
	candidate candidate
	swap      swapped
}

// RollingBack restores the pre-swap container after a failed swap.
type RollingBack struct {
	Cause error
	prior prior
	swap  swapped
}

func (Idle) Name() string          { return "idle" }
func (ComputingPlan) Name() string { return "computing-plan" }
func (Acquiring) Name() string     { return "acquiring" }
func (Swapping) Name() string      { return "swapping" }
func (Verifying) Name() string     { return "verifying" }
func (Committed) Name() string     { return "committed" }
func (RollingBack) Name() string   { return "rolling-back" }

func (Idle) state()          {}
func (ComputingPlan) state() {}
func (Acquiring) state()     {}
func (Swapping) state()      {}
func (Verifying) state()     {}
func (Committed) state()     {}
func (RollingBack) state()   {}

// prior is the host as found before anything changed.
type prior struct {
	container *docker.ContainerState
	// imageID backs the running container, or the canonical tag when no
	// container exists. Empty on a fresh host.
	imageID   docker.LocalImageID
	installed string
	spec      docker.RunSpec
	record    *provenance.Record
}

func (p prior) hasContainer() bool { return p.container != nil }

// candidate is a fully acquired image behind the canonical tag.
type candidate struct {
	id       docker.LocalImageID
	record   provenance.Record
	attempts []registry.Attempt
	fellBack bool
}

// swapped tracks what the swap changed so rollback can undo exactly that.
type swapped struct {
	stopped  bool
	backedUp bool
	removed  bool
	started  bool
}

// Outcome summarizes a finished run.
type Outcome int

const (
	// OutcomeAlreadyCurrent means nothing was changed.
	OutcomeAlreadyCurrent Outcome = iota
	// OutcomeUpdated means a new image is running and recorded.
	OutcomeUpdated
	// OutcomeDevImage means the installed image is a local dev build and
	// was left alone.
	OutcomeDevImage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyCurrent:
		return "already-current"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDevImage:
		return "dev-image"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes a run that ended without error.
type Result struct {
	Outcome Outcome
	Plan    negotiate.Plan
	// Previous is the record before the run, nil on a fresh host.
	Previous *provenance.Record
	// Record is the committed record. Equal to *Previous when nothing changed.
	Record    provenance.Record
	ImageID   docker.LocalImageID
	BackupTag string
	Attempts  []registry.Attempt
	// FellBack is set when every registry failed and the image was built.
	FellBack bool
	// Reclaimed is the space freed by purging dangling images, in bytes.
	Reclaimed uint64
	Duration  time.Duration
}
