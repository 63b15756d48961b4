// Package update moves the managed container from one image to another.
//
// A run walks an explicit state machine: ComputingPlan, Acquiring,
// Swapping, Verifying, then Committed or RollingBack, ending in Idle. Each
// state is its own type and the step functions only accept the state they
// handle, so a swap without an acquired image cannot be expressed.
//
// The orchestrator never formats for display. Errors carry the context the
// command layer needs (stage, attempts, log tail, recovery steps).
package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/schmitthub/devcell/internal/build"
	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/provenance"
	"github.com/schmitthub/devcell/internal/registry"
)

// RollbackTimeout bounds an automatic rollback, which runs detached from the
// caller's context so an interrupt cannot abandon it halfway.
const RollbackTimeout = 2 * time.Minute

// Lifecycle is the container lifecycle collaborator.
type Lifecycle interface {
	Inspect(ctx context.Context, name string) (*docker.ContainerState, bool, error)
	Stop(ctx context.Context, name string) error
	// Start creates and starts a container named name from image.
	Start(ctx context.Context, name, image string, spec docker.RunSpec) error
	Remove(ctx context.Context, name string) error
	Health(ctx context.Context, name string) (docker.HealthState, error)
}

// Images is the local image store.
type Images interface {
	Exists(ctx context.Context, ref string) (bool, error)
	ID(ctx context.Context, ref string) (docker.LocalImageID, error)
	Version(ctx context.Context, ref string) (string, error)
	Tag(ctx context.Context, source, target string) error
	Untag(ctx context.Context, ref string) error
	Purge(ctx context.Context) (uint64, error)
}

// Config is the configuration collaborator.
type Config interface {
	ImageSource() config.ImageSource
	CheckPolicy() config.CheckPolicy
	// RunSpec is the container configuration used when no container exists
	// to copy it from.
	RunSpec() (docker.RunSpec, error)
}

// Puller acquires images from registries.
type Puller interface {
	AcquireByPull(ctx context.Context, ref docker.ImageRef, sink progress.Sink) (*registry.Result, error)
}

// Builder acquires images by building them.
type Builder interface {
	AcquireByBuild(ctx context.Context, spec build.Spec, useCache bool, sink progress.Sink) (docker.LocalImageID, error)
}

// LatestLookup finds the newest published image version.
type LatestLookup interface {
	LatestVersion(ctx context.Context) (version, registry string, err error)
}

// ProvenanceStore persists a provenance record.
type ProvenanceStore interface {
	Load() (provenance.Record, error)
	Save(provenance.Record) error
	Path() string
}

// Deps are the collaborators of an Orchestrator. Latest and Previous are
// optional.
type Deps struct {
	Lifecycle Lifecycle
	Images    Images
	Puller    Puller
	Builder   Builder
	Latest    LatestLookup
	Config    Config
	Store     ProvenanceStore
	// Previous keeps the record of the image behind the backup tag.
	Previous ProvenanceStore
	Session  *negotiate.Session
}

// Options are the fixed parameters of an Orchestrator.
type Options struct {
	CLIVersion string
	Names      config.Names
	// ImageName is the remote repository under every registry namespace.
	ImageName      string
	HealthTimeout  time.Duration
	HealthInterval time.Duration
	Purge          bool
	// Spec is the build definition; the embedded one when empty.
	Spec build.Spec
	// OnTransition is called on entering every state.
	OnTransition func(State)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Request is one update invocation.
type Request struct {
	Force            negotiate.Force
	SkipVersionCheck bool
	Sink             progress.Sink
}

// Orchestrator runs updates and rollbacks for one instance.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New returns an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = config.DefaultHealthTimeout
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = config.DefaultHealthInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Session == nil {
		deps.Session = negotiate.NewSession()
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// run carries what every step shares.
type run struct {
	req     Request
	sink    progress.Sink
	log     zerolog.Logger
	started time.Time
}

// Run performs one update. It blocks until the pipeline is back in Idle.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		req:     req,
		sink:    req.Sink,
		log:     logger.WithField("update_id", uuid.NewString()),
		started: o.opts.Now(),
	}
	if r.sink == nil {
		r.sink = progress.Nop{}
	}

	var st State = ComputingPlan{}
	for {
		if o.opts.OnTransition != nil {
			o.opts.OnTransition(st)
		}
		r.log.Debug().Str("state", st.Name()).Msg("update state")

		switch s := st.(type) {
		case ComputingPlan:
			st = o.computePlan(ctx, r)
		case Acquiring:
			st = o.acquire(ctx, r, s)
		case Swapping:
			st = o.swap(ctx, r, s)
		case Verifying:
			st = o.verify(ctx, r, s)
		case Committed:
			st = o.commit(ctx, r, s)
		case RollingBack:
			st = o.rollback(ctx, r, s)
		case Idle:
			if s.Result != nil {
				s.Result.Duration = o.opts.Now().Sub(r.started)
			}
			return s.Result, s.Err
		default:
			panic(fmt.Sprintf("update: unhandled state %T", st))
		}
	}
}

func (o *Orchestrator) computePlan(ctx context.Context, r *run) State {
	p, err := o.inspectPrior(ctx)
	if err != nil {
		return Idle{Err: err}
	}

	cli := negotiate.Normalize(o.opts.CLIVersion)
	var latest string
	if negotiate.IsSnapshot(cli) && o.deps.Latest != nil {
		v, reg, err := o.deps.Latest.LatestVersion(ctx)
		if err != nil {
			r.log.Debug().Err(err).Msg("latest published version unavailable")
		} else {
			r.log.Debug().Str("version", v).Str("registry", reg).Msg("latest published version")
			latest = v
		}
	}

	plan := negotiate.Decide(negotiate.Input{
		CLIVersion:       cli,
		InstalledVersion: p.installed,
		LatestPublished:  latest,
		ConfiguredSource: o.deps.Config.ImageSource(),
		Policy:           o.deps.Config.CheckPolicy(),
		Seen:             o.deps.Session,
		Force:            r.req.Force,
		SkipVersionCheck: r.req.SkipVersionCheck,
	})
	if plan.Warning != "" {
		o.deps.Session.Observe(plan.WarningKey)
	}

	unchanged := func(outcome Outcome) State {
		res := &Result{Outcome: outcome, Plan: plan, Previous: p.record, ImageID: p.imageID}
		if p.record != nil {
			res.Record = *p.record
		}
		return Idle{Result: res}
	}
	if p.installed == negotiate.DevVersion && r.req.Force == negotiate.ForceNone {
		r.log.Info().Msg("installed image is a dev build; not updating")
		return unchanged(OutcomeDevImage)
	}
	if !plan.UpdateNeeded {
		return unchanged(OutcomeAlreadyCurrent)
	}
	return Acquiring{Plan: plan, prior: p}
}

// inspectPrior captures the host state before anything changes.
func (o *Orchestrator) inspectPrior(ctx context.Context) (prior, error) {
	names := o.opts.Names
	var p prior

	cs, found, err := o.deps.Lifecycle.Inspect(ctx, names.Container)
	if err != nil {
		return p, err
	}
	if found {
		p.container = cs
		p.imageID = cs.ImageID
		p.spec = cs.Spec
	} else {
		exists, err := o.deps.Images.Exists(ctx, names.Canonical)
		if err != nil {
			return p, err
		}
		if exists {
			if p.imageID, err = o.deps.Images.ID(ctx, names.Canonical); err != nil {
				return p, err
			}
		}
		if p.spec, err = o.deps.Config.RunSpec(); err != nil {
			return p, err
		}
	}

	if p.imageID != "" {
		if p.installed, err = o.deps.Images.Version(ctx, p.imageID.String()); err != nil {
			return p, err
		}
	}

	rec, err := o.deps.Store.Load()
	switch {
	case err == nil:
		p.record = &rec
	case errors.Is(err, provenance.ErrNotFound):
	default:
		return p, err
	}
	return p, nil
}

func (o *Orchestrator) acquire(ctx context.Context, r *run, s Acquiring) State {
	var (
		c   candidate
		err error
	)
	if s.Plan.RequiresBuild {
		c, err = o.acquireByBuild(ctx, s.Plan.UseCache, r.sink)
	} else {
		c, err = o.acquireByPull(ctx, r, s.Plan)
	}
	if err != nil {
		// Nothing running was touched.
		return Idle{Err: err}
	}
	return Swapping{Plan: s.Plan, prior: s.prior, candidate: c}
}

func (o *Orchestrator) acquireByPull(ctx context.Context, r *run, plan negotiate.Plan) (candidate, error) {
	ref := docker.ImageRef{Repository: o.opts.ImageName, Tag: plan.TargetVersion}
	res, err := o.deps.Puller.AcquireByPull(ctx, ref, r.sink)
	if err != nil {
		var exhausted *registry.ExhaustedError
		if ctx.Err() == nil && plan.FallbackAllowed && errors.As(err, &exhausted) {
			r.log.Warn().Err(err).Msg("every registry failed, building from source instead")
			c, berr := o.acquireByBuild(ctx, true, r.sink)
			if berr != nil {
				return candidate{}, berr
			}
			c.attempts = exhausted.Attempts
			c.fellBack = true
			return c, nil
		}
		return candidate{}, &AcquisitionError{Stage: StagePull, Err: err}
	}

	version, err := o.labelVersion(ctx, plan.TargetVersion)
	if err != nil {
		return candidate{}, &AcquisitionError{Stage: StagePull, Err: err}
	}
	return candidate{
		id:       res.ID,
		record:   provenance.Prebuilt(version, res.Registry, o.opts.Now()),
		attempts: res.Attempts,
	}, nil
}

func (o *Orchestrator) acquireByBuild(ctx context.Context, useCache bool, sink progress.Sink) (candidate, error) {
	spec := o.opts.Spec
	if len(spec.Files) == 0 {
		var err error
		if spec, err = build.EmbeddedSpec(); err != nil {
			return candidate{}, &AcquisitionError{Stage: StageBuild, Err: err}
		}
	}
	id, err := o.deps.Builder.AcquireByBuild(ctx, spec, useCache, sink)
	if err != nil {
		return candidate{}, &AcquisitionError{Stage: StageBuild, Err: err}
	}
	version, err := o.labelVersion(ctx, negotiate.Normalize(o.opts.CLIVersion))
	if err != nil {
		return candidate{}, &AcquisitionError{Stage: StageBuild, Err: err}
	}
	return candidate{id: id, record: provenance.Built(version, o.opts.Now())}, nil
}

// labelVersion reads the version label of the canonical image, falling
// back when the image carries none.
func (o *Orchestrator) labelVersion(ctx context.Context, fallback string) (string, error) {
	v, err := o.deps.Images.Version(ctx, o.opts.Names.Canonical)
	if err != nil {
		return "", err
	}
	if v == "" {
		return fallback, nil
	}
	return negotiate.Normalize(v), nil
}

func (o *Orchestrator) swap(ctx context.Context, r *run, s Swapping) State {
	names := o.opts.Names
	var sw swapped
	fail := func(step string, err error) State {
		if ctx.Err() != nil {
			err = &InterruptedError{State: "swapping", Err: ctx.Err()}
		} else {
			err = &SwapError{Step: step, Err: err}
		}
		if !sw.stopped && !sw.started {
			// The old container was never touched; only the canonical tag
			// moved during acquisition.
			if rerr := o.restoreCanonical(ctx, s.prior); rerr != nil {
				r.log.Warn().Err(rerr).Msg("could not restore canonical tag")
			}
			return Idle{Err: err}
		}
		return RollingBack{Cause: err, prior: s.prior, swap: sw}
	}

	if s.prior.hasContainer() {
		h := r.sink.Begin("Stopping "+names.Container, progress.KindStep)
		err := o.deps.Lifecycle.Stop(ctx, names.Container)
		r.sink.Finish(h, err == nil)
		if err != nil {
			return fail(StepStop, err)
		}
		sw.stopped = true
	}

	if s.prior.imageID != "" {
		if err := o.tagBackup(ctx, s.prior.imageID); err != nil {
			return fail(StepBackup, err)
		}
		sw.backedUp = true
		r.log.Debug().Str("image", s.prior.imageID.Short()).Str("tag", names.Backup).Msg("backup tagged")
	}

	if s.prior.hasContainer() {
		if err := o.deps.Lifecycle.Remove(ctx, names.Container); err != nil {
			return fail(StepRemove, err)
		}
		sw.removed = true
	}

	h := r.sink.Begin("Starting "+names.Container, progress.KindStep)
	err := o.deps.Lifecycle.Start(ctx, names.Container, names.Canonical, s.prior.spec)
	r.sink.Finish(h, err == nil)
	sw.started = true
	if err != nil {
		return fail(StepStart, err)
	}
	return Verifying{Plan: s.Plan, prior: s.prior, candidate: s.candidate, swap: sw}
}

// restoreCanonical points the canonical tag back at the prior image.
func (o *Orchestrator) restoreCanonical(ctx context.Context, p prior) error {
	if p.imageID == "" {
		return nil
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
	defer cancel()
	return o.deps.Images.Tag(rctx, p.imageID.String(), o.opts.Names.Canonical)
}

// tagBackup points the backup tag at id, removing the previous backup first.
func (o *Orchestrator) tagBackup(ctx context.Context, id docker.LocalImageID) error {
	backup := o.opts.Names.Backup
	exists, err := o.deps.Images.Exists(ctx, backup)
	if err != nil {
		return err
	}
	if exists {
		current, err := o.deps.Images.ID(ctx, backup)
		if err != nil {
			return err
		}
		if current == id {
			return nil
		}
		if err := o.deps.Images.Untag(ctx, backup); err != nil {
			return err
		}
	}
	return o.deps.Images.Tag(ctx, id.String(), backup)
}

func (o *Orchestrator) verify(ctx context.Context, r *run, s Verifying) State {
	h := r.sink.Begin("Waiting for "+o.opts.Names.Container+" to become healthy", progress.KindStep)
	last, waited, err := o.waitHealthy(ctx, r.log)
	r.sink.Finish(h, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			err = &InterruptedError{State: "verifying", Err: ctx.Err()}
		} else {
			err = &VerificationTimeout{Container: o.opts.Names.Container, Waited: waited, LastState: last}
		}
		return RollingBack{Cause: err, prior: s.prior, swap: s.swap}
	}
	return Committed{Plan: s.Plan, prior: s.prior, candidate: s.candidate, swap: s.swap}
}

var errNotHealthy = errors.New("container not healthy")

// waitHealthy polls the health signal at a fixed interval until it is ready,
// terminal or the window closes.
func (o *Orchestrator) waitHealthy(ctx context.Context, log zerolog.Logger) (docker.HealthState, time.Duration, error) {
	start := o.opts.Now()
	deadline := time.NewTimer(o.opts.HealthTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.opts.HealthInterval)
	defer ticker.Stop()

	last := docker.HealthStarting
	for {
		state, err := o.deps.Lifecycle.Health(ctx, o.opts.Names.Container)
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("health check failed")
		case state.Ready():
			return state, o.opts.Now().Sub(start), nil
		case state.Terminal():
			return state, o.opts.Now().Sub(start), errNotHealthy
		default:
			last = state
		}

		select {
		case <-ctx.Done():
			return last, o.opts.Now().Sub(start), ctx.Err()
		case <-deadline.C:
			return last, o.opts.HealthTimeout, errNotHealthy
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) commit(ctx context.Context, r *run, s Committed) State {
	if s.prior.record != nil && o.deps.Previous != nil {
		if err := o.deps.Previous.Save(*s.prior.record); err != nil {
			r.log.Warn().Err(err).Msg("could not record backup image provenance")
		}
	}
	if err := o.deps.Store.Save(s.candidate.record); err != nil {
		return Idle{Err: fmt.Errorf("update applied but recording provenance failed: %w", err)}
	}

	res := &Result{
		Outcome:  OutcomeUpdated,
		Plan:     s.Plan,
		Previous: s.prior.record,
		Record:   s.candidate.record,
		ImageID:  s.candidate.id,
		Attempts: s.candidate.attempts,
		FellBack: s.candidate.fellBack,
	}
	if s.swap.backedUp {
		res.BackupTag = o.opts.Names.Backup
	}
	if o.opts.Purge {
		reclaimed, err := o.deps.Images.Purge(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("purging dangling images failed")
		}
		res.Reclaimed = reclaimed
	}
	r.log.Info().
		Str("version", s.candidate.record.Version).
		Str("source", s.candidate.record.Describe()).
		Msg("update committed")
	return Idle{Result: res}
}

func (o *Orchestrator) rollback(ctx context.Context, r *run, s RollingBack) State {
	names := o.opts.Names
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
	defer cancel()

	r.log.Warn().Err(s.Cause).Msg("rolling back")
	if !s.prior.hasContainer() {
		// Fresh host: nothing to restart, only clear out the failed container.
		if err := o.restore(rctx, s.prior, s.prior.imageID.String(), s.swap); err != nil {
			r.log.Warn().Err(err).Msg("cleanup after failed install")
		}
		return Idle{Err: s.Cause}
	}
	h := r.sink.Begin("Restoring previous version", progress.KindStep)

	restoreRef := s.prior.imageID.String()
	if s.swap.backedUp {
		restoreRef = names.Backup
	}
	err := o.restore(rctx, s.prior, restoreRef, s.swap)
	r.sink.Finish(h, err == nil)
	if err != nil {
		return Idle{Err: &RollbackFailure{
			Cause:       s.Cause,
			RollbackErr: err,
			Recovery:    recoverySteps(names.Container, restoreRef, names.Canonical, o.deps.Store.Path()),
		}}
	}
	return Idle{Err: markRolledBack(s.Cause)}
}

// restore puts the pre-swap container back from ref.
func (o *Orchestrator) restore(ctx context.Context, p prior, ref string, sw swapped) error {
	names := o.opts.Names
	// A stopped but not yet removed container still holds the name.
	if sw.stopped || sw.started {
		if err := o.deps.Lifecycle.Remove(ctx, names.Container); err != nil {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	if p.imageID != "" {
		if err := o.deps.Images.Tag(ctx, ref, names.Canonical); err != nil {
			return fmt.Errorf("restoring %s: %w", names.Canonical, err)
		}
	}
	if !p.hasContainer() {
		return nil
	}
	if ref == "" {
		return errors.New("no previous image to restore")
	}
	if err := o.deps.Lifecycle.Start(ctx, names.Container, ref, p.spec); err != nil {
		return fmt.Errorf("starting previous container: %w", err)
	}
	return nil
}

func markRolledBack(err error) error {
	var swapErr *SwapError
	var timeout *VerificationTimeout
	var interrupted *InterruptedError
	switch {
	case errors.As(err, &swapErr):
		swapErr.RolledBack = true
	case errors.As(err, &timeout):
		timeout.RolledBack = true
	case errors.As(err, &interrupted):
		interrupted.RolledBack = true
	}
	return err
}
