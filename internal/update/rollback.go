package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/schmitthub/devcell/internal/docker"
	"github.com/schmitthub/devcell/internal/logger"
	"github.com/schmitthub/devcell/internal/negotiate"
	"github.com/schmitthub/devcell/internal/progress"
	"github.com/schmitthub/devcell/internal/provenance"
)

// RollbackResult describes a finished manual rollback.
type RollbackResult struct {
	ImageID docker.LocalImageID
	// Record is the provenance now in effect.
	Record provenance.Record
	// Exact is false when no record was kept for the backup image and
	// Record was reconstructed from its labels.
	Exact bool
}

// Rollback restarts the service from the backup tag and makes the image it
// replaces the new backup, so a second rollback undoes the first.
func (o *Orchestrator) Rollback(ctx context.Context, sink progress.Sink) (*RollbackResult, error) {
	if sink == nil {
		sink = progress.Nop{}
	}
	names := o.opts.Names
	log := logger.WithField("op", "rollback")

	exists, err := o.deps.Images.Exists(ctx, names.Backup)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NoBackupError{Tag: names.Backup}
	}
	backupID, err := o.deps.Images.ID(ctx, names.Backup)
	if err != nil {
		return nil, err
	}

	p, err := o.inspectPrior(ctx)
	if err != nil {
		return nil, err
	}
	if p.imageID == backupID {
		return nil, fmt.Errorf("%s is already running the backup image %s", names.Container, backupID.Short())
	}

	var sw swapped
	undo := func(cause error) error {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RollbackTimeout)
		defer cancel()
		if !p.hasContainer() {
			return cause
		}
		if err := o.restore(rctx, p, p.imageID.String(), sw); err != nil {
			return &RollbackFailure{
				Cause:       cause,
				RollbackErr: err,
				Recovery:    recoverySteps(names.Container, p.imageID.String(), names.Canonical, o.deps.Store.Path()),
			}
		}
		return markRolledBack(cause)
	}

	if p.hasContainer() {
		h := sink.Begin("Stopping "+names.Container, progress.KindStep)
		err := o.deps.Lifecycle.Stop(ctx, names.Container)
		sink.Finish(h, err == nil)
		if err != nil {
			return nil, &SwapError{Step: StepStop, Err: err}
		}
		sw.stopped = true
		if err := o.deps.Lifecycle.Remove(ctx, names.Container); err != nil {
			return nil, undo(&SwapError{Step: StepRemove, Err: err})
		}
		sw.removed = true
	}

	h := sink.Begin("Starting "+names.Container+" from "+names.Backup, progress.KindStep)
	err = o.deps.Lifecycle.Start(ctx, names.Container, names.Backup, p.spec)
	sink.Finish(h, err == nil)
	sw.started = true
	if err != nil {
		return nil, undo(&SwapError{Step: StepStart, Err: err})
	}

	h = sink.Begin("Waiting for "+names.Container+" to become healthy", progress.KindStep)
	last, waited, err := o.waitHealthy(ctx, log)
	sink.Finish(h, err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, undo(&InterruptedError{State: "verifying", Err: ctx.Err()})
		}
		return nil, undo(&VerificationTimeout{Container: names.Container, Waited: waited, LastState: last})
	}

	// Swap canonical and backup.
	if err := o.deps.Images.Tag(ctx, backupID.String(), names.Canonical); err != nil {
		return nil, fmt.Errorf("retagging %s: %w", names.Canonical, err)
	}
	if p.imageID != "" {
		if err := o.deps.Images.Tag(ctx, p.imageID.String(), names.Backup); err != nil {
			return nil, fmt.Errorf("retagging %s: %w", names.Backup, err)
		}
	}

	res := &RollbackResult{ImageID: backupID}
	res.Record, res.Exact, err = o.backupRecord(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Store.Save(res.Record); err != nil {
		return nil, fmt.Errorf("rollback applied but recording provenance failed: %w", err)
	}
	if p.record != nil && o.deps.Previous != nil {
		if err := o.deps.Previous.Save(*p.record); err != nil {
			log.Warn().Err(err).Msg("could not record backup image provenance")
		}
	}
	log.Info().Str("version", res.Record.Version).Msg("rolled back")
	return res, nil
}

// backupRecord returns the kept record of the backup image, or one rebuilt
// from its version label when none was kept or it no longer matches.
func (o *Orchestrator) backupRecord(ctx context.Context, id docker.LocalImageID) (provenance.Record, bool, error) {
	version, err := o.deps.Images.Version(ctx, id.String())
	if err != nil {
		return provenance.Record{}, false, err
	}
	version = negotiate.Normalize(version)
	if o.deps.Previous != nil {
		rec, err := o.deps.Previous.Load()
		switch {
		case err == nil && (version == "" || rec.Version == version):
			return rec, true, nil
		case err != nil && !errors.Is(err, provenance.ErrNotFound):
			return provenance.Record{}, false, err
		}
	}
	if version == "" {
		version = "unknown"
	}
	return provenance.Built(version, o.opts.Now()), false, nil
}
