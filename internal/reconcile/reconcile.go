// Package reconcile implements the Reconciler: the top-level object owning
// one Hypervisor Domain Manager, one Service Unit Manager, one Job-Event
// Tailer, and the reboot-side rate-limited action log. It cross-drives the
// two control planes and is the only place the two independent echo
// suppression paths come together.
package reconcile

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/projecteru2/syncvirtd/internal/domain"
	"github.com/projecteru2/syncvirtd/internal/jobtail"
	"github.com/projecteru2/syncvirtd/internal/ratelog"
	"github.com/projecteru2/syncvirtd/internal/unit"
	"github.com/projecteru2/syncvirtd/internal/unitname"
	"github.com/projecteru2/syncvirtd/types"
	"golang.org/x/sync/errgroup"
)

// actionTimeout bounds the SUM calls the reconciler makes synchronously from
// within hypervisor event callbacks, which carry no context of their own.
const actionTimeout = 30 * time.Second

// Reconciler is the top-level object (R).
type Reconciler struct {
	hdm    *domain.Manager
	sum    *unit.Manager
	jet    *jobtail.Tailer
	prefix string

	// rebootRLAL is the R-held JET-side RLAL: written whenever the
	// hypervisor lifecycle callback fires, checked on reboot to avoid
	// re-issuing a restart the user already caused through systemd.
	rebootRLAL *ratelog.Log

	eventLoopAlive  atomic.Bool
	dispatcherAlive atomic.Bool
	tailAlive       atomic.Bool
}

// New constructs a Reconciler. hdm and sum must already be built; jetSource
// and templatePrefix configure the embedded Job-Event Tailer.
func New(hdm *domain.Manager, sum *unit.Manager, jetSource jobtail.Source, templatePrefix string, journalRestartDelay time.Duration, echoThreshold, echoMaxAge time.Duration) *Reconciler {
	r := &Reconciler{
		hdm:        hdm,
		sum:        sum,
		prefix:     templatePrefix,
		rebootRLAL: ratelog.New(echoThreshold, echoMaxAge),
	}
	r.jet = jobtail.New(jetSource, templatePrefix, journalRestartDelay, r.handleJobEvent)
	hdm.SetHandlers(r.handleLifecycle, r.handleReboot)
	return r
}

// Bootstrap runs the reconciler's synchronous startup sequence: it reloads
// HDM's domain-status cache from the hypervisor, seeds SUM's view of the
// world from it, and registers the hypervisor event callbacks. Errors abort
// startup.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	logger := log.WithFunc("reconcile.Bootstrap")
	if err := r.hdm.ReloadState(ctx); err != nil {
		return fmt.Errorf("failed to load initial domain state: %w", err)
	}
	if err := r.sum.SetInitialState(ctx, r.hdm.State()); err != nil {
		return fmt.Errorf("failed to set initial unit state: %w", err)
	}
	if err := r.hdm.RegisterCallbacks(ctx); err != nil {
		return fmt.Errorf("failed to register hypervisor callbacks: %w", err)
	}
	logger.Infof(ctx, "bootstrap complete, %d domains known", len(r.hdm.State()))
	return nil
}

// Run starts the hypervisor event loop, the HDM dispatcher and the JET tail
// reader, each supervised by an errgroup.Group so a goroutine's exit is
// observable by Healthy. Blocks until ctx is cancelled or one goroutine
// returns a non-nil error, at which point the group cancels the others.
func (r *Reconciler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.eventLoopAlive.Store(true)
		defer r.eventLoopAlive.Store(false)
		return r.hdm.RunEventLoop(gctx)
	})
	g.Go(func() error {
		r.dispatcherAlive.Store(true)
		defer r.dispatcherAlive.Store(false)
		return r.hdm.RunDispatcher(gctx)
	})
	g.Go(func() error {
		r.tailAlive.Store(true)
		defer r.tailAlive.Store(false)
		return r.jet.Run(gctx)
	})

	return g.Wait()
}

// Healthy reports whether every supervised goroutine is still running and
// the hypervisor connection is alive. The run command (cmd/run.go) polls
// this on a ticker and exits non-zero on the first false reading.
func (r *Reconciler) Healthy(ctx context.Context) bool {
	return r.eventLoopAlive.Load() && r.dispatcherAlive.Load() && r.tailAlive.Load() && r.hdm.IsAlive()
}

// Shutdown deregisters the hypervisor callbacks and closes both peer
// connections. Callers must call this only after Run's errgroup has
// returned (i.e. every supervised goroutine has already exited and the
// dispatcher has waited for its in-flight workers).
func (r *Reconciler) Shutdown() {
	r.hdm.Deregister()
	if err := r.hdm.CloseConnection(); err != nil {
		log.WithFunc("reconcile.Shutdown").Warnf(context.Background(), "failed to close hypervisor connection: %v", err)
	}
	if err := r.sum.Close(); err != nil {
		log.WithFunc("reconcile.Shutdown").Warnf(context.Background(), "failed to close systemd bus: %v", err)
	}
}

// StopAcceptingActions refuses further HDM enqueues. Call before cancelling
// the run context so no new action arrives while the dispatcher stops. Once
// cancelled, the dispatcher waits for its in-flight workers (whose state
// polling ends with the context) and does not run actions still queued.
func (r *Reconciler) StopAcceptingActions() {
	r.hdm.Close()
}

func (r *Reconciler) handleLifecycle(domainName string, status types.DomainStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	logger := log.WithFunc("reconcile.handleLifecycle")

	r.rebootRLAL.Record(domainName)

	var err error
	switch status {
	case types.DomainActive:
		err = r.sum.Start(ctx, domainName)
	case types.DomainInactive:
		err = r.sum.Stop(ctx, domainName)
	}
	if err != nil {
		logger.Errorf(ctx, err, "failed to reconcile unit for domain %s", domainName)
	}
}

func (r *Reconciler) handleReboot(domainName string) {
	// The violation guard prevents a user-initiated systemd restart from
	// looping via the reboot event that it will cause.
	if r.rebootRLAL.Violated(domainName) {
		log.WithFunc("reconcile.handleReboot").Debugf(context.Background(), "dropping echoed reboot for domain %s", domainName)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	if err := r.sum.Restart(ctx, domainName); err != nil {
		log.WithFunc("reconcile.handleReboot").Errorf(ctx, err, "failed to restart unit for domain %s", domainName)
	}
}

func (r *Reconciler) handleJobEvent(rec types.JobRecord) {
	domainName, ok := unitname.MatchesPrefix(rec.Unit, r.prefix)
	if !ok {
		return
	}
	switch rec.JobType {
	case types.ActionStart:
		r.hdm.Start(domainName)
	case types.ActionStop:
		r.hdm.Stop(domainName)
	case types.ActionRestart:
		r.hdm.Restart(domainName)
	default:
		panic(fmt.Sprintf("reconcile: unrecognized job type %q for unit %s", rec.JobType, rec.Unit))
	}
}
