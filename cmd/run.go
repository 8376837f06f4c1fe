package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/syncvirtd/internal/domain"
	"github.com/projecteru2/syncvirtd/internal/jobtail"
	"github.com/projecteru2/syncvirtd/internal/reconcile"
	"github.com/projecteru2/syncvirtd/internal/unit"
	"github.com/projecteru2/syncvirtd/lock/flock"
)

const healthPollInterval = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the reconciliation daemon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDaemon(cmd.Context())
	},
}

func runDaemon(ctx context.Context) error {
	logger := log.WithFunc("cmd.runDaemon")

	if err := os.MkdirAll(conf.RunDir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("failed to create run dir: %w", err)
	}

	instanceLock := flock.New(conf.LockFile())
	if err := instanceLock.Lock(ctx); err != nil {
		return fmt.Errorf("another syncvirtd instance holds %s: %w", conf.LockFile(), err)
	}
	defer func() {
		if err := instanceLock.Unlock(context.Background()); err != nil {
			logger.Warnf(ctx, "failed to release instance lock: %v", err)
		}
	}()

	conn, err := domain.NewLibvirtConnection(conf.LibvirtURI)
	if err != nil {
		return fmt.Errorf("failed to open hypervisor connection: %w", err)
	}

	hdm, err := domain.New(conn, domain.Options{
		ActionTimeout:    conf.ActionTimeout(),
		ActionCheckDelay: conf.ActionCheckDelay(),
		EchoThreshold:    conf.ActionThreshold(),
		EchoMaxAge:       conf.ActionLogMaxAge(),
		WorkerPoolSize:   conf.WorkerPoolSize,
	})
	if err != nil {
		return fmt.Errorf("failed to construct hypervisor domain manager: %w", err)
	}

	bus, err := unit.NewSystemdBus(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	sum := unit.New(bus, conf.TemplatePrefix)

	jetSource := jobtail.NewJournalctlSource(conf.TemplatePrefix)

	r := reconcile.New(hdm, sum, jetSource, conf.TemplatePrefix, conf.JournalRestartDelay(), conf.ActionThreshold(), conf.ActionLogMaxAge())

	if err := r.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap reconciler: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(runCtx) }()

	srv := &http.Server{
		Addr:              conf.HealthAddr,
		Handler:           healthzHandler(r),
		ReadHeaderTimeout: 5 * time.Second, //nolint:mnd
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf(ctx, "healthz server exited: %v", err)
		}
	}()

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	var exitErr error
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "received shutdown signal")
			break loop
		case err := <-runErr:
			exitErr = fmt.Errorf("reconciler run loop exited: %w", err)
			break loop
		case <-ticker.C:
			if !r.Healthy(ctx) {
				exitErr = errors.New("reconciler failed its health check")
				break loop
			}
		}
	}

	r.StopAcceptingActions()
	cancelRun()
	<-runErr

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf(ctx, "failed to shut down healthz server: %v", err)
	}

	r.Shutdown()

	return exitErr
}

func healthzHandler(r *reconcile.Reconciler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !r.Healthy(req.Context()) {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
