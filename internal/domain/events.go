package domain

import (
	"context"

	"github.com/projecteru2/core/log"
	"github.com/projecteru2/syncvirtd/types"
)

// RegisterCallbacks registers the hypervisor lifecycle and reboot callbacks
// against every domain. Must be called after SetHandlers. Each callback
// refreshes the cache before fanning out to the reconciler's handler, per
// the domain manager's cache invariant.
func (m *Manager) RegisterCallbacks(ctx context.Context) error {
	logger := log.WithFunc("domain.RegisterCallbacks")
	lifecycleID, err := m.conn.RegisterLifecycleCallback(func(domainName string, event LifecycleEvent) {
		m.handleLifecycle(ctx, domainName, event)
	})
	if err != nil {
		return err
	}
	m.lifecycleHandle = lifecycleID

	rebootID, err := m.conn.RegisterRebootCallback(func(domainName string) {
		m.handleReboot(ctx, domainName)
	})
	if err != nil {
		return err
	}
	m.rebootHandle = rebootID
	logger.Infof(ctx, "registered lifecycle and reboot callbacks")
	return nil
}

func (m *Manager) handleLifecycle(ctx context.Context, domainName string, event LifecycleEvent) {
	switch event {
	case LifecycleStarted:
		m.setCached(domainName, types.DomainActive)
	case LifecycleStopped:
		m.setCached(domainName, types.DomainInactive)
	default:
		// Other lifecycle codes (suspended, defined, ...) refresh the cache
		// from the hypervisor's own answer but don't fan out.
		if active, err := m.conn.IsActive(ctx, domainName); err == nil {
			m.setCached(domainName, statusOf(active))
		}
		return
	}
	if m.onLifecycle != nil {
		status, _ := m.getCached(domainName)
		m.onLifecycle(domainName, status)
	}
}

func (m *Manager) handleReboot(ctx context.Context, domainName string) {
	if _, ok := m.getCached(domainName); !ok {
		m.setCached(domainName, types.DomainActive)
	}
	if m.onReboot != nil {
		m.onReboot(domainName)
	}
}

// RunEventLoop runs the hypervisor's default event implementation until ctx
// is cancelled. Callers run this on its own dedicated goroutine.
func (m *Manager) RunEventLoop(ctx context.Context) error {
	return m.conn.RunEventLoop(ctx)
}

// Deregister undoes RegisterCallbacks. Called during graceful shutdown.
func (m *Manager) Deregister() {
	_ = m.conn.Deregister(m.lifecycleHandle)
	_ = m.conn.Deregister(m.rebootHandle)
}

// IsAlive reports whether the underlying hypervisor connection is usable.
func (m *Manager) IsAlive() bool { return m.conn.IsAlive() }

// CloseConnection releases the hypervisor connection. Called only after the
// dispatcher and event loop have both stopped.
func (m *Manager) CloseConnection() error { return m.conn.Close() }
