package domain

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/projecteru2/syncvirtd/types"
	"github.com/projecteru2/syncvirtd/utils"
)

// ReloadState clears and refills the domain-status cache from a fresh
// enumeration of every domain the hypervisor knows about, active or not.
// No other HDM operation observes a half-built map: the fresh map is built
// off to the side and swapped in whole under stateMu.
func (m *Manager) ReloadState(ctx context.Context) error {
	logger := log.WithFunc("domain.ReloadState")
	names, err := m.conn.ListAllDomainNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}
	fresh := make(map[string]types.DomainStatus, len(names))
	for _, name := range names {
		active, err := m.conn.IsActive(ctx, name)
		if err != nil {
			logger.Warnf(ctx, "failed to query domain %s, treating as inactive: %v", name, err)
			fresh[name] = types.DomainInactive
			continue
		}
		fresh[name] = statusOf(active)
	}
	m.stateMu.Lock()
	m.state = fresh
	m.stateMu.Unlock()
	return nil
}

func statusOf(active bool) types.DomainStatus {
	if active {
		return types.DomainActive
	}
	return types.DomainInactive
}

// Start, Stop and Restart are non-blocking: they enqueue one action and
// return immediately. The dispatcher goroutine does the real work.
func (m *Manager) Start(domainName string) { m.enqueue(types.ActionStart, domainName) }
func (m *Manager) Stop(domainName string)  { m.enqueue(types.ActionStop, domainName) }
func (m *Manager) Restart(domainName string) { m.enqueue(types.ActionRestart, domainName) }

func (m *Manager) enqueue(kind types.Action, domainName string) {
	select {
	case <-m.closed:
		return
	default:
	}
	select {
	case m.queue <- action{kind: kind, domain: domainName}:
	case <-m.closed:
	}
}

// RunDispatcher drains the action queue and submits work to the bounded
// worker pool. Each popped action first passes through the HDM's own RLAL
// and is dropped if violated — this suppresses an inbound JET-sourced action
// that would otherwise echo an action HDM itself just executed for the same
// domain. Blocks until ctx is cancelled; callers run this on its own
// goroutine.
func (m *Manager) RunDispatcher(ctx context.Context) error {
	logger := log.WithFunc("domain.RunDispatcher")
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return ctx.Err()
		case act, ok := <-m.queue:
			if !ok {
				m.wg.Wait()
				return nil
			}
			if m.rlal.Violated(act.domain) {
				logger.Debugf(ctx, "dropping echoed %s action for domain %s", act.kind, act.domain)
				continue
			}
			m.submit(ctx, act)
		}
	}
}

func (m *Manager) submit(ctx context.Context, act action) {
	select {
	case m.pool <- struct{}{}:
	case <-ctx.Done():
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.pool }()
		m.execute(ctx, act)
	}()
}

func (m *Manager) execute(ctx context.Context, act action) {
	logger := log.WithFunc("domain.execute")
	var err error
	switch act.kind {
	case types.ActionStart:
		err = m.doStart(ctx, act.domain)
	case types.ActionStop:
		err = m.doStop(ctx, act.domain)
	case types.ActionRestart:
		err = m.doStop(ctx, act.domain)
		if err == nil {
			err = m.doStart(ctx, act.domain)
		}
	default:
		panic(fmt.Sprintf("domain: unknown action %q for domain %s", act.kind, act.domain))
	}
	if err != nil {
		logger.Errorf(ctx, err, "domain %s action %s failed", act.domain, act.kind)
	}
}

// doStart looks up the domain, returns immediately if already active, else
// issues create/boot and polls every checkDelay until active or timeout.
func (m *Manager) doStart(ctx context.Context, domainName string) error {
	active, err := m.conn.IsActive(ctx, domainName)
	if err != nil {
		return fmt.Errorf("failed to create domain: %s: %w", domainName, err)
	}
	if active {
		m.setCached(domainName, types.DomainActive)
		return nil
	}
	if err := m.conn.Create(ctx, domainName); err != nil {
		return fmt.Errorf("failed to create domain: %s: %w", domainName, err)
	}
	err = utils.WaitFor(ctx, m.timeout, m.checkDelay, func() (bool, error) {
		active, err := m.conn.IsActive(ctx, domainName)
		if err != nil {
			return false, nil // transient peer error: keep polling, don't fail the action yet
		}
		return active, nil
	})
	if err != nil {
		return fmt.Errorf("failed to create domain: %s: %w", domainName, err)
	}
	m.setCached(domainName, types.DomainActive)
	return nil
}

// doStop issues a graceful ACPI shutdown and polls until inactive or
// timeout, re-sending the shutdown on every tick since the guest may not
// have been ready to accept ACPI at the first attempt.
func (m *Manager) doStop(ctx context.Context, domainName string) error {
	active, err := m.conn.IsActive(ctx, domainName)
	if err != nil {
		return fmt.Errorf("failed to shutdown domain: %s: %w", domainName, err)
	}
	if !active {
		m.setCached(domainName, types.DomainInactive)
		return nil
	}
	err = utils.WaitFor(ctx, m.timeout, m.checkDelay, func() (bool, error) {
		if err := m.conn.Shutdown(ctx, domainName); err != nil {
			return false, nil // keep retrying; the guest may ignore a stray ACPI signal
		}
		active, err := m.conn.IsActive(ctx, domainName)
		if err != nil {
			return false, nil
		}
		return !active, nil
	})
	if err != nil {
		return fmt.Errorf("failed to shutdown domain: %s: %w", domainName, err)
	}
	m.setCached(domainName, types.DomainInactive)
	return nil
}

// Close stops accepting new enqueues; callers call this before cancelling
// the dispatcher's context so no new action arrives while it stops.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.closed) })
}
