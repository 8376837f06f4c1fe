package unit

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/projecteru2/syncvirtd/internal/unitname"
	"github.com/projecteru2/syncvirtd/types"
)

// Manager is the Service Unit Manager (SUM). It holds no state beyond the
// bus handle and the template prefix; the bus library serializes calls.
type Manager struct {
	bus    Bus
	prefix string
}

// New constructs a Manager for the given template prefix.
func New(bus Bus, prefix string) *Manager {
	return &Manager{bus: bus, prefix: prefix}
}

// Close releases the underlying bus connection.
func (m *Manager) Close() error {
	return m.bus.Close()
}

func (m *Manager) unitFor(domainName string) string {
	return unitname.Compose(m.prefix, domainName)
}

// Start resolves the unit for D; if already active, no-op; else issues
// Start("fail").
func (m *Manager) Start(ctx context.Context, domainName string) error {
	name := m.unitFor(domainName)
	state, err := m.bus.ActiveState(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to query unit %s: %w", name, err)
	}
	if state == types.UnitActive {
		return nil
	}
	if err := m.bus.StartUnit(ctx, name); err != nil {
		return fmt.Errorf("failed to start unit %s: %w", name, err)
	}
	return nil
}

// Stop resolves the unit for D; if already inactive, no-op; else issues
// Stop("fail").
func (m *Manager) Stop(ctx context.Context, domainName string) error {
	name := m.unitFor(domainName)
	state, err := m.bus.ActiveState(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to query unit %s: %w", name, err)
	}
	if state == types.UnitInactive {
		return nil
	}
	if err := m.bus.StopUnit(ctx, name); err != nil {
		return fmt.Errorf("failed to stop unit %s: %w", name, err)
	}
	return nil
}

// Restart always issues Restart("fail"), unconditionally.
func (m *Manager) Restart(ctx context.Context, domainName string) error {
	name := m.unitFor(domainName)
	if err := m.bus.RestartUnit(ctx, name); err != nil {
		return fmt.Errorf("failed to restart unit %s: %w", name, err)
	}
	return nil
}

// SetInitialState starts or stops the unit for every (domain, desired) pair
// in want to match, then stops every template-matching unit whose domain is
// absent from want — there is no hypervisor domain backing it.
//
// Stopping every unmatched unit is destructive if operators reuse the
// template prefix for anything else; spec leaves this policy as an open
// question and this daemon keeps the literal behavior.
func (m *Manager) SetInitialState(ctx context.Context, want map[string]types.DomainStatus) error {
	logger := log.WithFunc("unit.SetInitialState")
	for domainName, desired := range want {
		var err error
		switch desired {
		case types.DomainActive:
			err = m.Start(ctx, domainName)
		case types.DomainInactive:
			err = m.Stop(ctx, domainName)
		default:
			panic(fmt.Sprintf("unit: domain %s has invalid desired status %q", domainName, desired))
		}
		if err != nil {
			logger.Warnf(ctx, "failed to reconcile unit for domain %s: %v", domainName, err)
		}
	}

	names, err := m.bus.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list units: %w", err)
	}
	for _, name := range names {
		domainName, ok := unitname.MatchesPrefix(name, m.prefix)
		if !ok {
			continue
		}
		if _, known := want[domainName]; known {
			continue
		}
		if err := m.bus.StopUnit(ctx, name); err != nil {
			logger.Warnf(ctx, "failed to stop orphaned unit %s: %v", name, err)
		}
	}
	return nil
}
