package unit

import (
	"context"
	"sync"

	"github.com/projecteru2/syncvirtd/types"
)

// fakeBus is an in-memory Bus standing in for a real systemd connection.
type fakeBus struct {
	mu    sync.Mutex
	state map[string]types.UnitActiveState

	startCalls   []string
	stopCalls    []string
	restartCalls []string
}

func newFakeBus(units map[string]types.UnitActiveState) *fakeBus {
	state := make(map[string]types.UnitActiveState, len(units))
	for k, v := range units {
		state[k] = v
	}
	return &fakeBus{state: state}
}

func (b *fakeBus) StartUnit(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startCalls = append(b.startCalls, name)
	b.state[name] = types.UnitActive
	return nil
}

func (b *fakeBus) StopUnit(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCalls = append(b.stopCalls, name)
	b.state[name] = types.UnitInactive
	return nil
}

func (b *fakeBus) RestartUnit(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restartCalls = append(b.restartCalls, name)
	b.state[name] = types.UnitActive
	return nil
}

func (b *fakeBus) ActiveState(ctx context.Context, name string) (types.UnitActiveState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.state[name]
	if !ok {
		return types.UnitInactive, nil
	}
	return s, nil
}

func (b *fakeBus) ListUnits(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.state))
	for name := range b.state {
		names = append(names, name)
	}
	return names, nil
}

func (b *fakeBus) Close() error { return nil }
