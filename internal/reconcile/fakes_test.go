package reconcile

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/projecteru2/syncvirtd/internal/domain"
	"github.com/projecteru2/syncvirtd/types"
)

// fakeConn is a minimal domain.Connection standing in for libvirt in the
// reconciler's scenario tests.
type fakeConn struct {
	mu     sync.Mutex
	active map[string]bool

	lifecycleCB domain.LifecycleCallback
	rebootCB    domain.RebootCallback

	createCalls   []string
	shutdownCalls []string
}

func newFakeConn(domains ...string) *fakeConn {
	f := &fakeConn{active: make(map[string]bool)}
	for _, d := range domains {
		f.active[d] = false
	}
	return f
}

func (f *fakeConn) setActive(name string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[name] = active
}

func (f *fakeConn) ListAllDomainNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.active))
	for name := range f.active {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeConn) IsActive(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[name], nil
}

func (f *fakeConn) Create(ctx context.Context, name string) error {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, name)
	f.active[name] = true
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, domain.LifecycleStarted)
	}
	return nil
}

func (f *fakeConn) Shutdown(ctx context.Context, name string) error {
	f.mu.Lock()
	f.shutdownCalls = append(f.shutdownCalls, name)
	f.active[name] = false
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, domain.LifecycleStopped)
	}
	return nil
}

// fireHypervisorStart simulates an operator command bypassing this daemon
// entirely: the domain becomes active and the hypervisor delivers its own
// lifecycle event, exactly like a real libvirtd would.
func (f *fakeConn) fireHypervisorStart(name string) {
	f.mu.Lock()
	f.active[name] = true
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, domain.LifecycleStarted)
	}
}

func (f *fakeConn) fireHypervisorStop(name string) {
	f.mu.Lock()
	f.active[name] = false
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, domain.LifecycleStopped)
	}
}

func (f *fakeConn) fireHypervisorReboot(name string) {
	f.mu.Lock()
	cb := f.rebootCB
	f.mu.Unlock()
	if cb != nil {
		cb(name)
	}
}

func (f *fakeConn) RegisterLifecycleCallback(cb domain.LifecycleCallback) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycleCB = cb
	return 1, nil
}

func (f *fakeConn) RegisterRebootCallback(cb domain.RebootCallback) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebootCB = cb
	return 2, nil
}

func (f *fakeConn) Deregister(id int) error { return nil }

func (f *fakeConn) RunEventLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConn) IsAlive() bool { return true }

func (f *fakeConn) Close() error { return nil }

// fakeBus is a minimal unit.Bus standing in for systemd in the reconciler's
// scenario tests.
type fakeBus struct {
	mu    sync.Mutex
	state map[string]types.UnitActiveState

	startCalls   []string
	stopCalls    []string
	restartCalls []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{state: make(map[string]types.UnitActiveState)}
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

func (b *fakeBus) setActive(name string, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if active {
		b.state[name] = types.UnitActive
	} else {
		b.state[name] = types.UnitInactive
	}
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

// fakeSource is an empty jobtail.Source: these scenario tests drive JET's
// effect directly through handleJobEvent instead of a real journal stream.
type fakeSource struct{}

func (fakeSource) Open(ctx context.Context, since time.Duration) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
