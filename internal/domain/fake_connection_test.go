package domain

import (
	"context"
	"sync"
)

// fakeConnection is an in-memory Connection used by every test in this
// package instead of a real libvirtd, per the narrow-interface fake pattern.
type fakeConnection struct {
	mu sync.Mutex

	active map[string]bool

	lifecycleCB LifecycleCallback
	rebootCB    RebootCallback

	createCalls   []string
	shutdownCalls []string

	failCreate   map[string]bool
	failShutdown map[string]bool

	alive bool
}

func newFakeConnection(domains ...string) *fakeConnection {
	f := &fakeConnection{
		active:       make(map[string]bool),
		failCreate:   make(map[string]bool),
		failShutdown: make(map[string]bool),
		alive:        true,
	}
	for _, d := range domains {
		f.active[d] = false
	}
	return f
}

func (f *fakeConnection) setActive(name string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[name] = active
}

func (f *fakeConnection) ListAllDomainNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.active))
	for name := range f.active {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeConnection) IsActive(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[name], nil
}

// fireStarted flips a domain active and, if a lifecycle callback is
// registered, delivers a STARTED event for it — simulating a hypervisor
// operator command that bypasses HDM's own Start method entirely.
func (f *fakeConnection) fireStarted(name string) {
	f.mu.Lock()
	f.active[name] = true
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, LifecycleStarted)
	}
}

func (f *fakeConnection) fireStopped(name string) {
	f.mu.Lock()
	f.active[name] = false
	cb := f.lifecycleCB
	f.mu.Unlock()
	if cb != nil {
		cb(name, LifecycleStopped)
	}
}

func (f *fakeConnection) fireReboot(name string) {
	f.mu.Lock()
	cb := f.rebootCB
	f.mu.Unlock()
	if cb != nil {
		cb(name)
	}
}

func (f *fakeConnection) Create(ctx context.Context, name string) error {
	f.mu.Lock()
	f.createCalls = append(f.createCalls, name)
	fail := f.failCreate[name]
	f.mu.Unlock()
	if fail {
		return errDomainOp
	}
	// Simulate the hypervisor settling the domain into the running state
	// and delivering its own lifecycle event, exactly as a real libvirtd
	// would independently of HDM's poll loop.
	f.fireStarted(name)
	return nil
}

func (f *fakeConnection) Shutdown(ctx context.Context, name string) error {
	f.mu.Lock()
	f.shutdownCalls = append(f.shutdownCalls, name)
	fail := f.failShutdown[name]
	f.mu.Unlock()
	if fail {
		return errDomainOp
	}
	f.fireStopped(name)
	return nil
}

func (f *fakeConnection) RegisterLifecycleCallback(cb LifecycleCallback) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycleCB = cb
	return 1, nil
}

func (f *fakeConnection) RegisterRebootCallback(cb RebootCallback) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebootCB = cb
	return 2, nil
}

func (f *fakeConnection) Deregister(id int) error { return nil }

func (f *fakeConnection) RunEventLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConnection) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConnection) Close() error { return nil }

type domainOpError struct{ msg string }

func (e *domainOpError) Error() string { return e.msg }

var errDomainOp = &domainOpError{msg: "simulated hypervisor failure"}
