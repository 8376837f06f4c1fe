// Package domain implements the Hypervisor Domain Manager: the only
// component that talks to the hypervisor connection. It keeps a cached
// domain-status map, exposes non-blocking start/stop/restart that enqueue
// work onto a single dispatcher backed by a bounded worker pool, and runs
// the hypervisor's event loop on its own goroutine delivering lifecycle and
// reboot callbacks upward.
package domain

import (
	"sync"
	"time"

	"github.com/projecteru2/syncvirtd/internal/ratelog"
	"github.com/projecteru2/syncvirtd/types"
)

type action struct {
	kind   types.Action
	domain string
}

// LifecycleHandler is invoked with the collapsed active/inactive status a
// lifecycle callback settled on, for every STARTED/STOPPED event.
type LifecycleHandler func(domainName string, status types.DomainStatus)

// RebootHandler is invoked for every guest-initiated reboot event.
type RebootHandler func(domainName string)

// Manager is the Hypervisor Domain Manager (HDM). The zero value is not
// usable; construct with New, then call ReloadState to fill the cache.
type Manager struct {
	conn Connection

	timeout    time.Duration
	checkDelay time.Duration
	poolSize   int

	stateMu sync.RWMutex
	state   map[string]types.DomainStatus

	queue chan action
	pool  chan struct{}
	wg    sync.WaitGroup

	// rlal is the HDM-internal RLAL, keyed by domain name: each popped
	// action first passes through it and is dropped if violated.
	rlal *ratelog.Log

	onLifecycle LifecycleHandler
	onReboot    RebootHandler

	lifecycleHandle int
	rebootHandle    int

	closeOnce sync.Once
	closed    chan struct{}
}

// Options configures a Manager.
type Options struct {
	ActionTimeout    time.Duration
	ActionCheckDelay time.Duration
	EchoThreshold    time.Duration
	EchoMaxAge       time.Duration
	WorkerPoolSize   int
}

// New constructs a Manager with an empty domain-status cache. Running the
// event loop (RunEventLoop) and the first ReloadState are left to the
// caller; the reconciler's Bootstrap runs ReloadState before seeding units.
func New(conn Connection, opts Options) (*Manager, error) {
	if opts.WorkerPoolSize <= 0 {
		opts.WorkerPoolSize = 5
	}
	m := &Manager{
		conn:       conn,
		timeout:    opts.ActionTimeout,
		checkDelay: opts.ActionCheckDelay,
		poolSize:   opts.WorkerPoolSize,
		state:      make(map[string]types.DomainStatus),
		queue:      make(chan action, 256),
		pool:       make(chan struct{}, opts.WorkerPoolSize),
		rlal:       ratelog.New(opts.EchoThreshold, opts.EchoMaxAge),
		closed:     make(chan struct{}),
	}
	return m, nil
}

// SetHandlers wires the reconciler's upward callbacks. Must be called before
// RegisterCallbacks.
func (m *Manager) SetHandlers(onLifecycle LifecycleHandler, onReboot RebootHandler) {
	m.onLifecycle = onLifecycle
	m.onReboot = onReboot
}

// State returns a read-only snapshot of the domain-status cache.
func (m *Manager) State() map[string]types.DomainStatus {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	snap := make(map[string]types.DomainStatus, len(m.state))
	for k, v := range m.state {
		snap[k] = v
	}
	return snap
}

func (m *Manager) getCached(domainName string) (types.DomainStatus, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	s, ok := m.state[domainName]
	return s, ok
}

func (m *Manager) setCached(domainName string, status types.DomainStatus) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state[domainName] = status
}
