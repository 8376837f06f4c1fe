package domain

import "context"

// LifecycleEvent is the collapsed signal HDM forwards for a libvirt domain
// lifecycle callback. Only Started and Stopped fan out to the reconciler;
// every other libvirt lifecycle code (suspended, defined, ...) still
// refreshes the cache but is otherwise swallowed.
type LifecycleEvent int

const (
	LifecycleOther LifecycleEvent = iota
	LifecycleStarted
	LifecycleStopped
)

// LifecycleCallback is invoked on every libvirt domain lifecycle event.
type LifecycleCallback func(domainName string, event LifecycleEvent)

// RebootCallback is invoked whenever libvirt reports a guest-initiated
// reboot (DOMAIN_EVENT_ID_REBOOT), distinct from the stop/start pair a
// lifecycle-level restart produces.
type RebootCallback func(domainName string)

// Connection is the narrow slice of the hypervisor client HDM depends on.
// The production implementation (libvirtConnection, in libvirt.go) wraps
// libvirt.org/go/libvirt; tests substitute a fake that never touches a real
// hypervisor.
type Connection interface {
	// ListAllDomainNames enumerates every known domain, active or not.
	ListAllDomainNames(ctx context.Context) ([]string, error)
	// IsActive reports a domain's instantaneous active/inactive state.
	IsActive(ctx context.Context, name string) (bool, error)
	// Create issues the hypervisor start (boot) command for an inactive
	// domain. HDM calls it only after IsActive reported the domain
	// inactive; the libvirt implementation fails for a running domain.
	Create(ctx context.Context, name string) error
	// Shutdown issues a graceful ACPI shutdown request. May be called
	// repeatedly while a shutdown is pending — the guest may not have been
	// ready to accept ACPI on the first attempt.
	Shutdown(ctx context.Context, name string) error

	// RegisterLifecycleCallback registers cb against every domain and
	// returns a deregistration handle.
	RegisterLifecycleCallback(cb LifecycleCallback) (int, error)
	// RegisterRebootCallback registers cb against every domain and returns
	// a deregistration handle.
	RegisterRebootCallback(cb RebootCallback) (int, error)
	// Deregister removes a previously registered callback.
	Deregister(id int) error

	// RunEventLoop runs the hypervisor's default event implementation until
	// ctx is cancelled or a fatal error occurs.
	RunEventLoop(ctx context.Context) error

	// IsAlive reports whether the underlying hypervisor connection is
	// usable. Consumed by Reconciler.Healthy.
	IsAlive() bool

	// Close releases the connection.
	Close() error
}
