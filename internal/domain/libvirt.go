package domain

import (
	"context"
	"fmt"
	"sync"

	"github.com/projecteru2/core/log"
	"libvirt.org/go/libvirt"
)

// libvirtConnection is the production Connection, grounded on
// _examples/other_examples/openSUSE-virtx__hypervisor.go's use of
// DomainEventLifecycleRegister/DomainEventDeregister and
// EventRegisterDefaultImpl/EventRunDefaultImpl, and on
// _examples/other_examples/jahentao-nomad-driver-libvirt__schema.go's
// DomainState-to-lifecycle translation.
type libvirtConnection struct {
	mu   sync.Mutex
	conn *libvirt.Connect
}

// NewLibvirtConnection opens a connection to uri. An empty uri lets the
// library fall back to its own default, which honors LIBVIRT_DEFAULT_URI.
func NewLibvirtConnection(uri string) (Connection, error) {
	if err := libvirt.EventRegisterDefaultImpl(); err != nil {
		return nil, fmt.Errorf("failed to register libvirt event implementation: %w", err)
	}
	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hypervisor: %w", err)
	}
	return &libvirtConnection{conn: conn}, nil
}

func (c *libvirtConnection) ListAllDomainNames(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doms, err := c.conn.ListAllDomains(0)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doms))
	for i := range doms {
		name, err := doms[i].GetName()
		if err == nil {
			names = append(names, name)
		}
		doms[i].Free()
	}
	return names, nil
}

func (c *libvirtConnection) lookup(name string) (*libvirt.Domain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.LookupDomainByName(name)
}

func (c *libvirtConnection) IsActive(ctx context.Context, name string) (bool, error) {
	dom, err := c.lookup(name)
	if err != nil {
		return false, err
	}
	defer dom.Free()
	active, err := dom.IsActive()
	if err != nil {
		return false, err
	}
	return active, nil
}

func (c *libvirtConnection) Create(ctx context.Context, name string) error {
	dom, err := c.lookup(name)
	if err != nil {
		return err
	}
	defer dom.Free()
	return dom.Create()
}

func (c *libvirtConnection) Shutdown(ctx context.Context, name string) error {
	dom, err := c.lookup(name)
	if err != nil {
		return err
	}
	defer dom.Free()
	return dom.Shutdown()
}

func (c *libvirtConnection) RegisterLifecycleCallback(cb LifecycleCallback) (int, error) {
	callback := func(_ *libvirt.Connect, d *libvirt.Domain, e *libvirt.DomainEventLifecycle) {
		name, err := d.GetName()
		if err != nil {
			return
		}
		cb(name, translateLifecycle(e.Event))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.DomainEventLifecycleRegister(nil, callback)
}

func (c *libvirtConnection) RegisterRebootCallback(cb RebootCallback) (int, error) {
	callback := func(_ *libvirt.Connect, d *libvirt.Domain, _ *libvirt.DomainEventReboot) {
		name, err := d.GetName()
		if err != nil {
			return
		}
		cb(name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.DomainEventRebootRegister(nil, callback)
}

func (c *libvirtConnection) Deregister(id int) error {
	if id < 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.DomainEventDeregister(id)
}

func (c *libvirtConnection) RunEventLoop(ctx context.Context) error {
	logger := log.WithFunc("domain.RunEventLoop")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := libvirt.EventRunDefaultImpl(); err != nil {
			logger.Warnf(ctx, "event loop iteration failed: %v", err)
		}
	}
}

func (c *libvirtConnection) IsAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	alive, err := c.conn.IsAlive()
	return err == nil && alive
}

func (c *libvirtConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Close()
	return err
}

// translateLifecycle collapses libvirt's DOMAIN_EVENT_* codes onto the
// three-valued signal HDM forwards. Grounded on jahentao-nomad-driver-libvirt's
// LifeCycleTranslationMap: DOMAIN_EVENT_STARTED and DOMAIN_EVENT_RESUMED both
// mean "running"; DOMAIN_EVENT_STOPPED, DOMAIN_EVENT_SHUTDOWN and
// DOMAIN_EVENT_CRASHED all mean "not running"; everything else doesn't
// change the active/inactive projection.
func translateLifecycle(event libvirt.DomainEventType) LifecycleEvent {
	switch event {
	case libvirt.DOMAIN_EVENT_STARTED, libvirt.DOMAIN_EVENT_RESUMED:
		return LifecycleStarted
	case libvirt.DOMAIN_EVENT_STOPPED, libvirt.DOMAIN_EVENT_SHUTDOWN, libvirt.DOMAIN_EVENT_CRASHED:
		return LifecycleStopped
	default:
		return LifecycleOther
	}
}
