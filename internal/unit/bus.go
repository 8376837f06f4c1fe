// Package unit implements the Service Unit Manager: the only component
// that talks to the init system's message bus. It translates domain names
// to unit names under a fixed template prefix, issues start/stop/restart,
// and bulk-reconciles the unit set to an authoritative status map.
package unit

import (
	"context"

	"github.com/projecteru2/syncvirtd/types"
)

// Bus is the narrow slice of the init-system message-bus client the Service
// Unit Manager depends on. The production implementation (systemdBus, in
// systemd.go) wraps github.com/coreos/go-systemd/v22/dbus; tests substitute
// a fake that never touches a real bus.
type Bus interface {
	// StartUnit issues a "fail"-mode start job for name.
	StartUnit(ctx context.Context, name string) error
	// StopUnit issues a "fail"-mode stop job for name.
	StopUnit(ctx context.Context, name string) error
	// RestartUnit issues a "fail"-mode restart job for name.
	RestartUnit(ctx context.Context, name string) error
	// ActiveState reads name's current ActiveState property.
	ActiveState(ctx context.Context, name string) (types.UnitActiveState, error)
	// ListUnits enumerates every unit name currently known to the bus.
	ListUnits(ctx context.Context) ([]string, error)
	// Close releases the bus connection.
	Close() error
}
