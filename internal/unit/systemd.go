package unit

import (
	"context"
	"fmt"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/projecteru2/syncvirtd/types"
)

// systemdBus is the production Bus, wrapping github.com/coreos/go-systemd/v22/dbus.
// Every job is submitted in "fail" mode so a conflicting pending job fails
// the new one immediately rather than replacing it.
type systemdBus struct {
	conn *sddbus.Conn
}

// NewSystemdBus opens a connection to the system bus's systemd1 object.
func NewSystemdBus(ctx context.Context) (Bus, error) {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd bus: %w", err)
	}
	return &systemdBus{conn: conn}, nil
}

const jobMode = "fail"

func (b *systemdBus) StartUnit(ctx context.Context, name string) error {
	ch := make(chan string, 1)
	if _, err := b.conn.StartUnitContext(ctx, name, jobMode, ch); err != nil {
		return err
	}
	return waitForJob(ctx, ch)
}

func (b *systemdBus) StopUnit(ctx context.Context, name string) error {
	ch := make(chan string, 1)
	if _, err := b.conn.StopUnitContext(ctx, name, jobMode, ch); err != nil {
		return err
	}
	return waitForJob(ctx, ch)
}

func (b *systemdBus) RestartUnit(ctx context.Context, name string) error {
	ch := make(chan string, 1)
	if _, err := b.conn.RestartUnitContext(ctx, name, jobMode, ch); err != nil {
		return err
	}
	return waitForJob(ctx, ch)
}

func waitForJob(ctx context.Context, ch chan string) error {
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("job finished with result %q", result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *systemdBus) ActiveState(ctx context.Context, name string) (types.UnitActiveState, error) {
	props, err := b.conn.GetUnitPropertiesContext(ctx, name)
	if err != nil {
		return "", err
	}
	state, _ := props["ActiveState"].(string)
	return types.UnitActiveState(state), nil
}

func (b *systemdBus) ListUnits(ctx context.Context) ([]string, error) {
	statuses, err := b.conn.ListUnitsContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, s.Name)
	}
	return names, nil
}

func (b *systemdBus) Close() error {
	b.conn.Close()
	return nil
}
