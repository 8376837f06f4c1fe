// Package types holds the small data shapes shared across syncvirtd's
// packages: the two-valued domain/unit projection the reconciler works in,
// and the job-log record schema consumed from the init system.
package types

// DomainStatus is the two-valued projection of the hypervisor's richer
// domain states onto "is it running?". The underlying libvirt domain state
// (running, blocked, paused, in shutdown, shut off, dying, crashed,
// inactive) collapses onto these two values using "is-active" as the sole
// discriminator.
type DomainStatus string

const (
	DomainActive   DomainStatus = "active"
	DomainInactive DomainStatus = "inactive"
)

// UnitActiveState mirrors systemd's ActiveState property. Only Active and
// Inactive are consumed by reconciliation decisions; Activating and
// Deactivating are transient values the reconciler ignores (it consumes
// terminal job completions via the job-event tailer instead).
type UnitActiveState string

const (
	UnitActive       UnitActiveState = "active"
	UnitInactive     UnitActiveState = "inactive"
	UnitActivating   UnitActiveState = "activating"
	UnitDeactivating UnitActiveState = "deactivating"
)

// Action identifies the kind of lifecycle action driven across a control
// plane boundary. The same three values name both HDM actions (domain
// start/stop/restart) and SUM/JET actions (unit start/stop/restart).
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// JobRecord is one parsed entry from the init system's job log, filtered to
// units matching the daemon's template prefix. JobResult is empty for a
// start job observed at queue time (no JOB_RESULT field yet) and "done" for
// completed stop/restart jobs — see internal/jobtail's acceptance filter.
type JobRecord struct {
	Unit      string
	JobType   Action
	JobResult string
}
