// Package jobtail implements the Job-Event Tailer: a dedicated reader of
// the init system's job log that forwards deduplicated, completion-only
// start/stop/restart records for units matching the daemon's template
// prefix. It exists because the bus's PropertiesChanged signal fires
// multiple times per job and cannot distinguish a true restart from
// inactive->activating->active on a single start; the job log emits
// terminal job records keyed by JOB_TYPE and JOB_RESULT instead.
package jobtail

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/projecteru2/core/log"
	"github.com/projecteru2/syncvirtd/internal/unitname"
	"github.com/projecteru2/syncvirtd/types"
)

// Source opens a follow-mode stream of export-format job-log records,
// asking for entries going back "since" to bridge any gap left by a
// previous stream's termination. The production implementation
// (journalctlSource, in journalctl.go) execs journalctl; tests substitute a
// fake that plays back canned lines.
type Source interface {
	Open(ctx context.Context, since time.Duration) (io.ReadCloser, error)
}

// Handler receives one accepted job record.
type Handler func(types.JobRecord)

// Tailer is the Job-Event Tailer (JET).
type Tailer struct {
	source       Source
	prefix       string
	restartDelay time.Duration
	handler      Handler
}

// New constructs a Tailer forwarding accepted records to handler.
func New(source Source, prefix string, restartDelay time.Duration, handler Handler) *Tailer {
	return &Tailer{source: source, prefix: prefix, restartDelay: restartDelay, handler: handler}
}

// Run reads records forever, forwarding accepted ones to the handler
// inline, until ctx is cancelled. If the stream terminates for any reason
// it sleeps restartDelay and reopens, asking for entries back that far to
// bridge the gap, per the tailer's loop-supervision contract.
func (t *Tailer) Run(ctx context.Context) error {
	logger := log.WithFunc("jobtail.Run")
	since := t.restartDelay
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.readOnce(ctx, since); err != nil && ctx.Err() == nil {
			logger.Debugf(ctx, "job-log tail ended: %v; reopening after %s", err, t.restartDelay)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-time.After(t.restartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		since = t.restartDelay
	}
}

func (t *Tailer) readOnce(ctx context.Context, since time.Duration) error {
	stream, err := t.source.Open(ctx, since)
	if err != nil {
		return err
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	fields := make(map[string]string)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			t.handleRecord(fields)
			fields = make(map[string]string)
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = value
	}
	if len(fields) > 0 {
		t.handleRecord(fields)
	}
	return scanner.Err()
}

func (t *Tailer) handleRecord(fields map[string]string) {
	rec, ok := t.accept(fields)
	if !ok {
		return
	}
	t.handler(rec)
}

// accept implements the acceptance filter: JOB_TYPE must be start/stop/restart;
// start is forwarded at queue time (JOB_RESULT absent), stop/restart only on
// JOB_RESULT=="done"; the unit must match the template prefix. The final
// echo-suppression condition is enforced downstream, by HDM's own RLAL when
// the reconciler dispatches the action (see internal/domain's dispatcher).
func (t *Tailer) accept(fields map[string]string) (types.JobRecord, bool) {
	unit := fields["UNIT"]
	jobType := types.Action(fields["JOB_TYPE"])
	result := fields["JOB_RESULT"]

	switch jobType {
	case types.ActionStart:
		if result != "" {
			return types.JobRecord{}, false
		}
	case types.ActionStop, types.ActionRestart:
		if result != "done" {
			return types.JobRecord{}, false
		}
	default:
		return types.JobRecord{}, false
	}

	if _, ok := unitname.MatchesPrefix(unit, t.prefix); !ok {
		return types.JobRecord{}, false
	}

	return types.JobRecord{Unit: unit, JobType: jobType, JobResult: result}, true
}
