package jobtail

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/projecteru2/syncvirtd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource plays back one canned export-format body per Open call (an
// empty one once the canned bodies run out), standing in for a journalctl
// --follow subprocess that ends right after its output.
type fakeSource struct {
	bodies [][]string
	opened int
}

func (f *fakeSource) Open(ctx context.Context, since time.Duration) (io.ReadCloser, error) {
	var body string
	if f.opened < len(f.bodies) {
		body = strings.Join(f.bodies[f.opened], "\n") + "\n"
	}
	f.opened++
	// Each open yields its canned body then EOF immediately, simulating a
	// subprocess that exits right after emitting its records — this is what
	// drives JET's reopen-after-restartDelay loop in these tests.
	return io.NopCloser(strings.NewReader(body)), nil
}

func record(unit, jobType, result string) []string {
	lines := []string{"UNIT=" + unit, "JOB_TYPE=" + jobType}
	if result != "" {
		lines = append(lines, "JOB_RESULT="+result)
	}
	return append(lines, "")
}

func TestAccept_StartForwardedAtQueueTime(t *testing.T) {
	src := &fakeSource{bodies: [][]string{record("libvirt-guest@alpha.service", "start", "")}}
	var got []types.JobRecord
	tl := New(src, "libvirt-guest", 10*time.Millisecond, func(r types.JobRecord) { got = append(got, r) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = tl.Run(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, types.ActionStart, got[0].JobType)
	assert.Equal(t, "libvirt-guest@alpha.service", got[0].Unit)
}

func TestAccept_StartWithResultIsDropped(t *testing.T) {
	src := &fakeSource{bodies: [][]string{record("libvirt-guest@alpha.service", "start", "done")}}
	var got []types.JobRecord
	tl := New(src, "libvirt-guest", 10*time.Millisecond, func(r types.JobRecord) { got = append(got, r) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = tl.Run(ctx)

	assert.Empty(t, got, "a start record already carrying a result is not the queue-time entry JET wants")
}

func TestAccept_StopRequiresDoneResult(t *testing.T) {
	src := &fakeSource{bodies: [][]string{record("libvirt-guest@bravo.service", "stop", "")}}
	var got []types.JobRecord
	tl := New(src, "libvirt-guest", 10*time.Millisecond, func(r types.JobRecord) { got = append(got, r) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = tl.Run(ctx)

	assert.Empty(t, got, "stop without JOB_RESULT=done is not a completion")
}

func TestAccept_IgnoresOtherPrefix(t *testing.T) {
	src := &fakeSource{bodies: [][]string{record("other-prefix@alpha.service", "start", "")}}
	var got []types.JobRecord
	tl := New(src, "libvirt-guest", 10*time.Millisecond, func(r types.JobRecord) { got = append(got, r) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = tl.Run(ctx)

	assert.Empty(t, got)
}

func TestRun_ReopensAfterStreamEnds(t *testing.T) {
	src := &fakeSource{bodies: [][]string{
		record("libvirt-guest@charlie.service", "restart", "done"),
		record("libvirt-guest@charlie.service", "stop", "done"),
	}}
	var got []types.JobRecord
	tl := New(src, "libvirt-guest", 5*time.Millisecond, func(r types.JobRecord) { got = append(got, r) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = tl.Run(ctx)

	require.GreaterOrEqual(t, src.opened, 2)
}
