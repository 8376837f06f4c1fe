package jobtail

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// journalctlSource is the production Source: it execs journalctl in
// follow+export mode, scoped to the template prefix's unit glob.
type journalctlSource struct {
	prefix string
	cmd    *exec.Cmd
}

// NewJournalctlSource returns a Source tailing units matching
// "<prefix>@*.service" through journalctl's machine-readable export format.
func NewJournalctlSource(prefix string) Source {
	return &journalctlSource{prefix: prefix}
}

func (s *journalctlSource) Open(ctx context.Context, since time.Duration) (io.ReadCloser, error) {
	args := []string{
		"-o", "export",
		"--follow",
		"--since", fmt.Sprintf("-%.0fs", since.Seconds()),
		"-u", s.prefix + "@*.service",
	}
	cmd := exec.CommandContext(ctx, "journalctl", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open journalctl stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start journalctl: %w", err)
	}
	s.cmd = cmd
	return &journalctlStream{ReadCloser: stdout, cmd: cmd}, nil
}

// journalctlStream wraps the stdout pipe so Close also reaps the subprocess.
type journalctlStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *journalctlStream) Close() error {
	err := s.ReadCloser.Close()
	_ = s.cmd.Wait()
	return err
}
