package agents

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// killGrace is how long a child gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

// ErrCancelled marks an invocation aborted by a user cancel signal.
// The dispatcher surfaces it as a normal response, not a retry.
var ErrCancelled = errors.New("cancelled by user")

// ErrTimedOut marks an invocation that hit the wall-clock timeout. Like a
// cancel, it becomes a response rather than a retry.
var ErrTimedOut = errors.New("command timed out")

// cliError carries the child's stderr so callers can pattern-match
// provider-specific failures (e.g. claude's session-not-found).
type cliError struct {
	cmd    string
	stderr string
	err    error
}

func (e *cliError) Error() string {
	msg := strings.TrimSpace(e.stderr)
	if msg == "" {
		msg = e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.cmd, msg)
}

func (e *cliError) Unwrap() error { return e.err }

// runCLI spawns the agent CLI and drains stdout line by line into onLine.
// Cancellation (ctx done) sends SIGTERM; a child still alive after
// killGrace gets SIGKILL. The ctx cause is surfaced so callers can tell a
// user cancel from a timeout.
func runCLI(ctx context.Context, dir string, env []string, name string, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	scanner := bufio.NewScanner(stdout)
	// Agent CLIs emit whole JSON events per line; some are large.
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if cause := context.Cause(ctx); cause != nil && ctx.Err() != nil {
		return cause
	}
	if waitErr != nil {
		return &cliError{cmd: name, stderr: stderr.String(), err: waitErr}
	}
	if scanErr != nil {
		return fmt.Errorf("read %s output: %w", name, scanErr)
	}
	return nil
}

// stderrOf extracts the captured stderr from an invocation error, if any.
func stderrOf(err error) string {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.stderr
	}
	return ""
}
