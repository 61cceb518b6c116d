package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCommandTimeout bounds RunCommand when the caller passes zero.
const DefaultCommandTimeout = 10 * time.Second

// ErrCommandTimeout is returned when the command outlives its timeout.
var ErrCommandTimeout = errors.New("command timed out")

// RunCommand runs a command with a timeout and returns its stdout. Stderr is
// captured separately and attached to the error on a non-zero exit.
func RunCommand(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	hideWindow(cmd)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", name, err)
	}
	err := cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), fmt.Errorf("%s: %w", name, ErrCommandTimeout)
	}
	if err != nil {
		return stdout.String(), fmt.Errorf("command %s failed: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}

// RunQuiet runs a command with both output streams discarded. Only the exit
// status matters to the caller.
func RunQuiet(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", name, ErrCommandTimeout)
		}
		return fmt.Errorf("command %s failed: %w", name, err)
	}
	return nil
}

