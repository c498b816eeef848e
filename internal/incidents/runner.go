package incidents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrTimedOut is returned when the query command exceeds its deadline.
	ErrTimedOut = errors.New("incident query timed out")
	// ErrExecutableNotFound is returned when the query command is not
	// installed and no remote fallback is configured.
	ErrExecutableNotFound = errors.New("incident query executable not found")
)

// CommandError carries the captured stderr of a failed query command.
type CommandError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("incident query exited %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Runner executes the incident query command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin string, args ...string) (string, error)
}

type localRunner struct {
	command string
	timeout time.Duration
}

// NewLocalRunner executes command on this host.
func NewLocalRunner(command string, timeout time.Duration) Runner {
	return &localRunner{command: command, timeout: timeout}
}

func (r *localRunner) Run(ctx context.Context, stdin string, args ...string) (string, error) {
	return runCommand(ctx, r.timeout, stdin, r.command, args...)
}

type remoteRunner struct {
	host    string
	command string
	timeout time.Duration
}

// NewRemoteRunner executes command on host through ssh.
func NewRemoteRunner(host, command string, timeout time.Duration) Runner {
	return &remoteRunner{host: host, command: command, timeout: timeout}
}

func (r *remoteRunner) Run(ctx context.Context, stdin string, args ...string) (string, error) {
	sshArgs := append([]string{r.host, r.command}, args...)
	return runCommand(ctx, r.timeout, stdin, "ssh", sshArgs...)
}

func runCommand(ctx context.Context, timeout time.Duration, stdin, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w after %s", ErrTimedOut, timeout)
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", err
	}
	return stdout.String(), nil
}
