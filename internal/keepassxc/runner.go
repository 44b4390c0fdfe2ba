package keepassxc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	kpxcerr "github.com/mrz1836/kpxc/pkg/errors"
)

// Result is the raw outcome of one keepassxc-cli invocation.
// It is never cached.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner spawns an external executable, feeds it stdin and collects its output.
//
// Implementations must return an error wrapping ErrToolNotFound when the
// process could not be started at all. A process that ran and exited nonzero
// is not an error: it yields a Result with that exit code.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts name with args, writes stdin to it and waits for it to exit.
// No timeout is applied beyond ctx.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: binary and args are built by this package

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("starting %s: %w", name, ctxErr)
		}
		return nil, kpxcerr.WithDetails(kpxcerr.ErrToolNotFound, map[string]string{
			"cli":    name,
			"reason": err.Error(),
		})
	}

	waitErr := cmd.Wait()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if waitErr == nil {
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("running %s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	return nil, fmt.Errorf("running %s: %w", name, waitErr)
}
