// Package shell runs the external commands that actually build, retrieve,
// and publish artifacts. The reconciliation engine treats these commands as
// opaque; tests substitute a stub Runner.
package shell

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

type Runner interface {
	// Run executes a command, streaming its output to the process's
	// stdout/stderr. A non-zero exit is returned as an error.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// New returns a Runner backed by os/exec, running commands in dir
// (the project root).
func New(dir string) Runner {
	return &runner{dir: dir}
}

type runner struct {
	dir string
}

var _ Runner = &runner{}

func (r *runner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

func (r *runner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("running %s: %w", name, ExecError(err))
	}
	return strings.TrimSpace(string(out)), nil
}

// ExecError extracts stderr from an *exec.ExitError when available, so the
// failure diagnostic carries the command's own message.
func ExecError(err error) error {
	if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
	}
	return err
}
