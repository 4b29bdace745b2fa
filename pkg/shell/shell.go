// Package shell runs external programs and captures their output. Every
// process boundary in scrun other than the launched application goes
// through a Runner so tests can substitute canned results.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the outcome of one command
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int   // -1 when the process could not be started or was killed
	Err      error // Non-nil when the command did not exit with code 0
}

// Success reports whether the command exited with code zero
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Runner executes a command
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, name string, args ...string) Result

// Run calls f
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) Result {
	return f(ctx, name, args...)
}

// OS runs commands as local child processes
type OS struct {
	// Env is appended to the inherited environment when set
	Env []string
}

// Run executes the command and waits for it to finish
func (o OS) Run(ctx context.Context, name string, args ...string) Result {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(o.Env) > 0 {
		cmd.Env = append(cmd.Environ(), o.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}
	res.Err = fmt.Errorf("%s: %w", CommandString(name, args), err)
	return res
}

// CommandString formats a command for logs
func CommandString(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
