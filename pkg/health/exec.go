package health

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/scrun/pkg/shell"
)

// Prober checks whether a single node is reachable
type Prober interface {
	Probe(ctx context.Context, node string) error
}

// ExecProber probes a node by running a local command with the node name
// appended, by default "ping -c 1 -w <timeout>"
type ExecProber struct {
	// Command is the probe command without the node name
	Command []string

	// Timeout is the probe execution timeout (default: 5 seconds)
	Timeout time.Duration

	runner shell.Runner
}

// NewPingProber creates an ExecProber that pings the node once
func NewPingProber(runner shell.Runner) *ExecProber {
	p := &ExecProber{Timeout: 5 * time.Second, runner: runner}
	p.Command = []string{"ping", "-c", "1", "-w", strconv.Itoa(int(p.Timeout.Seconds()))}
	return p
}

// NewExecProber creates an ExecProber with a custom command
func NewExecProber(command []string, runner shell.Runner) *ExecProber {
	return &ExecProber{Command: command, Timeout: 10 * time.Second, runner: runner}
}

// Probe runs the probe command against node
func (e *ExecProber) Probe(ctx context.Context, node string) error {
	if len(e.Command) == 0 {
		return fmt.Errorf("no probe command specified")
	}
	runner := e.runner
	if runner == nil {
		runner = shell.OS{}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout+time.Second)
	defer cancel()

	args := append(append([]string{}, e.Command[1:]...), node)
	res := runner.Run(execCtx, e.Command[0], args...)
	if !res.Success() {
		msg := strings.TrimSpace(string(res.Stderr))
		if msg == "" {
			return res.Err
		}
		return fmt.Errorf("%v: %s", res.Err, msg)
	}
	return nil
}

// WithTimeout sets the execution timeout
func (e *ExecProber) WithTimeout(timeout time.Duration) *ExecProber {
	e.Timeout = timeout
	return e
}
