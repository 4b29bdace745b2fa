// Package launcher starts the application on a node set through the site's
// parallel launcher (srun, mpirun, ...) and supervises the resulting process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/log"
	"golang.org/x/sys/unix"
)

// Launcher starts and supervises one application launch
type Launcher interface {
	Launch(ctx context.Context, survivors, excluded hostlist.NodeSet, argv []string) (*Process, error)

	// Wait blocks until the process exits, ctx is done, or timeout elapses
	// (timeout <= 0 waits without limit). finished is false only when the
	// process is still running.
	Wait(ctx context.Context, p *Process, timeout time.Duration) (finished, success bool)

	Kill(p *Process) error
}

// Process is a running launch
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

// Pid returns the launcher process id
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed when the process has exited
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error once Done is closed
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Exec launches through a local launcher binary
type Exec struct {
	// Name is the launcher command, e.g. "srun"
	Name string
	// Args are passed to the launcher before the application argv
	Args []string
	// Grace is how long Kill waits after SIGTERM before SIGKILL
	Grace time.Duration

	Stdout *os.File
	Stderr *os.File
}

// NewExec creates a launcher for the named launcher binary
func NewExec(name string, args []string) *Exec {
	return &Exec{Name: name, Args: args, Grace: 10 * time.Second, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Command returns the full launcher command line
func (e *Exec) Command(survivors, excluded hostlist.NodeSet, argv []string) []string {
	cmd := []string{e.Name}
	cmd = append(cmd, e.Args...)
	cmd = append(cmd, nodeArgs(e.Name, survivors, excluded)...)
	return append(cmd, argv...)
}

// nodeArgs tells the launcher which nodes to avoid or use
func nodeArgs(name string, survivors, excluded hostlist.NodeSet) []string {
	base := name[strings.LastIndexByte(name, '/')+1:]
	switch base {
	case "srun":
		if len(excluded) > 0 {
			return []string{"--exclude=" + hostlist.Compress(excluded)}
		}
	case "flux":
		if len(excluded) > 0 {
			return []string{"--requires=-host:" + hostlist.Compress(excluded)}
		}
	case "mpirun", "mpiexec":
		if len(excluded) > 0 && len(survivors) > 0 {
			return []string{"--host", strings.Join(survivors, ",")}
		}
	}
	return nil
}

// RequestedNodes returns the node count asked for with -N or --nodes in
// argv, 0 when none is given. A min-max range yields its minimum.
func RequestedNodes(argv []string) int {
	for i, arg := range argv {
		var value string
		switch {
		case arg == "-N" || arg == "--nodes":
			if i+1 >= len(argv) {
				return 0
			}
			value = argv[i+1]
		case strings.HasPrefix(arg, "--nodes="):
			value = strings.TrimPrefix(arg, "--nodes=")
		case strings.HasPrefix(arg, "-N") && len(arg) > 2:
			value = arg[2:]
		default:
			continue
		}
		value, _, _ = strings.Cut(value, "-")
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// Launch starts the launcher in its own process group
func (e *Exec) Launch(ctx context.Context, survivors, excluded hostlist.NodeSet, argv []string) (*Process, error) {
	if e.Name == "" {
		return nil, errors.New("no launcher configured")
	}
	if len(argv) == 0 {
		return nil, errors.New("empty application command")
	}

	line := e.Command(survivors, excluded, argv)
	cmd := exec.Command(line[0], line[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.Name, err)
	}
	logger := log.WithComponent("launcher")
	logger.Info().
		Int("pid", cmd.Process.Pid).
		Str("command", strings.Join(line, " ")).
		Msg("Launched application")

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Wait waits for the process to exit
func (e *Exec) Wait(ctx context.Context, p *Process, timeout time.Duration) (bool, bool) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-p.done:
		return true, p.err == nil
	case <-timer:
		return false, false
	case <-ctx.Done():
		_ = e.Kill(p)
		return true, false
	}
}

// Kill sends SIGTERM to the process group, waits for the grace period,
// then sends SIGKILL if the process hasn't exited
func (e *Exec) Kill(p *Process) error {
	var err error
	p.once.Do(func() {
		err = signalGroup(p, unix.SIGTERM)
		if err != nil {
			return
		}
		select {
		case <-p.done:
		case <-time.After(e.Grace):
			err = signalGroup(p, unix.SIGKILL)
			<-p.done
		}
	})
	return err
}

func signalGroup(p *Process, sig unix.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	pid := p.Pid()
	if pid == 0 {
		return nil
	}
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %v pgid %d: %w", sig, pid, err)
	}
	return nil
}
