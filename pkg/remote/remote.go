package remote

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/shell"
	"github.com/cuemby/scrun/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Strategy names an Executor implementation
type Strategy string

const (
	StrategyPdsh     Strategy = "pdsh"
	StrategyParallel Strategy = "parallel"
)

// DefaultFanout bounds the number of nodes contacted at once
const DefaultFanout = 256

// Executor runs a command on every node of a set and collects per-node output.
// Every requested node appears in the result; a node that never reported
// back has empty output and a nil exit code.
type Executor interface {
	Execute(ctx context.Context, command []string, nodes hostlist.NodeSet) (types.RemoteResult, error)
}

// Config selects and configures an Executor
type Config struct {
	Strategy Strategy
	Fanout   int

	// Pdsh is the fan-out tool binary (default "pdsh")
	Pdsh string
	// Rcmd is passed to pdsh -R when set, e.g. "ssh" or "exec"
	Rcmd string

	// Shell is the per-node prefix for the parallel strategy; the node name
	// is appended to it, e.g. ["ssh", "-o", "BatchMode=yes"]
	Shell []string
}

// New builds the Executor described by cfg
func New(cfg Config, runner shell.Runner) (Executor, error) {
	if runner == nil {
		runner = shell.OS{}
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = DefaultFanout
	}

	switch cfg.Strategy {
	case StrategyPdsh, "":
		return NewPdshExecutor(cfg, runner), nil
	case StrategyParallel:
		return NewParallelExecutor(cfg, runner), nil
	default:
		return nil, fmt.Errorf("unknown remote strategy: %s", cfg.Strategy)
	}
}

// fill adds an unreported entry for any node missing from res
func fill(res types.RemoteResult, nodes hostlist.NodeSet) types.RemoteResult {
	for _, n := range nodes {
		if _, ok := res[n]; !ok {
			res[n] = types.NodeOutput{}
		}
	}
	return res
}

func intPtr(v int) *int {
	return &v
}

// PdshExecutor fans a command out with pdsh and splits its tagged output
type PdshExecutor struct {
	binary string
	rcmd   string
	fanout int
	runner shell.Runner
}

// NewPdshExecutor creates a pdsh-backed executor
func NewPdshExecutor(cfg Config, runner shell.Runner) *PdshExecutor {
	binary := cfg.Pdsh
	if binary == "" {
		binary = "pdsh"
	}
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &PdshExecutor{binary: binary, rcmd: cfg.Rcmd, fanout: fanout, runner: runner}
}

// Execute runs command on nodes through pdsh
func (p *PdshExecutor) Execute(ctx context.Context, command []string, nodes hostlist.NodeSet) (types.RemoteResult, error) {
	res := make(types.RemoteResult, len(nodes))
	if len(nodes) == 0 {
		return res, nil
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("empty remote command")
	}

	args := []string{"-f", strconv.Itoa(p.fanout), "-S"}
	if p.rcmd != "" {
		args = append(args, "-R", p.rcmd)
	}
	args = append(args, "-w", hostlist.Compress(nodes))
	args = append(args, command...)

	out := p.runner.Run(ctx, p.binary, args...)
	if out.ExitCode == -1 && len(out.Stdout) == 0 && len(out.Stderr) == 0 {
		// pdsh itself could not run; nothing reported
		return fill(res, nodes), fmt.Errorf("fan-out failed: %w", out.Err)
	}
	if !out.Success() {
		logger := log.WithComponent("remote")
		logger.Debug().
			Int("exit_code", out.ExitCode).
			Msg("pdsh returned non-zero, per-node codes taken from its output")
	}

	parsePdshOutput(res, nodes, string(out.Stdout), string(out.Stderr))
	return fill(res, nodes), nil
}

// pdshExitRe matches pdsh's per-node exit-status line on stderr, e.g.
// "pdsh@login1: node3: ssh exited with exit code 2"
var pdshExitRe = regexp.MustCompile(`^(?:pdsh@\S+: )?(\S+): .*exit(?:ed)?(?: with exit)? code (\d+)`)

func parsePdshOutput(res types.RemoteResult, nodes hostlist.NodeSet, stdout, stderr string) {
	stdoutLines := make(map[string][]string)
	stderrLines := make(map[string][]string)
	codes := make(map[string]int)

	for _, line := range splitLines(stdout) {
		if node, text, ok := splitTagged(line); ok && nodes.Contains(node) {
			stdoutLines[node] = append(stdoutLines[node], text)
		}
	}
	for _, line := range splitLines(stderr) {
		if m := pdshExitRe.FindStringSubmatch(line); m != nil && nodes.Contains(m[1]) {
			code, _ := strconv.Atoi(m[2])
			codes[m[1]] = code
			continue
		}
		if strings.HasPrefix(line, "pdsh@") {
			// pdsh's own diagnostics for a node: "pdsh@host: node: msg"
			_, rest, _ := strings.Cut(line, ": ")
			if node, text, ok := splitTagged(rest); ok && nodes.Contains(node) {
				stderrLines[node] = append(stderrLines[node], text)
				if _, known := codes[node]; !known {
					codes[node] = 255
				}
			}
			continue
		}
		if node, text, ok := splitTagged(line); ok && nodes.Contains(node) {
			stderrLines[node] = append(stderrLines[node], text)
		}
	}

	for _, node := range nodes {
		o, reportedOut := stdoutLines[node]
		e, reportedErr := stderrLines[node]
		code, hasCode := codes[node]
		if !reportedOut && !reportedErr && !hasCode {
			continue
		}
		entry := types.NodeOutput{
			Stdout: strings.Join(o, "\n"),
			Stderr: strings.Join(e, "\n"),
		}
		if hasCode {
			entry.ExitCode = intPtr(code)
		} else {
			entry.ExitCode = intPtr(0)
		}
		res[node] = entry
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// splitTagged splits "node: text" into its parts
func splitTagged(line string) (node, text string, ok bool) {
	node, text, ok = strings.Cut(line, ":")
	if !ok || node == "" || strings.ContainsAny(node, " \t") {
		return "", "", false
	}
	return node, strings.TrimPrefix(text, " "), true
}

// ParallelExecutor runs one remote-shell command per node concurrently
type ParallelExecutor struct {
	shell  []string
	fanout int
	runner shell.Runner
}

// NewParallelExecutor creates a per-node fan-out executor
func NewParallelExecutor(cfg Config, runner shell.Runner) *ParallelExecutor {
	sh := cfg.Shell
	if len(sh) == 0 {
		sh = []string{"ssh", "-o", "BatchMode=yes"}
	}
	fanout := cfg.Fanout
	if fanout <= 0 {
		fanout = DefaultFanout
	}
	return &ParallelExecutor{shell: sh, fanout: fanout, runner: runner}
}

// Execute runs command on each node and waits for all of them
func (p *ParallelExecutor) Execute(ctx context.Context, command []string, nodes hostlist.NodeSet) (types.RemoteResult, error) {
	if len(command) == 0 && len(nodes) > 0 {
		return nil, fmt.Errorf("empty remote command")
	}

	// Each goroutine owns one slot, so no locking is needed
	outputs := make([]types.NodeOutput, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanout)
	for i, node := range nodes {
		g.Go(func() error {
			args := append(append(append([]string{}, p.shell[1:]...), node), command...)
			out := p.runner.Run(gctx, p.shell[0], args...)
			entry := types.NodeOutput{
				Stdout: strings.TrimRight(string(out.Stdout), "\n"),
				Stderr: strings.TrimRight(string(out.Stderr), "\n"),
			}
			if out.ExitCode >= 0 {
				entry.ExitCode = intPtr(out.ExitCode)
			}
			outputs[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	res := make(types.RemoteResult, len(nodes))
	for i, node := range nodes {
		res[node] = outputs[i]
	}
	return fill(res, nodes), nil
}
