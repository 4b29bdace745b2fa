package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/remote"
	"github.com/cuemby/scrun/pkg/types"
)

// Reasons reported by the standard tests
const (
	ReasonExcluded     = "Excluded by user"
	ReasonReportedDown = "Reported down by resource manager"
	ReasonPing         = "Failed to ping"
	ReasonEcho         = "Failed to run remote echo"
	ReasonCapacity     = "Failed node check"
)

// ExcludedTest marks the operator's exclusion list bad unconditionally
type ExcludedTest struct {
	Nodes hostlist.NodeSet
}

func (t *ExcludedTest) Name() string { return "excluded" }

func (t *ExcludedTest) Run(ctx context.Context, in Input) (types.HealthReport, error) {
	report := types.HealthReport{}
	for _, node := range hostlist.Intersect(in.Nodes, t.Nodes) {
		report.Add(node, ReasonExcluded)
	}
	return report, nil
}

// DownReporter is the resource manager's view of failed nodes
type DownReporter interface {
	DownNodes(ctx context.Context) (types.HealthReport, error)
}

// ResourceManagerTest trusts the resource manager's down list without probing
type ResourceManagerTest struct {
	RM DownReporter
}

func (t *ResourceManagerTest) Name() string { return "resource-manager" }

func (t *ResourceManagerTest) Run(ctx context.Context, in Input) (types.HealthReport, error) {
	down, err := t.RM.DownNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("query down nodes: %w", err)
	}

	report := types.HealthReport{}
	for _, node := range in.Nodes {
		if reason, ok := down[node]; ok {
			if reason == "" {
				reason = ReasonReportedDown
			}
			report.Add(node, reason)
		}
	}
	return report, nil
}

// ReachabilityTest probes each node once and retries a failed probe once
// before declaring the node bad
type ReachabilityTest struct {
	Prober     Prober
	RetryDelay time.Duration
}

func (t *ReachabilityTest) Name() string { return "reachability" }

func (t *ReachabilityTest) Run(ctx context.Context, in Input) (types.HealthReport, error) {
	logger := log.WithComponent("health")
	report := types.HealthReport{}

	for _, node := range in.Nodes {
		err := t.Prober.Probe(ctx, node)
		if err == nil {
			continue
		}
		nodeLogger := log.WithNode(logger, node)
		nodeLogger.Debug().Err(err).Msg("Probe failed, retrying once")

		if t.RetryDelay > 0 {
			select {
			case <-time.After(t.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := t.Prober.Probe(ctx, node); err != nil {
			report.Add(node, ReasonPing)
		}
	}
	return report, nil
}

// EchoTest runs a trivial command on every node through the remote executor.
// A node whose stdout does not carry the marker is bad.
type EchoTest struct {
	Exec   remote.Executor
	Marker string // default "UP"
}

func (t *EchoTest) Name() string { return "remote-echo" }

func (t *EchoTest) Run(ctx context.Context, in Input) (types.HealthReport, error) {
	marker := t.Marker
	if marker == "" {
		marker = "UP"
	}

	res, err := t.Exec.Execute(ctx, []string{"echo", marker}, in.Nodes)
	if err != nil {
		return nil, fmt.Errorf("remote echo: %w", err)
	}

	report := types.HealthReport{}
	for _, node := range in.Nodes {
		if !hasLine(res[node].Stdout, marker) {
			report.Add(node, ReasonEcho)
		}
	}
	return report, nil
}

func hasLine(out, want string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

// CapacityTest runs the node-check agent on every node to verify the control
// and cache directories exist, are large enough and are writable. Free
// space is checked on the first attempt and total capacity afterwards, since
// later attempts find the cache already holding the job's own datasets.
type CapacityTest struct {
	Exec remote.Executor

	// Agent is the command that runs the node check on a node, e.g.
	// ["/path/to/scrun", "check-node"]
	Agent []string

	Control DirCheck
	Cache   DirCheck
}

func (t *CapacityTest) Name() string { return "capacity" }

// Command returns the remote command line for the given attempt
func (t *CapacityTest) Command(in Input) []string {
	cmd := append([]string{}, t.Agent...)
	if t.Control.Path != "" {
		cmd = append(cmd, "--cntl", t.Control.String())
	}
	if t.Cache.Path != "" {
		cmd = append(cmd, "--cache", t.Cache.String())
	}
	if in.IsFirstAttempt() {
		cmd = append(cmd, "--free")
	}
	return cmd
}

func (t *CapacityTest) Run(ctx context.Context, in Input) (types.HealthReport, error) {
	if t.Control.Path == "" && t.Cache.Path == "" {
		return types.HealthReport{}, nil
	}
	if len(t.Agent) == 0 {
		return nil, fmt.Errorf("no node-check agent configured")
	}

	res, err := t.Exec.Execute(ctx, t.Command(in), in.Nodes)
	if err != nil {
		return nil, fmt.Errorf("node check: %w", err)
	}

	report := types.HealthReport{}
	for _, node := range in.Nodes {
		out := res[node]
		if hasLine(out.Stdout, PassMarker) && out.Succeeded() {
			continue
		}
		report.Add(node, failReason(out))
	}
	return report, nil
}

// failReason extracts the first agent failure message from node output
func failReason(out types.NodeOutput) string {
	for _, line := range strings.Split(out.Stdout+"\n"+out.Stderr, "\n") {
		line = strings.TrimSpace(line)
		if msg, ok := strings.CutPrefix(line, FailMarker); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ReasonCapacity
}
