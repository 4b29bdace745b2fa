// Package rm abstracts the resource manager that granted the job allocation.
package rm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/shell"
	"github.com/cuemby/scrun/pkg/types"
)

// End time sentinels returned by EndTime
const (
	EndTimeUnknown int64 = 0
	EndTimeNone    int64 = -1
)

// ResourceManager answers questions about the current allocation
type ResourceManager interface {
	// JobID returns the allocation's job id
	JobID() (string, error)

	// AllocatedNodes returns every node granted to the job
	AllocatedNodes() (hostlist.NodeSet, error)

	// DownNodes returns allocation nodes the resource manager considers failed
	DownNodes(ctx context.Context) (types.HealthReport, error)

	// EndTime returns the allocation end as unix seconds, EndTimeUnknown
	// or EndTimeNone
	EndTime(ctx context.Context) (int64, error)
}

// New returns the backend with the given name
func New(name string, static *Static, runner shell.Runner) (ResourceManager, error) {
	switch strings.ToLower(name) {
	case "slurm", "":
		return NewSlurm(runner), nil
	case "static":
		if static == nil {
			return nil, fmt.Errorf("static resource manager requires job settings")
		}
		return static, nil
	default:
		return nil, fmt.Errorf("unsupported resource manager: %s", name)
	}
}

// Slurm reads the allocation from SLURM environment variables and queries
// sinfo/squeue for node state and the time limit
type Slurm struct {
	getenv func(string) string
	runner shell.Runner
}

// NewSlurm creates a SLURM backend
func NewSlurm(runner shell.Runner) *Slurm {
	if runner == nil {
		runner = shell.OS{}
	}
	return &Slurm{getenv: os.Getenv, runner: runner}
}

func (s *Slurm) JobID() (string, error) {
	for _, key := range []string{"SLURM_JOBID", "SLURM_JOB_ID"} {
		if v := s.getenv(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("SLURM_JOBID is not set")
}

func (s *Slurm) AllocatedNodes() (hostlist.NodeSet, error) {
	for _, key := range []string{"SLURM_NODELIST", "SLURM_JOB_NODELIST"} {
		if v := s.getenv(key); v != "" {
			return hostlist.Expand(v)
		}
	}
	return nil, fmt.Errorf("SLURM_NODELIST is not set")
}

func (s *Slurm) DownNodes(ctx context.Context) (types.HealthReport, error) {
	nodes, err := s.AllocatedNodes()
	if err != nil {
		return nil, err
	}

	// "%N %T %E": compressed node list, state, reason
	res := s.runner.Run(ctx, "sinfo", "-h", "-N", "-t", "down,drain,fail", "-o", "%N|%T|%E", "-n", hostlist.Compress(nodes))
	if !res.Success() {
		return nil, fmt.Errorf("sinfo: %w", res.Err)
	}

	report := types.HealthReport{}
	for _, line := range strings.Split(strings.TrimSpace(string(res.Stdout)), "\n") {
		fields := strings.SplitN(strings.TrimSpace(line), "|", 3)
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		down, err := hostlist.Expand(fields[0])
		if err != nil {
			return nil, fmt.Errorf("sinfo node list: %w", err)
		}
		reason := "Reported " + strings.ToLower(fields[1]) + " by SLURM"
		if len(fields) == 3 && fields[2] != "" && fields[2] != "none" {
			reason += ": " + fields[2]
		}
		for _, n := range hostlist.Intersect(down, nodes) {
			report.Add(n, reason)
		}
	}
	return report, nil
}

func (s *Slurm) EndTime(ctx context.Context) (int64, error) {
	jobID, err := s.JobID()
	if err != nil {
		return EndTimeUnknown, err
	}

	res := s.runner.Run(ctx, "squeue", "-h", "-j", jobID, "-o", "%e")
	if !res.Success() {
		return EndTimeUnknown, fmt.Errorf("squeue: %w", res.Err)
	}
	return parseSlurmTime(strings.TrimSpace(string(res.Stdout)))
}

func parseSlurmTime(v string) (int64, error) {
	switch strings.ToUpper(v) {
	case "", "N/A":
		return EndTimeUnknown, nil
	case "UNLIMITED", "NONE":
		return EndTimeNone, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", v, time.Local)
	if err != nil {
		return EndTimeUnknown, fmt.Errorf("unexpected end time %q: %w", v, err)
	}
	return t.Unix(), nil
}

// Static is an allocation described entirely by configuration, for machines
// without a supported resource manager and for tests
type Static struct {
	ID    string
	Nodes hostlist.NodeSet
	Down  types.HealthReport
	End   int64
}

// NewStatic builds a static allocation from a hostlist string
func NewStatic(jobID, nodes string, end int64) (*Static, error) {
	set, err := hostlist.Expand(nodes)
	if err != nil {
		return nil, err
	}
	if jobID == "" {
		jobID = strconv.Itoa(os.Getpid())
	}
	return &Static{ID: jobID, Nodes: set, End: end}, nil
}

func (s *Static) JobID() (string, error) {
	if s.ID == "" {
		return "", fmt.Errorf("no job id configured")
	}
	return s.ID, nil
}

func (s *Static) AllocatedNodes() (hostlist.NodeSet, error) {
	if len(s.Nodes) == 0 {
		return nil, fmt.Errorf("no nodes configured")
	}
	return s.Nodes, nil
}

func (s *Static) DownNodes(ctx context.Context) (types.HealthReport, error) {
	report := types.HealthReport{}
	report.Merge(s.Down)
	return report, nil
}

func (s *Static) EndTime(ctx context.Context) (int64, error) {
	return s.End, nil
}
