package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/scrun/pkg/config"
	"github.com/cuemby/scrun/pkg/events"
	"github.com/cuemby/scrun/pkg/health"
	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/index"
	"github.com/cuemby/scrun/pkg/remote"
	"github.com/cuemby/scrun/pkg/rm"
	"github.com/cuemby/scrun/pkg/scavenge"
	"github.com/cuemby/scrun/pkg/shell"
	"github.com/cuemby/scrun/pkg/types"
)

// components are the collaborators every job-level command shares
type components struct {
	runner   shell.Runner
	rm       rm.ResourceManager
	exec     remote.Executor
	index    *index.CLI
	recorder *events.Recorder
}

func newComponents(cfg *config.Config) (*components, error) {
	c := &components{runner: shell.OS{}}

	manager, err := newResourceManager(cfg, c.runner)
	if err != nil {
		return nil, err
	}
	c.rm = manager

	c.exec, err = remote.New(remote.Config{
		Strategy: remote.Strategy(cfg.Remote.Strategy),
		Fanout:   cfg.Remote.Fanout,
		Pdsh:     cfg.Remote.Pdsh,
		Rcmd:     cfg.Remote.Rcmd,
		Shell:    cfg.Remote.Shell,
	}, c.runner)
	if err != nil {
		return nil, err
	}

	c.index = index.NewCLI(cfg.Prefix, c.runner)
	if cfg.Index.FlushFile != "" {
		c.index.FlushFile = cfg.Index.FlushFile
	}
	if cfg.Index.IndexTool != "" {
		c.index.IndexTool = cfg.Index.IndexTool
	}

	sinks := events.Multi{events.NewLogSink()}
	if cfg.Events.File != "" {
		file, err := events.NewFileSink(cfg.Events.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, file)
	}
	c.recorder = events.NewRecorder(sinks, "")

	return c, nil
}

func newResourceManager(cfg *config.Config, runner shell.Runner) (rm.ResourceManager, error) {
	var static *rm.Static
	if strings.EqualFold(cfg.RM, "static") {
		s, err := rm.NewStatic(cfg.Static.JobID, cfg.Static.Nodes, cfg.Static.EndTime)
		if err != nil {
			return nil, fmt.Errorf("static.nodes: %w", err)
		}
		down, err := hostlist.Expand(cfg.Static.Down)
		if err != nil {
			return nil, fmt.Errorf("static.down: %w", err)
		}
		s.Down = types.HealthReport{}
		for _, n := range down {
			s.Down.Add(n, health.ReasonReportedDown)
		}
		static = s
	}
	return rm.New(cfg.RM, static, runner)
}

// newDiagnostics builds the standard test sequence: operator exclusions,
// resource manager state, reachability, remote echo, then directory capacity
func (c *components) newDiagnostics(cfg *config.Config) (*health.Diagnostics, error) {
	excluded, err := hostlist.Expand(cfg.ExcludeNodes)
	if err != nil {
		return nil, fmt.Errorf("exclude_nodes: %w", err)
	}

	tests := []health.Test{
		&health.ExcludedTest{Nodes: excluded},
		&health.ResourceManagerTest{RM: c.rm},
	}

	switch cfg.Reach.Probe {
	case "ping":
		prober := health.NewPingProber(c.runner)
		if cfg.Reach.Timeout > 0 {
			prober = prober.WithTimeout(cfg.Reach.Timeout)
		}
		tests = append(tests, &health.ReachabilityTest{Prober: prober, RetryDelay: time.Second})
	case "tcp":
		prober := health.NewTCPProber(cfg.Reach.Port)
		if cfg.Reach.Timeout > 0 {
			prober = prober.WithTimeout(cfg.Reach.Timeout)
		}
		tests = append(tests, &health.ReachabilityTest{Prober: prober, RetryDelay: time.Second})
	}

	tests = append(tests, &health.EchoTest{Exec: c.exec})

	control, err := cfg.ControlCheck()
	if err != nil {
		return nil, err
	}
	cache, err := cfg.CacheCheck()
	if err != nil {
		return nil, err
	}
	agent, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate node-check agent: %w", err)
	}
	tests = append(tests, &health.CapacityTest{
		Exec:    c.exec,
		Agent:   []string{agent, "check-node"},
		Control: control,
		Cache:   cache,
	})

	return health.NewDiagnostics(tests...), nil
}

func (c *components) newScavenger(cfg *config.Config) *scavenge.Scavenger {
	return scavenge.New(c.exec, c.index, scavenge.CopyOptions{
		Tool:    cfg.Copy.Tool,
		Prefix:  cfg.Prefix,
		BufSize: cfg.Copy.BufSize,
		CRC:     cfg.Copy.CRC,
		Partner: cfg.Copy.Partner,
	}, c.recorder)
}
