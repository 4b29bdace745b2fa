package config

import (
	"fmt"
	"strings"

	"github.com/cuemby/scrun/pkg/hostlist"
)

// ValidationError describes one invalid setting
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks cfg and returns ValidationErrors when anything is wrong
func Validate(cfg *Config) error {
	var errs ValidationErrors
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	switch strings.ToLower(cfg.RM) {
	case "slurm", "":
	case "static":
		if cfg.Static.Nodes == "" {
			add("static.nodes", cfg.Static.Nodes, "required for the static resource manager")
		}
	default:
		add("rm", cfg.RM, "must be slurm or static")
	}

	if cfg.Runs < 0 {
		add("runs", cfg.Runs, "must not be negative")
	}
	if cfg.NodesNeeded < 0 {
		add("nodes_needed", cfg.NodesNeeded, "must not be negative")
	}
	if cfg.SettleSeconds < 0 {
		add("settle_seconds", cfg.SettleSeconds, "must not be negative")
	}

	for field, text := range map[string]string{
		"exclude_nodes": cfg.ExcludeNodes,
		"static.nodes":  cfg.Static.Nodes,
		"static.down":   cfg.Static.Down,
	} {
		if _, err := hostlist.Expand(text); err != nil {
			add(field, text, err.Error())
		}
	}

	if _, err := cfg.ControlCheck(); err != nil {
		add("cntl_bytes", cfg.CntlBytes, err.Error())
	}
	if _, err := cfg.CacheCheck(); err != nil {
		add("cache_bytes", cfg.CacheBytes, err.Error())
	}

	if cfg.Watchdog.Enabled {
		if cfg.Watchdog.Timeout <= 0 {
			add("watchdog.timeout", cfg.Watchdog.Timeout, "must be positive when the watchdog is enabled")
		}
		if cfg.Watchdog.PFSTimeout < cfg.Watchdog.Timeout {
			add("watchdog.pfs_timeout", cfg.Watchdog.PFSTimeout, "must not be shorter than watchdog.timeout")
		}
	}

	switch cfg.Remote.Strategy {
	case "pdsh", "parallel":
	default:
		add("remote.strategy", cfg.Remote.Strategy, "must be pdsh or parallel")
	}
	if cfg.Remote.Fanout < 0 {
		add("remote.fanout", cfg.Remote.Fanout, "must not be negative")
	}
	if cfg.Remote.Strategy == "parallel" && len(cfg.Remote.Shell) == 0 {
		add("remote.shell", cfg.Remote.Shell, "required for the parallel strategy")
	}

	switch cfg.Reach.Probe {
	case "ping", "none":
	case "tcp":
		if cfg.Reach.Port <= 0 || cfg.Reach.Port > 65535 {
			add("reach.port", cfg.Reach.Port, "must be a valid port for the tcp probe")
		}
	default:
		add("reach.probe", cfg.Reach.Probe, "must be ping, tcp or none")
	}

	if cfg.Copy.BufSize < 0 {
		add("copy.buf_size", cfg.Copy.BufSize, "must not be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
