package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RM:       "slurm",
		Runs:     1,
		Remote:   RemoteConfig{Strategy: "pdsh", Fanout: 64},
		Reach:    ReachConfig{Probe: "ping"},
		Watchdog: WatchdogConfig{Timeout: time.Hour, PFSTimeout: 2 * time.Hour},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "negative runs", mutate: func(c *Config) { c.Runs = -2 }, field: "runs"},
		{name: "negative nodes needed", mutate: func(c *Config) { c.NodesNeeded = -1 }, field: "nodes_needed"},
		{name: "unknown rm", mutate: func(c *Config) { c.RM = "pbs" }, field: "rm"},
		{name: "static without nodes", mutate: func(c *Config) { c.RM = "static" }, field: "static.nodes"},
		{name: "bad exclude list", mutate: func(c *Config) { c.ExcludeNodes = "n[1-" }, field: "exclude_nodes"},
		{name: "bad size", mutate: func(c *Config) { c.CacheDir = "/c"; c.CacheBytes = "lots" }, field: "cache_bytes"},
		{
			name: "inverted watchdog timeouts",
			mutate: func(c *Config) {
				c.Watchdog = WatchdogConfig{Enabled: true, Timeout: time.Hour, PFSTimeout: time.Minute}
			},
			field: "watchdog.pfs_timeout",
		},
		{
			name:   "watchdog without timeout",
			mutate: func(c *Config) { c.Watchdog = WatchdogConfig{Enabled: true, PFSTimeout: time.Hour} },
			field:  "watchdog.timeout",
		},
		{
			name:   "inverted timeouts ignored when disabled",
			mutate: func(c *Config) { c.Watchdog = WatchdogConfig{Timeout: time.Hour} },
		},
		{name: "unknown strategy", mutate: func(c *Config) { c.Remote.Strategy = "mrsh" }, field: "remote.strategy"},
		{name: "parallel without shell", mutate: func(c *Config) { c.Remote.Strategy = "parallel" }, field: "remote.shell"},
		{name: "tcp without port", mutate: func(c *Config) { c.Reach.Probe = "tcp" }, field: "reach.port"},
		{name: "unknown probe", mutate: func(c *Config) { c.Reach.Probe = "icmp" }, field: "reach.probe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestDirChecks(t *testing.T) {
	cfg := validConfig()
	cfg.CntlDir = "/dev/shm/cntl"
	cfg.CacheDir = "/dev/shm/cache"
	cfg.CacheBytes = "2GB"

	cntl, err := cfg.ControlCheck()
	require.NoError(t, err)
	assert.Equal(t, "/dev/shm/cntl", cntl.Path)
	assert.Zero(t, cntl.MinBytes)

	cache, err := cfg.CacheCheck()
	require.NoError(t, err)
	assert.Equal(t, uint64(2<<30), cache.MinBytes)
}
