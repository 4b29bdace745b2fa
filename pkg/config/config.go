// Package config loads scrun settings from defaults, a YAML file, SCRUN_*
// environment variables and command line flags.
package config

import (
	"path/filepath"
	"time"

	"github.com/cuemby/scrun/pkg/health"
)

// Config is the complete scrun configuration
type Config struct {
	// Enabled false launches the job once with no diagnostics or recovery
	Enabled bool `mapstructure:"enabled"`

	// RM names the resource manager backend: slurm or static
	RM     string       `mapstructure:"rm"`
	Static StaticConfig `mapstructure:"static"`

	Prefix     string `mapstructure:"prefix"`
	CntlDir    string `mapstructure:"cntl_dir"`
	CacheDir   string `mapstructure:"cache_dir"`
	CntlBytes  string `mapstructure:"cntl_bytes"`
	CacheBytes string `mapstructure:"cache_bytes"`

	Runs          int    `mapstructure:"runs"`
	NodesNeeded   int    `mapstructure:"nodes_needed"`
	ExcludeNodes  string `mapstructure:"exclude_nodes"`
	SettleSeconds int    `mapstructure:"settle_seconds"`

	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Reach    ReachConfig    `mapstructure:"reach"`
	Copy     CopyConfig     `mapstructure:"copy"`
	Index    IndexConfig    `mapstructure:"index"`
	Halt     HaltConfig     `mapstructure:"halt"`
	Events   EventsConfig   `mapstructure:"events"`
	Store    StoreConfig    `mapstructure:"store"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

// StaticConfig describes an allocation for the static resource manager
type StaticConfig struct {
	JobID   string `mapstructure:"job_id"`
	Nodes   string `mapstructure:"nodes"`
	EndTime int64  `mapstructure:"end_time"`
	Down    string `mapstructure:"down"`
}

// WatchdogConfig configures hang detection
type WatchdogConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PFSTimeout time.Duration `mapstructure:"pfs_timeout"`
}

// RemoteConfig configures the remote executor
type RemoteConfig struct {
	Strategy string   `mapstructure:"strategy"`
	Fanout   int      `mapstructure:"fanout"`
	Pdsh     string   `mapstructure:"pdsh"`
	Rcmd     string   `mapstructure:"rcmd"`
	Shell    []string `mapstructure:"shell"`
}

// ReachConfig selects the reachability probe
type ReachConfig struct {
	Probe   string        `mapstructure:"probe"` // ping, tcp or none
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CopyConfig configures the dataset copy tool
type CopyConfig struct {
	Tool    string `mapstructure:"tool"`
	BufSize int64  `mapstructure:"buf_size"`
	CRC     bool   `mapstructure:"crc"`
	Partner bool   `mapstructure:"partner"`
}

// IndexConfig names the checkpoint library tools
type IndexConfig struct {
	FlushFile string `mapstructure:"flush_file"`
	IndexTool string `mapstructure:"index_tool"`
}

type HaltConfig struct {
	File string `mapstructure:"file"`
}

type EventsConfig struct {
	File string `mapstructure:"file"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Settle returns the pause between attempts
func (c *Config) Settle() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

// ControlCheck returns the control directory requirement
func (c *Config) ControlCheck() (health.DirCheck, error) {
	return dirCheck(c.CntlDir, c.CntlBytes)
}

// CacheCheck returns the cache directory requirement
func (c *Config) CacheCheck() (health.DirCheck, error) {
	return dirCheck(c.CacheDir, c.CacheBytes)
}

func dirCheck(path, size string) (health.DirCheck, error) {
	check := health.DirCheck{Path: path}
	if size == "" || size == "0" {
		return check, nil
	}
	n, err := health.ParseBytes(size)
	if err != nil {
		return health.DirCheck{}, err
	}
	check.MinBytes = n
	return check, nil
}

// resolvePaths fills state file locations that default to the prefix
func (c *Config) resolvePaths() {
	if abs, err := filepath.Abs(c.Prefix); err == nil {
		c.Prefix = abs
	}
	state := filepath.Join(c.Prefix, ".scrun")
	if c.Halt.File == "" {
		c.Halt.File = filepath.Join(state, "halt.yaml")
	}
	if c.Events.File == "" {
		c.Events.File = filepath.Join(state, "events.jsonl")
	}
	if c.Store.Dir == "" {
		c.Store.Dir = state
	}
}
