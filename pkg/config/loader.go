package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix, e.g. SCRUN_RUNS
const EnvPrefix = "SCRUN"

// Loader handles configuration loading from multiple sources
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// NewLoaderWithViper creates a loader around an existing viper instance so
// command flags bound to it take part in the lookup
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// WithConfigFile sets an explicit config file path
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads configuration. Precedence, highest first:
// flags bound with BindPFlag, SCRUN_* environment, the config file
// (--config, ./.scrun.yaml or ~/.config/scrun/config.yaml), defaults.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".scrun")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "scrun"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.resolvePaths()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("enabled", true)
	l.v.SetDefault("rm", "slurm")

	l.v.SetDefault("prefix", ".")
	l.v.SetDefault("cntl_dir", "/dev/shm/scrun")
	l.v.SetDefault("cache_dir", "/dev/shm/scrun")
	l.v.SetDefault("cntl_bytes", "0")
	l.v.SetDefault("cache_bytes", "0")

	l.v.SetDefault("runs", 1)
	l.v.SetDefault("nodes_needed", 0)
	l.v.SetDefault("exclude_nodes", "")
	l.v.SetDefault("settle_seconds", 60)

	l.v.SetDefault("watchdog.enabled", false)
	l.v.SetDefault("watchdog.timeout", "1h")
	l.v.SetDefault("watchdog.pfs_timeout", "2h")

	l.v.SetDefault("remote.strategy", "pdsh")
	l.v.SetDefault("remote.fanout", 256)
	l.v.SetDefault("remote.pdsh", "pdsh")
	l.v.SetDefault("remote.rcmd", "")
	l.v.SetDefault("remote.shell", []string{"ssh", "-o", "BatchMode=yes"})

	l.v.SetDefault("reach.probe", "ping")
	l.v.SetDefault("reach.port", 22)
	l.v.SetDefault("reach.timeout", "5s")

	l.v.SetDefault("copy.tool", "scr_copy")
	l.v.SetDefault("copy.buf_size", 1<<20)
	l.v.SetDefault("copy.crc", false)
	l.v.SetDefault("copy.partner", false)

	l.v.SetDefault("index.flush_file", "scr_flush_file")
	l.v.SetDefault("index.index_tool", "scr_index")

	l.v.SetDefault("halt.file", "")
	l.v.SetDefault("events.file", "")
	l.v.SetDefault("store.dir", "")
	l.v.SetDefault("metrics.textfile", "")

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.json", false)
}
