package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "slurm", cfg.RM)
	assert.Equal(t, 1, cfg.Runs)
	assert.Equal(t, 60*time.Second, cfg.Settle())
	assert.Equal(t, time.Hour, cfg.Watchdog.Timeout)
	assert.Equal(t, 2*time.Hour, cfg.Watchdog.PFSTimeout)
	assert.Equal(t, "pdsh", cfg.Remote.Strategy)
	assert.Equal(t, 256, cfg.Remote.Fanout)
	assert.Equal(t, []string{"ssh", "-o", "BatchMode=yes"}, cfg.Remote.Shell)
	assert.Equal(t, "ping", cfg.Reach.Probe)
	assert.Equal(t, int64(1<<20), cfg.Copy.BufSize)
	assert.Equal(t, "info", cfg.Log.Level)

	// state files live under the prefix
	assert.True(t, filepath.IsAbs(cfg.Prefix))
	assert.Equal(t, filepath.Join(cfg.Prefix, ".scrun", "halt.yaml"), cfg.Halt.File)
	assert.Equal(t, filepath.Join(cfg.Prefix, ".scrun", "events.jsonl"), cfg.Events.File)
	assert.Equal(t, filepath.Join(cfg.Prefix, ".scrun"), cfg.Store.Dir)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCRUN_RUNS", "5")
	t.Setenv("SCRUN_WATCHDOG_ENABLED", "true")
	t.Setenv("SCRUN_WATCHDOG_TIMEOUT", "10m")
	t.Setenv("SCRUN_EXCLUDE_NODES", "n[3-4]")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Runs)
	assert.True(t, cfg.Watchdog.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Watchdog.Timeout)
	assert.Equal(t, "n[3-4]", cfg.ExcludeNodes)
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scrun.yaml")
	content := `
prefix: /p/lustre/job
rm: static
static:
  job_id: "77"
  nodes: "rank[1-8]"
cntl_bytes: 1GB
runs: 3
remote:
  strategy: parallel
  fanout: 32
copy:
  crc: true
halt:
  file: /tmp/halt.yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/p/lustre/job", cfg.Prefix)
	assert.Equal(t, "static", cfg.RM)
	assert.Equal(t, "77", cfg.Static.JobID)
	assert.Equal(t, "rank[1-8]", cfg.Static.Nodes)
	assert.Equal(t, 3, cfg.Runs)
	assert.Equal(t, "parallel", cfg.Remote.Strategy)
	assert.Equal(t, 32, cfg.Remote.Fanout)
	assert.True(t, cfg.Copy.CRC)
	assert.Equal(t, "/tmp/halt.yaml", cfg.Halt.File)
	assert.Equal(t, "/p/lustre/job/.scrun/events.jsonl", cfg.Events.File)

	check, err := cfg.ControlCheck()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<30), check.MinBytes)
}

func TestLoader_ProjectFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".scrun.yaml"), []byte("runs: 9\n"), 0o644))

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Runs)
	assert.NotEmpty(t, loader.ConfigFile())
}

func TestLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runs: [1"), 0o644))

	_, err := NewLoader().WithConfigFile(path).Load()
	assert.Error(t, err)
}

func TestLoader_ValidationFails(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCRUN_RUNS", "-1")

	_, err := NewLoader().Load()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "runs", verrs[0].Field)
}
