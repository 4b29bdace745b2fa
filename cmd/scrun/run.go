package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/cuemby/scrun/pkg/launcher"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/cuemby/scrun/pkg/runner"
	"github.com/cuemby/scrun/pkg/storage"
	"github.com/cuemby/scrun/pkg/watchdog"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <launcher args> [application]",
	Short: "Run the job, relaunching on healthy nodes after failures",
	Long: `Run the job under the configured launcher.

Everything after -- is passed to the launcher. Without --run-cmd the
application command is expected at the end of the launcher arguments.
When --restart-cmd is given and the index names a checkpoint to restart
from, SCR_CKPT_NAME in the restart command is replaced with its name.`,
	Example: `  scrun run --launcher srun --runs 3 -- -n 512 ./app
  scrun run --launcher srun --restart-cmd "./app --restart SCR_CKPT_NAME" --run-cmd ./app -- -n 512`,
	RunE: func(cmd *cobra.Command, args []string) error {
		launcherName, _ := cmd.Flags().GetString("launcher")
		runArg, _ := cmd.Flags().GetString("run-cmd")
		restartArg, _ := cmd.Flags().GetString("restart-cmd")

		if launcherName == "" {
			return fmt.Errorf("--launcher is required")
		}

		runCommand := append([]string{}, args...)
		if runArg != "" {
			runCommand = append(runCommand, strings.Fields(runArg)...)
		}
		if len(runCommand) == 0 {
			return fmt.Errorf("no launcher arguments or run command given")
		}
		var restartCommand []string
		if restartArg != "" {
			restartCommand = append(append([]string{}, args...), strings.Fields(restartArg)...)
		}

		c, err := newComponents(cfg)
		if err != nil {
			return err
		}
		diag, err := c.newDiagnostics(cfg)
		if err != nil {
			return err
		}

		store, err := storage.NewBoltStore(cfg.Store.Dir)
		if err != nil {
			return err
		}
		defer store.Close()

		l := launcher.NewExec(launcherName, nil)
		opts := []runner.Option{
			runner.WithIndex(c.index),
			runner.WithStore(store),
			runner.WithEvents(c.recorder),
			runner.WithRecoverer(c.newScavenger(cfg)),
		}
		if cfg.Watchdog.Enabled {
			w := watchdog.New(l, c.index, cfg.Watchdog.Timeout, cfg.Watchdog.PFSTimeout)
			w.Events = c.recorder
			opts = append(opts, runner.WithWatchdog(w))
		}

		r := runner.New(runner.Config{
			Runs:            cfg.Runs,
			NodesNeeded:     cfg.NodesNeeded,
			Settle:          cfg.Settle(),
			RunCmd:          runCommand,
			RestartCmd:      restartCommand,
			HaltFile:        cfg.Halt.File,
			CntlDir:         cfg.CntlDir,
			MetricsTextfile: cfg.Metrics.Textfile,
			Disabled:        !cfg.Enabled,
		}, c.rm, diag, l, opts...)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := r.Run(ctx)
		if err != nil {
			return err
		}

		logger := log.WithJobID(sum.JobID)
		event := logger.Info()
		if !sum.Success() {
			event = logger.Warn()
		}
		event.
			Int("attempts", len(sum.Attempts)).
			Str("down", hostlist.Compress(sum.Down.Nodes())).
			Str("stop_reason", sum.StopReason).
			Bool("success", sum.Success()).
			Msg("Job finished")

		if sum.RecoveryErr != nil {
			logger.Error().Err(sum.RecoveryErr).Msg("Scavenge did not complete")
		}
		if !sum.Success() {
			return exitCode(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("launcher", "", "launcher binary, e.g. srun or mpirun")
	runCmd.Flags().String("run-cmd", "", "application command for the first launch")
	runCmd.Flags().String("restart-cmd", "", "application command for a restart; SCR_CKPT_NAME is replaced")
	runCmd.Flags().Int("runs", 0, "maximum number of launches (0: one)")
	runCmd.Flags().Int("nodes-needed", 0, "minimum healthy nodes to launch (default: last run size or allocation size)")
	runCmd.Flags().String("exclude", "", "hostlist of nodes never to use")
	runCmd.Flags().Bool("watchdog", false, "kill the job when no checkpoint progress is seen")

	bindFlags(runCmd.Flags(), map[string]string{
		"runs":         "runs",
		"nodes-needed": "nodes_needed",
		"exclude":      "exclude_nodes",
		"watchdog":     "watchdog.enabled",
	})
}
