package main

import (
	"context"
	"fmt"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/spf13/cobra"
)

var scavengeCmd = &cobra.Command{
	Use:   "scavenge",
	Short: "Copy cached datasets to the prefix directory",
	Long: `Run postrun recovery outside of a job run. Unflushed output datasets are
copied oldest first until one fails, then the newest checkpoint older than
that failure is copied and made the restart point.

Without --nodes the allocation is diagnosed and recovery uses the nodes
that pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodesArg, _ := cmd.Flags().GetString("nodes")
		ctx := context.Background()

		c, err := newComponents(cfg)
		if err != nil {
			return err
		}
		jobID, err := c.rm.JobID()
		if err == nil {
			c.recorder.SetJobID(jobID)
		}

		var up hostlist.NodeSet
		if nodesArg != "" {
			up, err = hostlist.Expand(nodesArg)
			if err != nil {
				return err
			}
		} else {
			nodes, err := c.rm.AllocatedNodes()
			if err != nil {
				return err
			}
			diag, err := c.newDiagnostics(cfg)
			if err != nil {
				return err
			}
			// a standalone scavenge is never the first run
			report := diag.Run(ctx, nodes, 2)
			up = hostlist.Diff(nodes, report.Nodes())
		}

		res, err := c.newScavenger(cfg).Recover(ctx, up, cfg.CntlDir)
		if err != nil {
			return err
		}

		fmt.Printf("Succeeded: %v\n", res.Succeeded)
		fmt.Printf("Failed:    %v\n", res.Failed)
		if res.Current != "" {
			fmt.Printf("Current:   %s\n", res.Current)
		}
		if len(res.Failed) > 0 && res.Current == "" {
			return exitCode(1)
		}
		return nil
	},
}

func init() {
	scavengeCmd.Flags().String("nodes", "", "hostlist of nodes to copy from (default: healthy allocation nodes)")
}
