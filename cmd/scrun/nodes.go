package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/scrun/pkg/health"
	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/spf13/cobra"
)

var listDownCmd = &cobra.Command{
	Use:   "list-down",
	Short: "Diagnose the allocation and print the nodes that would be excluded",
	RunE: func(cmd *cobra.Command, args []string) error {
		reasons, _ := cmd.Flags().GetBool("reasons")
		attempt, _ := cmd.Flags().GetInt("attempt")

		c, err := newComponents(cfg)
		if err != nil {
			return err
		}
		diag, err := c.newDiagnostics(cfg)
		if err != nil {
			return err
		}
		nodes, err := c.rm.AllocatedNodes()
		if err != nil {
			return err
		}

		report := diag.Run(context.Background(), nodes, attempt)
		if reasons {
			for _, node := range report.Nodes() {
				fmt.Printf("%s: %s\n", node, report[node])
			}
			return nil
		}
		if len(report) > 0 {
			fmt.Println(hostlist.Compress(report.Nodes()))
		}
		return nil
	},
}

var checkNodeCmd = &cobra.Command{
	Use:    "check-node",
	Short:  "Check control and cache directories on this node",
	Hidden: true,
	Long: `Check control and cache directories on the local node. Each directory is
created if missing, checked against its size threshold and tested for
writability. Prints PASS, or one "FAIL: reason" line per failed check and
exits non-zero. Run remotely by the capacity diagnostic.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		useFree, _ := cmd.Flags().GetBool("free")

		var checks []health.DirCheck
		for _, name := range []string{"cntl", "cache"} {
			value, _ := cmd.Flags().GetString(name)
			if value == "" {
				continue
			}
			check, err := health.ParseDirCheck(value)
			if err != nil {
				fmt.Printf("%s %v\n", health.FailMarker, err)
				return exitCode(1)
			}
			checks = append(checks, check)
		}

		failures := health.CheckNode(checks, useFree)
		if len(failures) == 0 {
			fmt.Println(health.PassMarker)
			return nil
		}
		for _, msg := range failures {
			fmt.Printf("%s %s\n", health.FailMarker, strings.TrimSpace(msg))
		}
		return exitCode(1)
	},
}

func init() {
	listDownCmd.Flags().Bool("reasons", false, "print one node per line with the reason it is down")
	listDownCmd.Flags().Int("attempt", 1, "attempt number to diagnose for (1 checks free space, later total capacity)")

	checkNodeCmd.Flags().String("cntl", "", "control directory as path[:size]")
	checkNodeCmd.Flags().String("cache", "", "cache directory as path[:size]")
	checkNodeCmd.Flags().Bool("free", false, "compare free space instead of total capacity")
}
