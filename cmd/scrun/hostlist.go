package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/scrun/pkg/hostlist"
	"github.com/spf13/cobra"
)

var hostlistCmd = &cobra.Command{
	Use:         "hostlist",
	Short:       "Expand, compress and combine hostlists",
	Annotations: map[string]string{skipConfig: "true"},
}

var hostlistExpandCmd = &cobra.Command{
	Use:         "expand <hostlist>...",
	Short:       "Print every node of the hostlists",
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		sep, _ := cmd.Flags().GetString("separator")
		nodes, err := hostlist.ExpandAll(args...)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(nodes, sep))
		return nil
	},
}

var hostlistCompressCmd = &cobra.Command{
	Use:         "compress <node>...",
	Short:       "Print the nodes as one compressed hostlist",
	Args:        cobra.MinimumNArgs(1),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := hostlist.ExpandAll(args...)
		if err != nil {
			return err
		}
		fmt.Println(hostlist.Compress(nodes))
		return nil
	},
}

var hostlistDiffCmd = &cobra.Command{
	Use:         "diff <hostlist> <hostlist>",
	Short:       "Print nodes of the first hostlist missing from the second",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setOp(args, hostlist.Diff)
	},
}

var hostlistIntersectCmd = &cobra.Command{
	Use:         "intersect <hostlist> <hostlist>",
	Short:       "Print nodes present in both hostlists",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setOp(args, hostlist.Intersect)
	},
}

func setOp(args []string, op func(a, b []string) hostlist.NodeSet) error {
	a, err := hostlist.Expand(args[0])
	if err != nil {
		return err
	}
	b, err := hostlist.Expand(args[1])
	if err != nil {
		return err
	}
	fmt.Println(hostlist.Compress(op(a, b)))
	return nil
}

func init() {
	hostlistExpandCmd.Flags().String("separator", ",", "separator between expanded names")

	hostlistCmd.AddCommand(hostlistExpandCmd)
	hostlistCmd.AddCommand(hostlistCompressCmd)
	hostlistCmd.AddCommand(hostlistDiffCmd)
	hostlistCmd.AddCommand(hostlistIntersectCmd)
}
