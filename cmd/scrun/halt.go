package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/scrun/pkg/halt"
	"github.com/cuemby/scrun/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Set, list or remove halt conditions for the job",
	Long: `Update the halt file read by the run loop before every launch. Without
flags a halt with reason "user" is requested; the running job finishes its
current attempt and is not relaunched.`,
	Example: `  scrun halt
  scrun halt --checkpoints 2
  scrun halt --before "2026-10-15 06:00"
  scrun halt --seconds 1800
  scrun halt --list
  scrun halt --remove`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Halt.File
		flags := cmd.Flags()

		if remove, _ := flags.GetBool("remove"); remove {
			if err := halt.Remove(path); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", path)
			return nil
		}

		if list, _ := flags.GetBool("list"); list {
			cond, err := halt.Load(path)
			if err != nil {
				return err
			}
			return printYAML(cond)
		}

		var parseErr error
		parseTime := func(name string) *time.Time {
			value, _ := flags.GetString(name)
			if value == "" || parseErr != nil {
				return nil
			}
			t, err := parseHaltTime(value)
			if err != nil {
				parseErr = fmt.Errorf("--%s: %w", name, err)
				return nil
			}
			return &t
		}
		before := parseTime("before")
		after := parseTime("after")
		if parseErr != nil {
			return parseErr
		}

		changed := false
		cond, err := halt.Update(path, func(c *types.HaltCondition) {
			if flags.Changed("checkpoints") {
				n, _ := flags.GetInt("checkpoints")
				c.CheckpointsLeft = &n
				changed = true
			}
			if before != nil {
				c.ExitBefore = before
				changed = true
			}
			if after != nil {
				c.ExitAfter = after
				changed = true
			}
			if flags.Changed("seconds") {
				c.HaltSeconds, _ = flags.GetInt("seconds")
				changed = true
			}
			if reason, _ := flags.GetString("reason"); reason != "" {
				c.ExitReason = reason
				changed = true
			}
			if !changed {
				c.ExitReason = "user"
			}
		})
		if err != nil {
			return err
		}

		fmt.Printf("Updated %s\n", path)
		return printYAML(cond)
	},
}

func printYAML(cond *types.HaltCondition) error {
	data, err := yaml.Marshal(cond)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

var haltTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"}

func parseHaltTime(value string) (time.Time, error) {
	for _, layout := range haltTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func init() {
	haltCmd.Flags().Int("checkpoints", 0, "halt after this many more checkpoints")
	haltCmd.Flags().String("before", "", "halt before this time")
	haltCmd.Flags().String("after", "", "halt after this time")
	haltCmd.Flags().Int("seconds", 0, "halt when fewer than this many seconds remain in the allocation")
	haltCmd.Flags().String("reason", "", "halt immediately with this reason")
	haltCmd.Flags().Bool("list", false, "print the current halt conditions")
	haltCmd.Flags().Bool("remove", false, "remove the halt file")
}
