package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/scrun/pkg/storage"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded run attempts for the job",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, _ := cmd.Flags().GetString("job")
		if jobID == "" {
			manager, err := newResourceManager(cfg, nil)
			if err != nil {
				return err
			}
			if jobID, err = manager.JobID(); err != nil {
				return fmt.Errorf("no --job given: %w", err)
			}
		}

		store, err := storage.NewBoltStore(cfg.Store.Dir)
		if err != nil {
			return err
		}
		defer store.Close()

		attempts, err := store.ListAttempts(jobID)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			fmt.Printf("No attempts recorded for job %s\n", jobID)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INVOCATION\tATTEMPT\tSTARTED\tELAPSED\tNODES\tEXCLUDED\tEXIT\tSUCCESS")
		for _, a := range attempts {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%s\t%t\n",
				shortID(a.InvocationID),
				a.Number,
				a.StartedAt.Format("2006-01-02 15:04:05"),
				a.Elapsed().Round(time.Second),
				len(a.Nodes),
				len(a.Excluded),
				a.Exit,
				a.Success,
			)
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().String("job", "", "job id (default: current allocation)")
}
