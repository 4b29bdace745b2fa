package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/scrun/pkg/config"
	"github.com/cuemby/scrun/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *config.Config
)

// exitCode makes the process exit with a code without printing an error
type exitCode int

func (e exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// skipConfig marks commands that run without loading job configuration
const skipConfig = "skip-config"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var code exitCode
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scrun",
	Short: "scrun - resilient launcher for checkpointing batch jobs",
	Long: `scrun runs an MPI job inside a batch allocation under a checkpoint/restart
library. Before each launch it diagnoses the allocation and excludes failed
nodes; after each failure it relaunches on the survivors while enough remain;
when the job ends it copies datasets left in node-local cache to the parallel
file system.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] != "" {
			log.Init(log.Config{Level: log.WarnLevel, Host: true})
			return nil
		}

		loaded, err := config.NewLoaderWithViper(v).WithConfigFile(cfgFile).Load()
		if err != nil {
			return err
		}
		cfg = loaded

		log.Init(log.Config{
			Level:      log.ParseLevel(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"scrun version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./.scrun.yaml)")
	flags.String("prefix", "", "directory on the parallel file system holding job datasets")
	flags.String("rm", "", "resource manager: slurm or static")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "log in JSON instead of console format")

	bindFlags(flags, map[string]string{
		"prefix":    "prefix",
		"rm":        "rm",
		"log-level": "log.level",
		"log-json":  "log.json",
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scavengeCmd)
	rootCmd.AddCommand(listDownCmd)
	rootCmd.AddCommand(checkNodeCmd)
	rootCmd.AddCommand(hostlistCmd)
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(historyCmd)
}

// bindFlags binds each flag to its config key so flags override file and
// environment values
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}
