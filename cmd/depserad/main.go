// Command depserad runs the dependency-health polling and alerting
// pipeline: it wires the settings provider, store, SSRF guard, fetcher,
// poll executor, alert dispatcher, scheduler, retention sweeper, and
// metrics exporter into one process, following the teacher's
// cmd/server/main.go flag-parsing and signal-handling shape, ported onto
// cobra for subcommands (serve, migrate, sweep-now).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "depserad",
		Short:         "Dependency-health polling and alerting daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to a settings file (YAML/JSON/TOML, viper-format)")
	root.PersistentFlags().String("db", "depsera.db", "path to the sqlite database file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSweepNowCmd())

	return root
}
