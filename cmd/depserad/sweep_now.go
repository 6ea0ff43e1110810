package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/copperbox/depsera/internal/retention"
	"github.com/copperbox/depsera/internal/settings"
	"github.com/copperbox/depsera/internal/store"
)

func newSweepNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-now",
		Short: "Run one retention sweep immediately and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dbPath, _ := cmd.Flags().GetString("db")

			sp, err := settings.New(configPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			sweeper := retention.NewManager(sp, st, nil)
			deleted, err := sweeper.SweepNow(context.Background())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}

			fmt.Printf("retention sweep deleted %d rows\n", deleted)
			return nil
		},
	}
}
