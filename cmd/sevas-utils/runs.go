package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gis-ops/hannibal/internal/runlog"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs RUN_DB",
	Short: "List recorded conversion runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := runlog.Open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return err
		}

		runs, err := store.List(ctx, runsLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(runsCmd)
}
