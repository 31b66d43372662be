package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/sevas"
)

var downloadMaxFeatures int

var downloadCmd = &cobra.Command{
	Use:   "download DATA_DIR [BASE_URL]",
	Short: "Download all SEVAS layers into a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := args[0]
		baseURL := cfg.SEVAS.BaseURL
		if len(args) == 2 {
			baseURL = args[1]
		}

		client := sevas.NewClient(dataDir, baseURL, sevas.ClientOptions{
			Version:           cfg.SEVAS.Version,
			MaxFeatures:       downloadMaxFeatures,
			Concurrency:       cfg.Download.Concurrency,
			RequestsPerSecond: cfg.Download.RequestsPerSecond,
			Timeout:           time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		})

		if err := client.GetAll(cmd.Context()); err != nil {
			return eris.Wrap(err, "download layers")
		}

		zap.L().Info("download complete", zap.String("data_dir", dataDir))
		return nil
	},
}

func init() {
	downloadCmd.Flags().IntVar(&downloadMaxFeatures, "max-features", 0, "limit each layer to N features (0 = no limit)")
	rootCmd.AddCommand(downloadCmd)
}
