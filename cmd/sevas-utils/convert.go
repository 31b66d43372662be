package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/convert"
	"github.com/gis-ops/hannibal/internal/runlog"
	"github.com/gis-ops/hannibal/internal/sevas"
)

var (
	convertDownload     bool
	convertCleanArea    int64
	convertCleanTags    []string
	convertUnmatchedOut string
	convertRunDB        string
)

var convertCmd = &cobra.Command{
	Use:   "convert DATA_DIR OSM_IN OSM_OUT [BASE_URL]",
	Short: "Apply SEVAS layers to an OSM PBF extract",
	Long: "Reads the SEVAS layer shapefiles from DATA_DIR and rewrites OSM_IN into " +
		"OSM_OUT with restriction, road speed, preferred road and low emission zone tags.",
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dataDir, inPath, outPath := args[0], args[1], args[2]
		baseURL := cfg.SEVAS.BaseURL
		if len(args) == 4 {
			baseURL = args[3]
		}
		started := time.Now()

		if convertDownload {
			client := sevas.NewClient(dataDir, baseURL, sevas.ClientOptions{
				Version:           cfg.SEVAS.Version,
				Concurrency:       cfg.Download.Concurrency,
				RequestsPerSecond: cfg.Download.RequestsPerSecond,
				Timeout:           time.Duration(cfg.Download.TimeoutSecs) * time.Second,
			})
			if err := client.GetAll(ctx); err != nil {
				return eris.Wrap(err, "download layers")
			}
		}

		opts := convert.Options{
			DataDir: dataDir,
			InPath:  inPath,
			OutPath: outPath,
		}

		if convertCleanArea != 0 {
			if len(convertCleanTags) == 0 {
				return eris.New("--clean-area requires --clean-tags")
			}
			poly, err := convert.ReadPolygon(ctx, inPath, convertCleanArea)
			if err != nil {
				return eris.Wrapf(err, "read clean area %d", convertCleanArea)
			}
			opts.TagClean = &convert.TagCleanConfig{
				ID:      convertCleanArea,
				Keys:    convertCleanTags,
				Polygon: poly,
			}
		}

		provider, err := convert.NewProvider(opts)
		if err != nil {
			return err
		}
		if err := provider.Process(ctx); err != nil {
			return err
		}

		if convertUnmatchedOut != "" {
			if err := provider.WriteUnmatchedGeoJSON(convertUnmatchedOut); err != nil {
				return err
			}
			zap.L().Info("wrote unmatched segments", zap.String("path", convertUnmatchedOut))
		}

		runDB := cfg.RunDB
		if convertRunDB != "" {
			runDB = convertRunDB
		}
		if runDB != "" {
			if err := recordRun(cmd, runDB, inPath, outPath, provider, started); err != nil {
				return err
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), provider.Report())
		return nil
	},
}

func recordRun(cmd *cobra.Command, dsn, inPath, outPath string, provider *convert.Provider, started time.Time) error {
	ctx := cmd.Context()

	store, err := runlog.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	unmatched := make(map[string]int)
	for layer, ids := range provider.Unmatched() {
		unmatched[layer] = len(ids)
	}

	run, err := store.Record(ctx, runlog.Run{
		InPath:     inPath,
		OutPath:    outPath,
		Unmatched:  unmatched,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, provider.Stats())
	if err != nil {
		return err
	}

	zap.L().Info("run recorded", zap.String("id", run.ID), zap.String("db", dsn))
	return nil
}

func init() {
	convertCmd.Flags().BoolVar(&convertDownload, "download", false, "download the SEVAS layers into DATA_DIR first")
	convertCmd.Flags().Int64Var(&convertCleanArea, "clean-area", 0, "relation or way ID bounding the tag clean")
	convertCmd.Flags().StringSliceVar(&convertCleanTags, "clean-tags", nil, "tag keys to strip inside the clean area")
	convertCmd.Flags().StringVar(&convertUnmatchedOut, "unmatched-out", "", "write unmatched SEVAS segments to this GeoJSON file")
	convertCmd.Flags().StringVar(&convertRunDB, "run-db", "", "record the run in this SQLite database")
	rootCmd.AddCommand(convertCmd)
}
