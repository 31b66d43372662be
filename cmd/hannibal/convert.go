package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/config"
	"github.com/gis-ops/hannibal/internal/convert"
	"github.com/gis-ops/hannibal/internal/sevas"
)

var convertCmd = &cobra.Command{
	Use:   "convert CONFIG",
	Short: "Run the conversion described by a YAML config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.LoadHannibal(args[0])
		if err != nil {
			return err
		}

		inPath, err := resolveOSMBase(cmd, cfg.OSMBase)
		if err != nil {
			return err
		}

		for name, pc := range cfg.Providers {
			zap.L().Info("converting provider", zap.String("provider", name))

			if pc.Download {
				baseURL := pc.BaseURL
				if baseURL == "" {
					baseURL = sevas.DefaultBaseURL
				}
				client := sevas.NewClient(pc.DataDir, baseURL, sevas.ClientOptions{})
				if err := client.GetAll(ctx); err != nil {
					return eris.Wrapf(err, "download %s layers", name)
				}
			}

			opts := convert.Options{
				DataDir: pc.DataDir,
				InPath:  inPath,
				OutPath: cfg.Output.Path,
			}
			if pc.CleanTags.Active {
				poly, err := convert.ReadPolygon(ctx, inPath, pc.CleanTags.Area)
				if err != nil {
					return eris.Wrapf(err, "read clean area %d", pc.CleanTags.Area)
				}
				opts.TagClean = &convert.TagCleanConfig{
					ID:      pc.CleanTags.Area,
					Keys:    pc.CleanTags.Tags,
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
			fmt.Fprint(cmd.OutOrStdout(), provider.Report())
		}

		return nil
	},
}

// resolveOSMBase returns the local extract path, downloading it next to
// the output when only a URL is configured.
func resolveOSMBase(cmd *cobra.Command, base config.OSMBaseConfig) (string, error) {
	if base.Path != "" {
		return base.Path, nil
	}

	dest := filepath.Join(os.TempDir(), filepath.Base(base.URL))
	zap.L().Info("downloading OSM base", zap.String("url", base.URL), zap.String("dest", dest))

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base.URL, nil)
	if err != nil {
		return "", eris.Wrap(err, "create OSM base request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "download %s", base.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("download %s: status %d", base.URL, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrapf(err, "create %s", dest)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", eris.Wrapf(err, "write %s", dest)
	}
	return dest, out.Close()
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
