package sevas

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ClientOptions tune the WFS client.
type ClientOptions struct {
	// WFS protocol version, defaults to 2.0.0.
	Version string
	// MaxFeatures limits each layer to that many features when > 0.
	MaxFeatures int
	// Concurrency bounds parallel layer downloads, defaults to 2.
	Concurrency int
	// RequestsPerSecond throttles requests against the WFS, defaults
	// to 1.
	RequestsPerSecond float64
	// Timeout per layer request, defaults to 5 minutes.
	Timeout time.Duration
}

// Client downloads SEVAS layers from the Web Feature Service into a
// local data directory. Each layer arrives as a zipped shapefile which
// is staged under DATA_DIR/zip, extracted next to it and removed.
type Client struct {
	dataDir     string
	baseURL     string
	version     string
	maxFeatures int
	concurrency int
	limiter     *rate.Limiter
	httpClient  *http.Client
}

// NewClient creates a WFS client writing into dataDir.
func NewClient(dataDir, baseURL string, opts ClientOptions) *Client {
	if opts.Version == "" {
		opts.Version = "2.0.0"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Client{
		dataDir:     dataDir,
		baseURL:     baseURL,
		version:     opts.Version,
		maxFeatures: opts.MaxFeatures,
		concurrency: opts.Concurrency,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

// GetAll downloads every SEVAS layer. All layers are attempted even
// when one of them fails; the first failure is returned.
func (c *Client) GetAll(ctx context.Context) error {
	if err := os.MkdirAll(c.zipDir(), 0o755); err != nil {
		return eris.Wrap(err, "sevas: create zip dir")
	}

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, layer := range Layers() {
		g.Go(func() error {
			return c.Get(ctx, layer)
		})
	}
	err := g.Wait()

	c.cleanup()
	return err
}

// Get downloads and extracts a single layer. Layers already extracted
// into the data dir are skipped.
func (c *Client) Get(ctx context.Context, layer Layer) error {
	if _, err := os.Stat(filepath.Join(c.dataDir, layer.FileName())); err == nil {
		zap.L().Info("sevas: layer already present, skipping",
			zap.String("layer", string(layer)))
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "sevas: wait for rate limiter (%s)", layer)
	}

	url := layer.RequestURL(c.baseURL, c.version, c.maxFeatures)
	zipPath := filepath.Join(c.zipDir(), layer.ZipName())

	zap.L().Info("sevas: downloading layer",
		zap.String("layer", string(layer)),
		zap.String("url", url))

	if err := c.download(ctx, url, zipPath); err != nil {
		return err
	}
	if err := extractZip(zipPath, c.dataDir); err != nil {
		return err
	}
	if err := os.Remove(zipPath); err != nil {
		return eris.Wrapf(err, "sevas: remove %s", zipPath)
	}
	return nil
}

func (c *Client) zipDir() string {
	return filepath.Join(c.dataDir, "zip")
}

// cleanup removes the staging dir once it is empty.
func (c *Client) cleanup() {
	entries, err := os.ReadDir(c.zipDir())
	if err == nil && len(entries) == 0 {
		_ = os.Remove(c.zipDir())
	}
}

func (c *Client) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "sevas: create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "sevas: download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("sevas: download %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "sevas: create %s", dest)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return eris.Wrapf(err, "sevas: write %s", dest)
	}
	return nil
}

// extractZip unpacks every member of the archive into destDir. The WFS
// zips are flat, but member names are still sanitized.
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrapf(err, "sevas: open zip %s", zipPath)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(f.Name))

		src, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "sevas: open zip member %s", f.Name)
		}

		out, err := os.Create(dest)
		if err != nil {
			src.Close()
			return eris.Wrapf(err, "sevas: create %s", dest)
		}

		_, err = io.Copy(out, src)
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return eris.Wrapf(err, "sevas: extract %s", f.Name)
		}
	}
	return nil
}
