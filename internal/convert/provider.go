package convert

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/pbf"
	"github.com/gis-ops/hannibal/internal/sevas"
)

// Options configure one conversion run.
type Options struct {
	// DataDir holds the downloaded SEVAS layer shapefiles. Missing
	// layer files are skipped.
	DataDir string
	// InPath is the OSM PBF extract to rewrite.
	InPath string
	// OutPath is the output PBF.
	OutPath string
	// TagClean optionally strips tags inside a polygon before SEVAS
	// tags are applied.
	TagClean *TagCleanConfig
	// WritingProgram goes into the output file header.
	WritingProgram string
}

// Provider loads the available SEVAS layers and drives the rewrite.
type Provider struct {
	opts Options

	restrictions *sevas.Restrictions
	preferred    *sevas.PreferredRoads
	speeds       *sevas.RoadSpeeds
	lez          *sevas.LowEmissionZones
	signs        *sevas.TrafficSigns

	stats *Stats
}

// NewProvider checks the input and loads every layer whose shapefile
// is present in the data dir.
func NewProvider(opts Options) (*Provider, error) {
	inInfo, err := os.Stat(opts.InPath)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: OSM file %s", opts.InPath)
	}
	if err := checkDistinctPaths(opts.InPath, opts.OutPath, inInfo); err != nil {
		return nil, err
	}
	if opts.WritingProgram == "" {
		opts.WritingProgram = "hannibal"
	}

	p := &Provider{opts: opts, stats: NewStats()}

	layerPath := func(l sevas.Layer) (string, bool) {
		path := filepath.Join(opts.DataDir, l.FileName())
		if _, err := os.Stat(path); err != nil {
			return "", false
		}
		zap.L().Info("convert: found layer", zap.String("layer", string(l)))
		return path, true
	}

	if path, ok := layerPath(sevas.LayerRestrictions); ok {
		if p.restrictions, err = sevas.LoadRestrictions(path); err != nil {
			return nil, err
		}
	}
	if path, ok := layerPath(sevas.LayerPreferredRoads); ok {
		if p.preferred, err = sevas.LoadPreferredRoads(path); err != nil {
			return nil, err
		}
	}
	if path, ok := layerPath(sevas.LayerRoadSpeeds); ok {
		if p.speeds, err = sevas.LoadRoadSpeeds(path); err != nil {
			return nil, err
		}
	}
	if path, ok := layerPath(sevas.LayerLowEmissionZones); ok {
		if p.lez, err = sevas.LoadLowEmissionZones(path); err != nil {
			return nil, err
		}
	}
	if path, ok := layerPath(sevas.LayerTrafficSigns); ok {
		if p.signs, err = sevas.LoadTrafficSigns(path); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// checkDistinctPaths rejects an output path that would truncate the
// input extract before it is read.
func checkDistinctPaths(inPath, outPath string, inInfo os.FileInfo) error {
	inAbs, err := filepath.Abs(inPath)
	if err != nil {
		return eris.Wrapf(err, "convert: resolve %s", inPath)
	}
	outAbs, err := filepath.Abs(outPath)
	if err != nil {
		return eris.Wrapf(err, "convert: resolve %s", outPath)
	}
	if inAbs == outAbs {
		return eris.Errorf("convert: output %s is the input file", outPath)
	}
	// the paths can still name the same file through links
	if outInfo, err := os.Stat(outPath); err == nil && os.SameFile(inInfo, outInfo) {
		return eris.Errorf("convert: output %s is the input file", outPath)
	}
	return nil
}

// Process rewrites the extract into the output file.
func (p *Provider) Process(ctx context.Context) error {
	out, err := os.Create(p.opts.OutPath)
	if err != nil {
		return eris.Wrapf(err, "convert: create %s", p.opts.OutPath)
	}
	defer out.Close()

	writer, err := pbf.NewWriter(out, p.opts.WritingProgram)
	if err != nil {
		return err
	}

	rewriter := NewRewriter(
		writer,
		p.restrictions, p.preferred, p.speeds, p.lez, p.signs,
		p.opts.TagClean, p.stats,
	)
	if err := rewriter.Run(ctx, p.opts.InPath); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "convert: close %s", p.opts.OutPath)
	}

	zap.L().Info("convert: conversion finished", zap.String("out", p.opts.OutPath))
	return nil
}

// Stats returns the run counters.
func (p *Provider) Stats() *Stats { return p.stats }

// Report renders the end-of-run summary.
func (p *Provider) Report() string { return p.stats.Report() }

// Unmatched returns, per layer, the segment IDs of records whose OSM
// way never appeared in the extract.
func (p *Provider) Unmatched() map[string][]int64 {
	out := make(map[string][]int64)
	if p.restrictions != nil {
		for _, rec := range p.restrictions.Unmatched() {
			out[p.restrictions.LayerName()] = append(out[p.restrictions.LayerName()], rec.SegmentID)
		}
	}
	if p.preferred != nil {
		for _, rec := range p.preferred.Unmatched() {
			out[p.preferred.LayerName()] = append(out[p.preferred.LayerName()], rec.SegmentID)
		}
	}
	if p.speeds != nil {
		for _, rec := range p.speeds.Unmatched() {
			out[p.speeds.LayerName()] = append(out[p.speeds.LayerName()], rec.SegmentID)
		}
	}
	return out
}
