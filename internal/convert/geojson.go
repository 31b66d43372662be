package convert

import (
	"encoding/json"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// WriteUnmatchedGeoJSON dumps every unmatched SEVAS segment as a
// GeoJSON feature collection, so the leftovers can be inspected on a
// map.
func (p *Provider) WriteUnmatchedGeoJSON(path string) error {
	fc := geojson.NewFeatureCollection()

	if p.restrictions != nil {
		for _, rec := range p.restrictions.Unmatched() {
			f := geojson.NewFeature(lineGeometry(rec.Geom))
			f.SetProperty("layer", p.restrictions.LayerName())
			f.SetProperty("segment_id", rec.SegmentID)
			f.SetProperty("osm_id", rec.OSMID)
			f.SetProperty("typ", string(rec.Type))
			fc.AddFeature(f)
		}
	}
	if p.preferred != nil {
		for _, rec := range p.preferred.Unmatched() {
			f := geojson.NewFeature(lineGeometry(rec.Geom))
			f.SetProperty("layer", p.preferred.LayerName())
			f.SetProperty("segment_id", rec.SegmentID)
			f.SetProperty("osm_id", rec.OSMID)
			fc.AddFeature(f)
		}
	}
	if p.speeds != nil {
		for _, rec := range p.speeds.Unmatched() {
			f := geojson.NewFeature(lineGeometry(rec.Geom))
			f.SetProperty("layer", p.speeds.LayerName())
			f.SetProperty("segment_id", rec.SegmentID)
			f.SetProperty("osm_id", rec.OSMID)
			f.SetProperty("wert", string(rec.Zone))
			fc.AddFeature(f)
		}
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "convert: marshal unmatched features")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "convert: write %s", path)
	}
	return nil
}

// lineGeometry converts a go-geom line string into its GeoJSON
// counterpart. Records without geometry yield an empty line.
func lineGeometry(ls *geom.LineString) *geojson.Geometry {
	if ls == nil {
		return geojson.NewLineStringGeometry([][]float64{})
	}
	coords := make([][]float64, ls.NumCoords())
	for i := 0; i < ls.NumCoords(); i++ {
		c := ls.Coord(i)
		coords[i] = []float64{c[0], c[1]}
	}
	return geojson.NewLineStringGeometry(coords)
}
