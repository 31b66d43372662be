package shapefile

import (
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// Feature is one shapefile record: its DBF attributes keyed by
// lowercased field name, plus the decoded geometry (nil for
// attribute-only records).
type Feature struct {
	Attrs map[string]string
	Geom  geom.T
}

// Attr returns the named attribute or "".
func (f *Feature) Attr(name string) string {
	return f.Attrs[strings.ToLower(name)]
}

// Read loads a shapefile (.shp plus its .dbf sidecar) fully into
// memory. SEVAS ships the DBF text in Latin-1 more often than not, so
// attribute values that are not valid UTF-8 are re-decoded as
// ISO 8859-1.
func Read(shpPath string) ([]Feature, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var feats []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			attrs[name] = decodeAttr(val)
		}

		g, err := decodeShape(shape)
		if err != nil {
			skipped++
			continue
		}
		feats = append(feats, Feature{Attrs: attrs, Geom: g})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped malformed records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	return feats, nil
}

func decodeAttr(val string) string {
	if utf8.ValidString(val) {
		return val
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().String(val)
	if err != nil {
		return val
	}
	return decoded
}

// decodeShape converts a go-shp geometry into the go-geom model.
// Multi-part polylines are concatenated: SEVAS segment layers store one
// continuous line per record.
func decodeShape(shape shp.Shape) (geom.T, error) {
	switch s := shape.(type) {
	case nil, *shp.Null:
		return nil, nil

	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326), nil

	case *shp.PolyLine:
		if len(s.Points) == 0 {
			return nil, nil
		}
		flat := make([]float64, 0, len(s.Points)*2)
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewLineStringFlat(geom.XY, flat).SetSRID(4326), nil

	case *shp.Polygon:
		if s.NumParts == 0 || len(s.Points) == 0 {
			return nil, nil
		}
		poly := geom.NewPolygon(geom.XY).SetSRID(4326)
		for i := int32(0); i < s.NumParts; i++ {
			start := s.Parts[i]
			end := int32(len(s.Points))
			if i+1 < s.NumParts {
				end = s.Parts[i+1]
			}
			flat := make([]float64, 0, (end-start)*2)
			for j := start; j < end; j++ {
				flat = append(flat, s.Points[j].X, s.Points[j].Y)
			}
			ring := geom.NewLinearRingFlat(geom.XY, flat)
			if err := poly.Push(ring); err != nil {
				return nil, eris.Wrap(err, "shapefile: malformed polygon ring")
			}
		}
		return poly, nil

	default:
		return nil, eris.Errorf("shapefile: unsupported shape type %T", shape)
	}
}
