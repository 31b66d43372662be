package sevas

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

// PreferredRoadRecord is one segment of the designated truck route
// network (Vorrangrouten).
type PreferredRoadRecord struct {
	SegmentID int64
	OSMID     int64
	Direction Direction
	Geom      *geom.LineString
}

// NewPreferredRoadRecord builds a record from one shapefile feature.
func NewPreferredRoadRecord(f *shapefile.Feature) (*PreferredRoadRecord, error) {
	segmentID, err := parseID(f.Attr("segment_id"))
	if err != nil {
		return nil, eris.Wrap(err, "sevas: parse segment_id")
	}
	osmID, err := parseID(f.Attr("osm_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: segment %d: parse osm_id", segmentID)
	}

	dir := Direction(f.Attr("fahrtri"))
	switch dir {
	case DirBoth, DirForward, DirBackward:
	default:
		return nil, eris.Errorf("sevas: segment %d: invalid fahrtri %q", segmentID, dir)
	}

	rec := &PreferredRoadRecord{
		SegmentID: segmentID,
		OSMID:     osmID,
		Direction: dir,
	}
	if ls, ok := f.Geom.(*geom.LineString); ok {
		rec.Geom = ls
	}
	return rec, nil
}

// Tags returns the designation tag for the segment.
func (r *PreferredRoadRecord) Tags() map[string]string {
	return map[string]string{"hgv" + r.Direction.suffix(): "designated"}
}

// PreferredRoads is the truck route layer keyed by OSM way ID.
type PreferredRoads struct {
	wayTable[*PreferredRoadRecord]
}

// LoadPreferredRoads reads the truck route shapefile.
func LoadPreferredRoads(path string) (*PreferredRoads, error) {
	feats, err := shapefile.Read(path)
	if err != nil {
		return nil, err
	}

	t := &PreferredRoads{wayTable: newWayTable[*PreferredRoadRecord]()}
	for i := range feats {
		rec, err := NewPreferredRoadRecord(&feats[i])
		if err != nil {
			return nil, err
		}
		t.add(rec.OSMID, rec)
	}
	zap.L().Info("sevas: loaded preferred road segments",
		zap.Int("records", t.Len()),
		zap.Int("ways", len(t.m)))
	return t, nil
}

// LayerName implements the reporting interface.
func (t *PreferredRoads) LayerName() string { return string(LayerPreferredRoads) }
