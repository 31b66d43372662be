package sevas

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

// SpeedZone is the sign number of a speed zone segment, ordered by
// ascending allowed speed so the stricter of two overlapping zones can
// be picked.
type SpeedZone string

const (
	// Fußgängerzone
	ZonePedestrian SpeedZone = "242.1"
	// verkehrsberuhigter Bereich
	ZoneCalmTraffic SpeedZone = "325.1"
	// Tempo-20-Zone
	Zone20 SpeedZone = "274.1-20"
	// Tempo-30-Zone
	Zone30 SpeedZone = "274.1"
	// geschlossene Ortschaft
	ZoneUrban SpeedZone = "310"
)

// speedRank orders zones by allowed speed; lower rank is stricter.
var speedRank = map[SpeedZone]int{
	ZonePedestrian:  0,
	ZoneCalmTraffic: 1,
	Zone20:          2,
	Zone30:          3,
	ZoneUrban:       4,
}

// speedValues maps zones to their maxspeed value. Pedestrian zones get
// 10 rather than maxspeed=walk, which some routers cannot parse.
var speedValues = map[SpeedZone]string{
	ZonePedestrian:  "10",
	ZoneCalmTraffic: "10",
	Zone20:          "20",
	Zone30:          "30",
	ZoneUrban:       "50",
}

// zoneValues maps zones to the DE:* zone name used in zone:traffic,
// source:maxspeed and maxspeed:type. Pedestrian zones carry none.
var zoneValues = map[SpeedZone]string{
	ZoneCalmTraffic: "living_street",
	Zone20:          "zone20",
	Zone30:          "zone30",
	ZoneUrban:       "urban",
}

// RoadSpeedRecord is one tempo zone segment targeting an OSM way.
type RoadSpeedRecord struct {
	SegmentID    int64
	ZoneID       int64
	Name         string
	OSMVersion   string
	OSMID        int64
	Zone         SpeedZone
	Municipality string
	District     string
	Region       string
	Geom         *geom.LineString
}

// NewRoadSpeedRecord builds a record from one zone segment feature.
// Returns (nil, nil) for segments of other zone types.
func NewRoadSpeedRecord(f *shapefile.Feature) (*RoadSpeedRecord, error) {
	// the segment feature type carries low emission zone segments too
	if f.Attr("typ") != "tempozone" {
		return nil, nil
	}

	segmentID, err := parseID(f.Attr("segment_id"))
	if err != nil {
		return nil, eris.Wrap(err, "sevas: parse segment_id")
	}
	zoneID, err := parseID(f.Attr("zone_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: segment %d: parse zone_id", segmentID)
	}
	osmID, err := parseID(f.Attr("osm_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: segment %d: parse osm_id", segmentID)
	}

	zone := SpeedZone(f.Attr("wert"))
	if _, ok := speedRank[zone]; !ok {
		return nil, eris.Errorf("sevas: segment %d: unknown speed zone %q", segmentID, zone)
	}

	rec := &RoadSpeedRecord{
		SegmentID:    segmentID,
		ZoneID:       zoneID,
		Name:         f.Attr("name"),
		OSMVersion:   f.Attr("osm_vers"),
		OSMID:        osmID,
		Zone:         zone,
		Municipality: f.Attr("gemeinde"),
		District:     f.Attr("kreis"),
		Region:       f.Attr("regbezirk"),
	}
	if ls, ok := f.Geom.(*geom.LineString); ok {
		rec.Geom = ls
	}
	return rec, nil
}

// Tags returns the OSM tags for the speed zone segment.
func (r *RoadSpeedRecord) Tags() map[string]string {
	tags := map[string]string{"maxspeed": speedValues[r.Zone]}
	if zone, ok := zoneValues[r.Zone]; ok {
		val := "DE:" + zone
		tags["zone:traffic"] = val
		tags["source:maxspeed"] = val
		tags["maxspeed:type"] = val
	}
	return tags
}

// Stricter reports whether r allows a lower speed than other.
func (r *RoadSpeedRecord) Stricter(other *RoadSpeedRecord) bool {
	return speedRank[r.Zone] < speedRank[other.Zone]
}

// RoadSpeeds is the tempo zone segment layer keyed by OSM way ID.
type RoadSpeeds struct {
	wayTable[*RoadSpeedRecord]
}

// LoadRoadSpeeds reads the zone segment shapefile, keeping only tempo
// zone segments.
func LoadRoadSpeeds(path string) (*RoadSpeeds, error) {
	feats, err := shapefile.Read(path)
	if err != nil {
		return nil, err
	}

	t := &RoadSpeeds{wayTable: newWayTable[*RoadSpeedRecord]()}
	for i := range feats {
		rec, err := NewRoadSpeedRecord(&feats[i])
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		t.add(rec.OSMID, rec)
	}
	t.validate()
	zap.L().Info("sevas: loaded road speed segments",
		zap.Int("records", t.Len()),
		zap.Int("ways", len(t.m)))
	return t, nil
}

// validate warns about ways with duplicate zone types; the stricter
// zone wins during conversion either way.
func (t *RoadSpeeds) validate() {
	for id, recs := range t.m {
		seen := make(map[SpeedZone]bool, len(recs))
		for _, rec := range recs {
			if seen[rec.Zone] {
				zap.L().Warn("sevas: duplicate speed zone type on way",
					zap.Int64("osm_id", id),
					zap.String("zone", string(rec.Zone)))
			}
			seen[rec.Zone] = true
		}
	}
}

// LayerName implements the reporting interface.
func (t *RoadSpeeds) LayerName() string { return string(LayerRoadSpeeds) }
