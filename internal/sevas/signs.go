package sevas

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

// TrafficSignRecord is one physical sign location. Several records can
// share an assembly (a_id) when signs are mounted on one post.
type TrafficSignRecord struct {
	AssemblyID   int64
	SignID       int64
	Type         string
	Value        string
	Bearing      string
	Municipality string
	District     string
	Region       string
	Geom         *geom.Point
}

// NewTrafficSignRecord builds a record from one sign point feature.
func NewTrafficSignRecord(f *shapefile.Feature) (*TrafficSignRecord, error) {
	assemblyID, err := parseID(f.Attr("a_id"))
	if err != nil {
		return nil, eris.Wrap(err, "sevas: parse a_id")
	}
	signID, err := parseID(f.Attr("schild_id"))
	if err != nil {
		return nil, eris.Wrapf(err, "sevas: assembly %d: parse schild_id", assemblyID)
	}

	pt, ok := f.Geom.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("sevas: assembly %d: traffic sign without point geometry", assemblyID)
	}

	return &TrafficSignRecord{
		AssemblyID:   assemblyID,
		SignID:       signID,
		Type:         f.Attr("typ"),
		Value:        f.Attr("wert"),
		Bearing:      f.Attr("normalenri"),
		Municipality: f.Attr("gemeinde"),
		District:     f.Attr("kreis"),
		Region:       f.Attr("regbezirk"),
		Geom:         pt,
	}, nil
}

// TrafficSigns is the sign point layer grouped by assembly.
type TrafficSigns struct {
	assemblies map[int64][]*TrafficSignRecord
}

// LoadTrafficSigns reads the sign point shapefile.
func LoadTrafficSigns(path string) (*TrafficSigns, error) {
	feats, err := shapefile.Read(path)
	if err != nil {
		return nil, err
	}

	t := &TrafficSigns{assemblies: make(map[int64][]*TrafficSignRecord)}
	for i := range feats {
		rec, err := NewTrafficSignRecord(&feats[i])
		if err != nil {
			return nil, err
		}
		t.assemblies[rec.AssemblyID] = append(t.assemblies[rec.AssemblyID], rec)
	}
	zap.L().Info("sevas: loaded traffic signs",
		zap.Int("assemblies", len(t.assemblies)))
	return t, nil
}

// AssemblyIDs returns all assembly IDs in ascending order.
func (t *TrafficSigns) AssemblyIDs() []int64 {
	ids := make([]int64, 0, len(t.assemblies))
	for id := range t.assemblies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Assembly returns the signs mounted on one post, ordered by sign ID.
func (t *TrafficSigns) Assembly(id int64) []*TrafficSignRecord {
	recs := append([]*TrafficSignRecord(nil), t.assemblies[id]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].SignID < recs[j].SignID })
	return recs
}

// AssemblyTags derives the node tags for a sign assembly: the signs
// joined into one traffic_sign value, plus the facing direction when
// the records agree on one.
func AssemblyTags(recs []*TrafficSignRecord) map[string]string {
	if len(recs) == 0 {
		return nil
	}

	value := "DE:" + recs[0].Type
	for _, rec := range recs[1:] {
		value += "," + rec.Type
	}

	tags := map[string]string{"traffic_sign": value}
	bearing := recs[0].Bearing
	for _, rec := range recs[1:] {
		if rec.Bearing != bearing {
			bearing = ""
			break
		}
	}
	if bearing != "" {
		tags["direction"] = bearing
	}
	return tags
}

// LayerName implements the reporting interface.
func (t *TrafficSigns) LayerName() string { return string(LayerTrafficSigns) }
