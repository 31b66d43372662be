package sevas

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

// LEZClass is the sticker class of a low emission zone.
type LEZClass string

const (
	LEZGreen  LEZClass = "1031-52"
	LEZYellow LEZClass = "1031-51"
	LEZRed    LEZClass = "1031-50"
)

// LEZRecord is one low emission zone polygon. Zones are written to the
// output as new boundary relations, replacing whatever zone relations
// the extract already carries.
type LEZRecord struct {
	ZoneID       int64
	Class        LEZClass
	Municipality string
	District     string
	Region       string
	Geom         *geom.Polygon
}

// NewLEZRecord builds a record from one zone polygon feature. Returns
// (nil, nil) for polygons of other zone types.
func NewLEZRecord(f *shapefile.Feature) (*LEZRecord, error) {
	// the zone feature type carries speed zone polygons too
	if f.Attr("typ") != "umweltzone" {
		return nil, nil
	}

	zoneID, err := parseID(f.Attr("zone_id"))
	if err != nil {
		return nil, eris.Wrap(err, "sevas: parse zone_id")
	}

	class := LEZClass(f.Attr("wert"))
	switch class {
	case LEZGreen, LEZYellow, LEZRed:
	default:
		return nil, eris.Errorf("sevas: zone %d: unknown low emission zone class %q", zoneID, class)
	}

	poly, ok := f.Geom.(*geom.Polygon)
	if !ok {
		return nil, eris.Errorf("sevas: zone %d: low emission zone without polygon geometry", zoneID)
	}

	return &LEZRecord{
		ZoneID:       zoneID,
		Class:        class,
		Municipality: f.Attr("gemeinde"),
		District:     f.Attr("kreis"),
		Region:       f.Attr("regbezirk"),
		Geom:         poly,
	}, nil
}

// Tags returns the tags for the zone's boundary relation.
func (r *LEZRecord) Tags() map[string]string {
	return map[string]string{
		"type":     "boundary",
		"boundary": "low_emission_zone",
	}
}

// LowEmissionZones is the zone polygon layer.
type LowEmissionZones struct {
	records []*LEZRecord
}

// LoadLowEmissionZones reads the zone polygon shapefile, keeping only
// low emission zones.
func LoadLowEmissionZones(path string) (*LowEmissionZones, error) {
	feats, err := shapefile.Read(path)
	if err != nil {
		return nil, err
	}

	t := &LowEmissionZones{}
	for i := range feats {
		rec, err := NewLEZRecord(&feats[i])
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		t.records = append(t.records, rec)
	}
	zap.L().Info("sevas: loaded low emission zones", zap.Int("zones", len(t.records)))
	return t, nil
}

// Records returns all zones in file order.
func (t *LowEmissionZones) Records() []*LEZRecord { return t.records }

// LayerName implements the reporting interface.
func (t *LowEmissionZones) LayerName() string { return string(LayerLowEmissionZones) }
