package sevas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/gis-ops/hannibal/internal/shapefile"
)

func lezFeature(typ, wert string, g geom.T) *shapefile.Feature {
	return &shapefile.Feature{
		Attrs: map[string]string{
			"typ":     typ,
			"zone_id": "42",
			"wert":    wert,
		},
		Geom: g,
	}
}

func testPolygon(t *testing.T) *geom.Polygon {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY,
		[]float64{6.9, 50.9, 7.0, 50.9, 7.0, 51.0, 6.9, 50.9})))
	return poly
}

func TestNewLEZRecord(t *testing.T) {
	rec, err := NewLEZRecord(lezFeature("umweltzone", "1031-52", testPolygon(t)))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(42), rec.ZoneID)
	assert.Equal(t, LEZGreen, rec.Class)
	assert.Equal(t, map[string]string{
		"type":     "boundary",
		"boundary": "low_emission_zone",
	}, rec.Tags())
}

func TestNewLEZRecordSkipsOtherZones(t *testing.T) {
	rec, err := NewLEZRecord(lezFeature("tempozone", "274.1", testPolygon(t)))
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestNewLEZRecordErrors(t *testing.T) {
	_, err := NewLEZRecord(lezFeature("umweltzone", "bogus", testPolygon(t)))
	assert.Error(t, err)

	_, err = NewLEZRecord(lezFeature("umweltzone", "1031-52", nil))
	assert.Error(t, err)
}
