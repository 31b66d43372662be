package convert

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func squareClean(t *testing.T, keys ...string) *TagCleanConfig {
	t.Helper()
	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY,
		[]float64{0, 0, 10, 0, 10, 10, 0, 10, 0, 0})))
	return &TagCleanConfig{ID: 1, Keys: keys, Polygon: poly}
}

func TestTagCleanContains(t *testing.T) {
	c := squareClean(t, "maxspeed")
	assert.True(t, c.Contains(geom.Coord{5, 5}))
	assert.False(t, c.Contains(geom.Coord{15, 5}))

	var nilClean *TagCleanConfig
	assert.False(t, nilClean.Contains(geom.Coord{5, 5}))
}

func TestTagCleanContainsAny(t *testing.T) {
	c := squareClean(t, "maxspeed")
	assert.True(t, c.ContainsAny([]geom.Coord{{15, 5}, {5, 5}}))
	assert.False(t, c.ContainsAny([]geom.Coord{{15, 5}, {20, 5}}))
	assert.False(t, c.ContainsAny(nil))
}

func TestTagCleanStrip(t *testing.T) {
	c := squareClean(t, "maxspeed", "hgv")

	tags := osm.Tags{
		{Key: "highway", Value: "residential"},
		{Key: "maxspeed", Value: "50"},
		{Key: "hgv", Value: "no"},
	}
	kept, removed := c.Strip(tags)
	assert.Equal(t, 2, removed)
	require.Len(t, kept, 1)
	assert.Equal(t, "highway", kept[0].Key)

	kept, removed = c.Strip(osm.Tags{{Key: "name", Value: "x"}})
	assert.Zero(t, removed)
	assert.Len(t, kept, 1)
}
