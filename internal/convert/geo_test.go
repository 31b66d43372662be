package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func line(coords ...float64) []geom.Coord {
	out := make([]geom.Coord, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		out = append(out, geom.Coord{coords[i], coords[i+1]})
	}
	return out
}

func lineString(coords ...float64) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, coords)
}

func TestLocateFraction(t *testing.T) {
	way := line(0, 0, 10, 0)

	assert.InDelta(t, 0.0, locateFraction(way, geom.Coord{0, 0}), 1e-9)
	assert.InDelta(t, 0.5, locateFraction(way, geom.Coord{5, 0}), 1e-9)
	assert.InDelta(t, 1.0, locateFraction(way, geom.Coord{10, 0}), 1e-9)

	// multi-vertex way with uneven spacing
	way = line(0, 0, 2, 0, 10, 0)
	assert.InDelta(t, 0.2, locateFraction(way, geom.Coord{2, 0}), 1e-9)
}

func TestSegmentFraction(t *testing.T) {
	way := line(0, 0, 13, 0)

	f := segmentFraction(way, lineString(0, 0, 4, 0))
	assert.InDelta(t, 0.0, f.start, 1e-9)
	assert.InDelta(t, 0.31, f.end, 1e-9)
	assert.Equal(t, geom.Coord{4, 0}, f.endPoint)

	// reversed segment geometry swaps the endpoints
	f = segmentFraction(way, lineString(4, 0, 0, 0))
	assert.InDelta(t, 0.0, f.start, 1e-9)
	assert.InDelta(t, 0.31, f.end, 1e-9)
	assert.Equal(t, geom.Coord{4, 0}, f.endPoint)

	// degenerate segments cover the whole way
	f = segmentFraction(way, lineString(4, 0, 4, 0))
	assert.True(t, f.full())

	f = segmentFraction(way, nil)
	assert.True(t, f.full())
}

func TestFractionCovers(t *testing.T) {
	f := fraction{start: 0.25, end: 0.75}
	assert.True(t, f.covers(0.25, 0.75))
	assert.True(t, f.covers(0.3, 0.5))
	assert.False(t, f.covers(0, 0.5))
	assert.False(t, f.covers(0.5, 1))
	assert.False(t, f.full())
	assert.True(t, fullFraction().full())
}

func TestNodeFractions(t *testing.T) {
	fracs := nodeFractions(line(0, 0, 2, 0, 10, 0))
	assert.InDelta(t, 0.0, fracs[0], 1e-9)
	assert.InDelta(t, 0.2, fracs[1], 1e-9)
	assert.InDelta(t, 1.0, fracs[2], 1e-9)
}

// pointAt interpolates the coordinate at a normalized arc length, the
// inverse of locateFraction.
func pointAt(line []geom.Coord, f float64) geom.Coord {
	total := lineLength(line)
	if total == 0 || f <= 0 {
		return line[0]
	}
	if f >= 1 {
		return line[len(line)-1]
	}

	target := f * total
	arc := 0.0
	for i := 0; i < len(line)-1; i++ {
		segLen := dist(line[i], line[i+1])
		if arc+segLen >= target && segLen > 0 {
			t := (target - arc) / segLen
			return geom.Coord{
				line[i][0] + t*(line[i+1][0]-line[i][0]),
				line[i][1] + t*(line[i+1][1]-line[i][1]),
			}
		}
		arc += segLen
	}
	return line[len(line)-1]
}

func TestPointAt(t *testing.T) {
	way := line(0, 0, 10, 0)
	assert.Equal(t, geom.Coord{0, 0}, pointAt(way, 0))
	assert.Equal(t, geom.Coord{10, 0}, pointAt(way, 1))
	p := pointAt(way, 0.3)
	assert.InDelta(t, 3.0, p[0], 1e-9)

	// round trip with the locator
	assert.InDelta(t, 0.3, locateFraction(way, pointAt(way, 0.3)), 1e-9)
}

func TestSamePoint(t *testing.T) {
	assert.True(t, samePoint(geom.Coord{1, 2}, geom.Coord{1 + 1e-9, 2}))
	assert.False(t, samePoint(geom.Coord{1, 2}, geom.Coord{1.001, 2}))
}
