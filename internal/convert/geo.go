package convert

import (
	"math"

	"github.com/twpayne/go-geom"
)

// coordEps is the coordinate tolerance below which two points are the
// same node.
const coordEps = 1e-7

// fracEps is the tolerance for comparing way fractions.
const fracEps = 1e-9

// fraction describes the stretch of an OSM way covered by a SEVAS
// segment: start and end as fractions of the way's length, rounded to
// two decimals, plus the segment's end point coordinates, which become
// cut nodes when the way is split.
type fraction struct {
	start, end           float64
	startPoint, endPoint geom.Coord
}

// full reports whether the fraction covers the whole way.
func (f fraction) full() bool {
	return f.start <= fracEps && f.end >= 1-fracEps
}

// covers reports whether the fraction spans the piece [lo, hi].
func (f fraction) covers(lo, hi float64) bool {
	return f.start <= lo+fracEps && f.end >= hi-fracEps
}

// fullFraction covers the whole way, used when a record has no usable
// geometry.
func fullFraction() fraction {
	return fraction{start: 0, end: 1}
}

// segmentFraction locates a SEVAS segment along a way line. The
// segment's points lie on the way by construction (both derive from
// the same OSM geometry); only its endpoints matter. A degenerate
// result (start == end) falls back to covering the whole way.
func segmentFraction(way []geom.Coord, seg *geom.LineString) fraction {
	if len(way) < 2 || seg == nil || seg.NumCoords() < 2 {
		return fullFraction()
	}

	start := seg.Coord(0)
	end := seg.Coord(seg.NumCoords() - 1)
	f := fraction{
		start:      round2(locateFraction(way, start)),
		end:        round2(locateFraction(way, end)),
		startPoint: start,
		endPoint:   end,
	}
	if f.start > f.end {
		f.start, f.end = f.end, f.start
		f.startPoint, f.endPoint = f.endPoint, f.startPoint
	}
	if f.end-f.start <= fracEps {
		return fullFraction()
	}
	return f
}

// locateFraction returns the normalized arc length at which p projects
// onto the polyline.
func locateFraction(line []geom.Coord, p geom.Coord) float64 {
	total := lineLength(line)
	if total == 0 {
		return 0
	}

	bestDist := math.Inf(1)
	bestArc := 0.0
	arc := 0.0
	for i := 0; i < len(line)-1; i++ {
		a, b := line[i], line[i+1]
		segLen := dist(a, b)

		t := 0.0
		if segLen > 0 {
			t = ((p[0]-a[0])*(b[0]-a[0]) + (p[1]-a[1])*(b[1]-a[1])) / (segLen * segLen)
			t = math.Max(0, math.Min(1, t))
		}
		proj := geom.Coord{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
		if d := dist(p, proj); d < bestDist {
			bestDist = d
			bestArc = arc + t*segLen
		}
		arc += segLen
	}
	return bestArc / total
}

// nodeFractions returns the normalized arc length of every vertex of
// the way line.
func nodeFractions(line []geom.Coord) []float64 {
	fracs := make([]float64, len(line))
	total := lineLength(line)
	if total == 0 {
		return fracs
	}
	arc := 0.0
	for i := 1; i < len(line); i++ {
		arc += dist(line[i-1], line[i])
		fracs[i] = arc / total
	}
	return fracs
}

func lineLength(line []geom.Coord) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += dist(line[i-1], line[i])
	}
	return total
}

func dist(a, b geom.Coord) float64 {
	return math.Hypot(b[0]-a[0], b[1]-a[1])
}

func samePoint(a, b geom.Coord) bool {
	return math.Abs(a[0]-b[0]) < coordEps && math.Abs(a[1]-b[1]) < coordEps
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
