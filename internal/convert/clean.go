package convert

import (
	"github.com/paulmach/osm"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// TagCleanConfig strips tags from every element inside a polygon
// before SEVAS tags are applied. Used when a municipality's data is
// known to supersede whatever the extract carries.
type TagCleanConfig struct {
	// ID of the OSM relation or closed way the polygon came from,
	// kept for reporting.
	ID int64
	// Keys lists the tag keys to strip.
	Keys []string
	// Polygon is the area inside which tags are stripped.
	Polygon *geom.Polygon
}

// Contains reports whether a lon/lat coordinate lies inside the clean
// polygon's outer ring.
func (c *TagCleanConfig) Contains(coord geom.Coord) bool {
	if c == nil || c.Polygon == nil || c.Polygon.NumLinearRings() == 0 {
		return false
	}
	ring := c.Polygon.LinearRing(0)
	return xy.IsPointInRing(ring.Layout(), coord, ring.FlatCoords())
}

// ContainsAny reports whether any of the coordinates lies inside the
// clean polygon. A way is cleaned as soon as it touches the area.
func (c *TagCleanConfig) ContainsAny(coords []geom.Coord) bool {
	for _, coord := range coords {
		if c.Contains(coord) {
			return true
		}
	}
	return false
}

// Strip removes the configured keys from the tag list and returns the
// remaining tags plus the number of removals.
func (c *TagCleanConfig) Strip(tags osm.Tags) (osm.Tags, int) {
	if c == nil || len(c.Keys) == 0 || len(tags) == 0 {
		return tags, 0
	}
	drop := make(map[string]bool, len(c.Keys))
	for _, k := range c.Keys {
		drop[k] = true
	}

	kept := tags[:0]
	removed := 0
	for _, t := range tags {
		if drop[t.Key] {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	return kept, removed
}
