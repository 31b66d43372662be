package convert

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ReadPolygon extracts the outline of an OSM object from a PBF file:
// either a relation (its outer way members stitched into a ring) or a
// closed way. Used for the tag clean area and the polygon command.
func ReadPolygon(ctx context.Context, path string, id int64) (*geom.Polygon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "convert: open %s", path)
	}
	defer f.Close()

	wayIDs, err := outerWayIDs(ctx, f, id)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, eris.Wrap(err, "convert: rewind input")
	}
	wayNodes, err := collectWayNodes(ctx, f, wayIDs)
	if err != nil {
		return nil, err
	}
	if len(wayNodes) == 0 {
		return nil, eris.Errorf("convert: no way or relation with ID %d in %s", id, path)
	}

	ringIDs, err := stitchRing(wayIDs, wayNodes)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, eris.Wrap(err, "convert: rewind input")
	}
	coords, err := resolveNodes(ctx, f, ringIDs)
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}

	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
		return nil, eris.Wrapf(err, "convert: build polygon for %d", id)
	}
	return poly, nil
}

// outerWayIDs returns the outer way members when id is a relation, or
// id itself otherwise.
func outerWayIDs(ctx context.Context, in io.ReadSeeker, id int64) ([]int64, error) {
	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipNodes = true
	scanner.SkipWays = true
	defer scanner.Close()

	for scanner.Scan() {
		rel, ok := scanner.Object().(*osm.Relation)
		if !ok || int64(rel.ID) != id {
			continue
		}
		var ids []int64
		for _, m := range rel.Members {
			if m.Type == osm.TypeWay && m.Role != "inner" {
				ids = append(ids, m.Ref)
			}
		}
		if len(ids) == 0 {
			return nil, eris.Errorf("convert: relation %d has no outer way members", id)
		}
		return ids, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "convert: scan relations")
	}
	return []int64{id}, nil
}

func collectWayNodes(ctx context.Context, in io.ReadSeeker, wayIDs []int64) (map[int64][]osm.NodeID, error) {
	want := make(map[int64]bool, len(wayIDs))
	for _, id := range wayIDs {
		want[id] = true
	}

	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	defer scanner.Close()

	out := make(map[int64][]osm.NodeID)
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok || !want[int64(w.ID)] {
			continue
		}
		ids := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			ids[i] = wn.ID
		}
		out[int64(w.ID)] = ids
	}
	return out, eris.Wrap(scanner.Err(), "convert: scan ways")
}

// stitchRing joins the ways end to end into one closed node sequence,
// reversing ways as needed.
func stitchRing(wayIDs []int64, wayNodes map[int64][]osm.NodeID) ([]osm.NodeID, error) {
	remaining := make(map[int64][]osm.NodeID, len(wayNodes))
	for id, nodes := range wayNodes {
		if len(nodes) < 2 {
			return nil, eris.Errorf("convert: way %d has fewer than two nodes", id)
		}
		remaining[id] = nodes
	}

	var ring []osm.NodeID
	for _, id := range wayIDs {
		if nodes, ok := remaining[id]; ok {
			ring = append(ring, nodes...)
			delete(remaining, id)
			break
		}
	}

	for len(remaining) > 0 {
		end := ring[len(ring)-1]
		progressed := false
		for id, nodes := range remaining {
			switch end {
			case nodes[0]:
				ring = append(ring, nodes[1:]...)
			case nodes[len(nodes)-1]:
				for i := len(nodes) - 2; i >= 0; i-- {
					ring = append(ring, nodes[i])
				}
			default:
				continue
			}
			delete(remaining, id)
			progressed = true
			break
		}
		if !progressed {
			return nil, eris.Errorf("convert: outline is not a closed ring, %d ways left over", len(remaining))
		}
	}

	if ring[0] != ring[len(ring)-1] {
		return nil, eris.New("convert: outline is not a closed ring")
	}
	return ring, nil
}

func resolveNodes(ctx context.Context, in io.ReadSeeker, ids []osm.NodeID) ([]geom.Coord, error) {
	want := make(map[osm.NodeID]geom.Coord, len(ids))
	for _, id := range ids {
		want[id] = nil
	}

	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipWays = true
	scanner.SkipRelations = true
	defer scanner.Close()

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := want[n.ID]; needed {
			want[n.ID] = geom.Coord{n.Lon, n.Lat}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "convert: scan nodes")
	}

	coords := make([]geom.Coord, len(ids))
	for i, id := range ids {
		c := want[id]
		if c == nil {
			return nil, eris.Errorf("convert: node %d missing from input", id)
		}
		coords[i] = c
	}
	return coords, nil
}
