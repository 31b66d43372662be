package convert

import (
	"context"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/gis-ops/hannibal/internal/pbf"
	"github.com/gis-ops/hannibal/internal/sevas"
)

// startObjID is the first ID handed out to newly created OSM objects
// (cut nodes, zone geometries, sign nodes). High enough to stay clear
// of real OSM IDs for years; bump it in case of collisions.
const startObjID = 1<<45 - 1

// Tag key prefixes a layer governs. Matching a way against a layer
// drops these keys before the derived tags are applied.
var (
	restrictionKeys = []string{
		"hgv", "maxweight", "maxheight", "maxwidth",
		"maxlength", "maxaxleload", "hazmat",
	}
	roadSpeedKeys = []string{"maxspeed", "zone:traffic", "source:maxspeed"}
	preferredKeys = []string{"hgv"}
)

// Rewriter streams an OSM PBF extract into a new file, rewriting the
// tags of every way targeted by a SEVAS record. The input is scanned
// three times over one file handle: nodes (locations + pass-through),
// ways (match, split, retag) and relations. New objects (cut nodes,
// low emission zones, traffic signs) are written along the way.
type Rewriter struct {
	out *pbf.Writer

	restrictions *sevas.Restrictions
	preferred    *sevas.PreferredRoads
	speeds       *sevas.RoadSpeeds
	lez          *sevas.LowEmissionZones
	signs        *sevas.TrafficSigns
	clean        *TagCleanConfig
	stats        *Stats

	locations map[osm.NodeID][2]float64

	nextNodeID int64
	nextWayID  int64
	nextRelID  int64
}

// NewRewriter wires the layer tables to an output writer. Any table
// may be nil when its layer file is missing.
func NewRewriter(
	out *pbf.Writer,
	restrictions *sevas.Restrictions,
	preferred *sevas.PreferredRoads,
	speeds *sevas.RoadSpeeds,
	lez *sevas.LowEmissionZones,
	signs *sevas.TrafficSigns,
	clean *TagCleanConfig,
	stats *Stats,
) *Rewriter {
	return &Rewriter{
		out:          out,
		restrictions: restrictions,
		preferred:    preferred,
		speeds:       speeds,
		lez:          lez,
		signs:        signs,
		clean:        clean,
		stats:        stats,
		locations:    make(map[osm.NodeID][2]float64),
		nextNodeID:   startObjID,
		nextWayID:    startObjID,
		nextRelID:    startObjID,
	}
}

// Run processes the input extract and emits all new objects. The
// output writer is left open for the caller to close.
func (r *Rewriter) Run(ctx context.Context, inPath string) error {
	f, err := os.Open(inPath)
	if err != nil {
		return eris.Wrapf(err, "convert: open %s", inPath)
	}
	defer f.Close()

	passes := []func(context.Context, io.ReadSeeker) error{
		r.scanNodes,
		r.scanWays,
		r.scanRelations,
	}
	for _, pass := range passes {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return eris.Wrap(err, "convert: rewind input")
		}
		if err := pass(ctx, f); err != nil {
			return err
		}
	}

	if err := r.writeLowEmissionZones(); err != nil {
		return err
	}
	return r.writeTrafficSigns()
}

func (r *Rewriter) scanNodes(ctx context.Context, in io.ReadSeeker) error {
	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipWays = true
	scanner.SkipRelations = true
	defer scanner.Close()

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		coord := geom.Coord{n.Lon, n.Lat}
		r.locations[n.ID] = [2]float64{n.Lon, n.Lat}

		if r.clean != nil && r.clean.Contains(coord) {
			tags, removed := r.clean.Strip(n.Tags)
			n.Tags = tags
			r.stats.Add(CategoryRemoved, "node", removed)
		}
		if err := r.out.WriteNode(n); err != nil {
			return err
		}
	}
	return eris.Wrap(scanner.Err(), "convert: scan nodes")
}

func (r *Rewriter) scanWays(ctx context.Context, in io.ReadSeeker) error {
	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	defer scanner.Close()

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if err := r.rewriteWay(w); err != nil {
			return err
		}
	}
	return eris.Wrap(scanner.Err(), "convert: scan ways")
}

func (r *Rewriter) scanRelations(ctx context.Context, in io.ReadSeeker) error {
	scanner := osmpbf.New(ctx, in, runtime.GOMAXPROCS(0))
	scanner.SkipNodes = true
	scanner.SkipWays = true
	defer scanner.Close()

	for scanner.Scan() {
		rel, ok := scanner.Object().(*osm.Relation)
		if !ok {
			continue
		}
		// existing zone relations are replaced by the SEVAS polygons
		if r.lez != nil && rel.Tags.Find("boundary") == "low_emission_zone" {
			r.stats.Add(CategoryOverridden, string(sevas.LayerLowEmissionZones), 1)
			continue
		}
		if err := r.out.WriteRelation(rel); err != nil {
			return err
		}
	}
	return eris.Wrap(scanner.Err(), "convert: scan relations")
}

// taggedSegment pairs one SEVAS record's derived tags with the stretch
// of the way it covers.
type taggedSegment struct {
	frac  fraction
	tags  map[string]string
	layer string
	speed *sevas.RoadSpeedRecord
}

func (r *Rewriter) rewriteWay(w *osm.Way) error {
	wayID := int64(w.ID)

	var restr []*sevas.RestrictionRecord
	if r.restrictions != nil {
		restr = r.restrictions.Get(wayID)
	}
	var pref []*sevas.PreferredRoadRecord
	if r.preferred != nil {
		pref = r.preferred.Get(wayID)
	}
	var speeds []*sevas.RoadSpeedRecord
	if r.speeds != nil {
		speeds = r.speeds.Get(wayID)
	}

	line, lineOK := r.wayLine(w)

	if r.clean != nil && lineOK && r.clean.ContainsAny(line) {
		tags, removed := r.clean.Strip(w.Tags)
		w.Tags = tags
		r.stats.Add(CategoryRemoved, "way", removed)
	}

	if len(restr)+len(pref)+len(speeds) == 0 {
		return r.out.WriteWay(w)
	}

	if len(restr) > 0 {
		r.invalidate(w, restrictionKeys, string(sevas.LayerRestrictions))
	}
	if len(pref) > 0 {
		r.invalidate(w, preferredKeys, string(sevas.LayerPreferredRoads))
	}
	if len(speeds) > 0 {
		r.invalidate(w, roadSpeedKeys, string(sevas.LayerRoadSpeeds))
	}

	sort.Slice(pref, func(i, j int) bool { return pref[i].SegmentID < pref[j].SegmentID })
	sort.Slice(restr, func(i, j int) bool { return restr[i].SegmentID < restr[j].SegmentID })
	sort.Slice(speeds, func(i, j int) bool { return speeds[i].SegmentID < speeds[j].SegmentID })

	if !lineOK {
		zap.L().Warn("convert: way with unknown node locations, applying records to full way",
			zap.Int64("osm_id", wayID))
	}

	segs := make([]taggedSegment, 0, len(restr)+len(pref)+len(speeds))
	for _, rec := range pref {
		segs = append(segs, taggedSegment{
			frac:  r.recordFraction(line, lineOK, rec.Geom),
			tags:  rec.Tags(),
			layer: string(sevas.LayerPreferredRoads),
		})
	}
	for _, rec := range restr {
		tags, err := rec.Tags()
		if err != nil {
			return err
		}
		segs = append(segs, taggedSegment{
			frac:  r.recordFraction(line, lineOK, rec.Geom),
			tags:  tags,
			layer: string(sevas.LayerRestrictions),
		})
	}
	for _, rec := range speeds {
		segs = append(segs, taggedSegment{
			frac:  r.recordFraction(line, lineOK, rec.Geom),
			tags:  rec.Tags(),
			layer: string(sevas.LayerRoadSpeeds),
			speed: rec,
		})
	}

	cuts, cutPoints := collectCuts(segs)
	if len(cuts) == 0 {
		r.applySegmentTags(w, segs, 0, 1)
		return r.out.WriteWay(w)
	}

	return r.splitWay(w, line, segs, cuts, cutPoints)
}

// collectCuts gathers the interior fractions at which the way has to
// be cut, sorted ascending, with the coordinate of each cut.
func collectCuts(segs []taggedSegment) ([]float64, map[float64]geom.Coord) {
	points := make(map[float64]geom.Coord)
	for _, s := range segs {
		for _, cp := range []struct {
			f float64
			p geom.Coord
		}{
			{s.frac.start, s.frac.startPoint},
			{s.frac.end, s.frac.endPoint},
		} {
			if cp.f <= fracEps || cp.f >= 1-fracEps || cp.p == nil {
				continue
			}
			if _, ok := points[cp.f]; !ok {
				points[cp.f] = cp.p
			}
		}
	}

	cuts := make([]float64, 0, len(points))
	for f := range points {
		cuts = append(cuts, f)
	}
	sort.Float64s(cuts)
	return cuts, points
}

// splitWay cuts the way at the given fractions and writes one piece
// per stretch. The first piece keeps the original way ID so relation
// memberships stay intact; later pieces get new IDs. Cut nodes reuse
// an existing member node when the coordinates coincide, otherwise a
// new node is created at the segment endpoint.
func (r *Rewriter) splitWay(
	w *osm.Way,
	line []geom.Coord,
	segs []taggedSegment,
	cuts []float64,
	cutPoints map[float64]geom.Coord,
) error {
	fracs := nodeFractions(line)

	cutNodes := make(map[float64]osm.NodeID, len(cuts))
	for _, c := range cuts {
		coord := cutPoints[c]
		id := osm.NodeID(0)
		for i := range line {
			if samePoint(line[i], coord) {
				id = w.Nodes[i].ID
				break
			}
		}
		if id == 0 {
			r.nextNodeID++
			id = osm.NodeID(r.nextNodeID)
			node := &osm.Node{ID: id, Lon: coord[0], Lat: coord[1]}
			if err := r.out.WriteNode(node); err != nil {
				return err
			}
			r.locations[id] = [2]float64{coord[0], coord[1]}
		}
		cutNodes[c] = id
	}

	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, cuts...)
	bounds = append(bounds, 1)

	pieces := 0
	for j := 0; j < len(bounds)-1; j++ {
		lo, hi := bounds[j], bounds[j+1]

		refs := make(osm.WayNodes, 0, len(w.Nodes))
		if j == 0 {
			refs = append(refs, w.Nodes[0])
		} else {
			refs = append(refs, osm.WayNode{ID: cutNodes[lo]})
		}
		for i := 1; i < len(w.Nodes)-1; i++ {
			if fracs[i] > lo+fracEps && fracs[i] < hi-fracEps && w.Nodes[i].ID != refs[len(refs)-1].ID {
				refs = append(refs, w.Nodes[i])
			}
		}
		var last osm.WayNode
		if j == len(bounds)-2 {
			last = w.Nodes[len(w.Nodes)-1]
		} else {
			last = osm.WayNode{ID: cutNodes[hi]}
		}
		if last.ID != refs[len(refs)-1].ID {
			refs = append(refs, last)
		}
		if len(refs) < 2 {
			continue
		}

		piece := &osm.Way{
			Nodes: refs,
			Tags:  append(osm.Tags(nil), w.Tags...),
		}
		if pieces == 0 {
			piece.ID = w.ID
		} else {
			r.nextWayID++
			piece.ID = osm.WayID(r.nextWayID)
		}
		pieces++

		r.applySegmentTags(piece, segs, lo, hi)
		if err := r.out.WriteWay(piece); err != nil {
			return err
		}
	}

	r.stats.AddSplit(pieces)
	return nil
}

// applySegmentTags writes the tags of every record covering the piece
// [lo, hi] onto the way. Overlapping speed zones resolve to the
// strictest one.
func (r *Rewriter) applySegmentTags(w *osm.Way, segs []taggedSegment, lo, hi float64) {
	var strictest *taggedSegment
	for i := range segs {
		s := &segs[i]
		if !s.frac.covers(lo, hi) {
			continue
		}
		if s.speed != nil {
			if strictest == nil || s.speed.Stricter(strictest.speed) {
				strictest = s
			}
			continue
		}
		r.applyTags(w, s.tags, s.layer)
	}
	if strictest != nil {
		r.applyTags(w, strictest.tags, strictest.layer)
	}
}

func (r *Rewriter) applyTags(w *osm.Way, tags map[string]string, layer string) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		setTag(w, k, tags[k])
	}
	r.stats.Add(CategoryAdded, layer, len(keys))
}

func setTag(w *osm.Way, key, value string) {
	for i := range w.Tags {
		if w.Tags[i].Key == key {
			w.Tags[i].Value = value
			return
		}
	}
	w.Tags = append(w.Tags, osm.Tag{Key: key, Value: value})
}

// invalidate drops existing tags whose key falls under one of the
// layer's governed prefixes.
func (r *Rewriter) invalidate(w *osm.Way, prefixes []string, layer string) {
	kept := w.Tags[:0]
	removed := 0
	for _, t := range w.Tags {
		if keyGoverned(t.Key, prefixes) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	w.Tags = kept
	r.stats.Add(CategoryOverridden, layer, removed)
}

func keyGoverned(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if key == p || strings.HasPrefix(key, p+":") {
			return true
		}
	}
	return false
}

// recordFraction locates a record geometry along the way line; records
// without usable geometry cover the whole way.
func (r *Rewriter) recordFraction(line []geom.Coord, lineOK bool, seg *geom.LineString) fraction {
	if !lineOK || seg == nil {
		return fullFraction()
	}
	return segmentFraction(line, seg)
}

func (r *Rewriter) wayLine(w *osm.Way) ([]geom.Coord, bool) {
	line := make([]geom.Coord, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		loc, ok := r.locations[wn.ID]
		if !ok {
			return nil, false
		}
		line = append(line, geom.Coord{loc[0], loc[1]})
	}
	return line, len(line) >= 2
}

// writeLowEmissionZones emits every SEVAS zone polygon as nodes, closed
// ways and a boundary relation.
func (r *Rewriter) writeLowEmissionZones() error {
	if r.lez == nil {
		return nil
	}

	for _, rec := range r.lez.Records() {
		var members osm.Members
		for ri := 0; ri < rec.Geom.NumLinearRings(); ri++ {
			ring := rec.Geom.LinearRing(ri)
			coords := ring.Coords()
			if len(coords) > 1 && samePoint(coords[0], coords[len(coords)-1]) {
				coords = coords[:len(coords)-1]
			}
			if len(coords) < 3 {
				continue
			}

			refs := make(osm.WayNodes, 0, len(coords)+1)
			for _, c := range coords {
				r.nextNodeID++
				id := osm.NodeID(r.nextNodeID)
				if err := r.out.WriteNode(&osm.Node{ID: id, Lon: c[0], Lat: c[1]}); err != nil {
					return err
				}
				refs = append(refs, osm.WayNode{ID: id})
			}
			refs = append(refs, refs[0])

			r.nextWayID++
			way := &osm.Way{ID: osm.WayID(r.nextWayID), Nodes: refs}
			if err := r.out.WriteWay(way); err != nil {
				return err
			}

			role := "outer"
			if ri > 0 {
				role = "inner"
			}
			members = append(members, osm.Member{Type: osm.TypeWay, Ref: int64(way.ID), Role: role})
		}
		if len(members) == 0 {
			continue
		}

		r.nextRelID++
		rel := &osm.Relation{ID: osm.RelationID(r.nextRelID), Members: members}
		tags := rec.Tags()
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rel.Tags = append(rel.Tags, osm.Tag{Key: k, Value: tags[k]})
		}
		if err := r.out.WriteRelation(rel); err != nil {
			return err
		}
		r.stats.Add(CategoryAdded, string(sevas.LayerLowEmissionZones), len(keys))
	}
	return nil
}

// writeTrafficSigns emits one tagged node per sign assembly.
func (r *Rewriter) writeTrafficSigns() error {
	if r.signs == nil {
		return nil
	}

	for _, aid := range r.signs.AssemblyIDs() {
		recs := r.signs.Assembly(aid)
		tags := sevas.AssemblyTags(recs)
		if len(tags) == 0 {
			continue
		}

		r.nextNodeID++
		node := &osm.Node{
			ID:  osm.NodeID(r.nextNodeID),
			Lon: recs[0].Geom.X(),
			Lat: recs[0].Geom.Y(),
		}
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			node.Tags = append(node.Tags, osm.Tag{Key: k, Value: tags[k]})
		}
		if err := r.out.WriteNode(node); err != nil {
			return err
		}
		r.stats.Add(CategoryAdded, string(sevas.LayerTrafficSigns), len(keys))
	}
	return nil
}
