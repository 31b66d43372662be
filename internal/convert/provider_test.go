package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gis-ops/hannibal/internal/pbf"
)

// The test map is a chain of five ways along one parallel:
//
//	A---1--------B-2-----C-3---4--D-----E----F
//
// A through F are way nodes, 1 through 4 mark the end points of SEVAS
// speed segments. They exist in the extract as standalone nodes but are
// not way members, so splitting there has to introduce new nodes.
const testLat = 50.0

var testLon = map[string]float64{
	"A": 0.000, "1": 0.004,
	"B": 0.013, "2": 0.015,
	"C": 0.021, "3": 0.025, "4": 0.029,
	"D": 0.032,
	"E": 0.037,
	"F": 0.041,
}

func writeTestExtract(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "extract.osm.pbf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pbf.NewWriter(f, "test")
	require.NoError(t, err)

	nodeIDs := map[string]osm.NodeID{
		"A": 1, "B": 2, "C": 3, "D": 4, "E": 5, "F": 6,
		"1": 7, "2": 8, "3": 9, "4": 10,
	}
	for _, name := range []string{"A", "B", "C", "D", "E", "F", "1", "2", "3", "4"} {
		require.NoError(t, w.WriteNode(&osm.Node{
			ID:  nodeIDs[name],
			Lon: testLon[name],
			Lat: testLat,
		}))
	}

	ways := []struct {
		id   osm.WayID
		from string
		to   string
		tags osm.Tags
	}{
		{1, "A", "B", nil},
		{2, "B", "C", nil},
		{3, "C", "D", nil},
		{4, "D", "E", nil},
		{5, "E", "F", osm.Tags{{Key: "maxspeed", Value: "70"}}},
	}
	for _, way := range ways {
		require.NoError(t, w.WriteWay(&osm.Way{
			ID:    way.id,
			Nodes: osm.WayNodes{{ID: nodeIDs[way.from]}, {ID: nodeIDs[way.to]}},
			Tags:  way.tags,
		}))
	}

	require.NoError(t, w.WriteRelation(&osm.Relation{
		ID:      100,
		Members: osm.Members{{Type: osm.TypeWay, Ref: 1, Role: ""}},
		Tags:    osm.Tags{{Key: "type", Value: "route"}},
	}))
	require.NoError(t, w.WriteRelation(&osm.Relation{
		ID:      101,
		Members: osm.Members{{Type: osm.TypeWay, Ref: 2, Role: "outer"}},
		Tags:    osm.Tags{{Key: "boundary", Value: "low_emission_zone"}},
	}))

	w.Close()
	require.NoError(t, f.Close())
	return path
}

type speedSeg struct {
	segmentID string
	osmID     string
	wert      string
	from      string
	to        string
}

func writeSpeedShapefile(t *testing.T, dir string, segs []speedSeg) {
	t.Helper()

	w, err := shp.Create(filepath.Join(dir, "zonen_segmente.shp"), shp.POLYLINE)
	require.NoError(t, err)

	w.SetFields([]shp.Field{
		shp.StringField("typ", 20),
		shp.StringField("segment_id", 20),
		shp.StringField("zone_id", 20),
		shp.StringField("osm_id", 20),
		shp.StringField("wert", 20),
	})

	for i, seg := range segs {
		w.Write(shp.NewPolyLine([][]shp.Point{{
			{X: testLon[seg.from], Y: testLat},
			{X: testLon[seg.to], Y: testLat},
		}}))
		require.NoError(t, w.WriteAttribute(i, 0, "tempozone"))
		require.NoError(t, w.WriteAttribute(i, 1, seg.segmentID))
		require.NoError(t, w.WriteAttribute(i, 2, "1"))
		require.NoError(t, w.WriteAttribute(i, 3, seg.osmID))
		require.NoError(t, w.WriteAttribute(i, 4, seg.wert))
	}
	w.Close()
}

func testSpeedSegs() []speedSeg {
	return []speedSeg{
		{"1", "1", "274.1", "A", "1"},
		{"2", "2", "274.1", "B", "2"},
		{"3", "3", "274.1", "3", "4"},
		{"4", "4", "274.1", "D", "E"},
		// three overlapping zones on EF, the 20 zone is strictest
		{"5", "5", "274.1", "E", "F"},
		{"6", "5", "310", "E", "F"},
		{"7", "5", "274.1-20", "E", "F"},
		// targets a way that is not in the extract
		{"8", "999", "274.1", "E", "F"},
	}
}

func readOutput(t *testing.T, path string) (osm.Nodes, osm.Ways, osm.Relations) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	scanner := osmpbf.New(context.Background(), bytes.NewReader(data), 1)
	defer scanner.Close()

	var nodes osm.Nodes
	var ways osm.Ways
	var relations osm.Relations
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			nodes = append(nodes, o)
		case *osm.Way:
			ways = append(ways, o)
		case *osm.Relation:
			relations = append(relations, o)
		}
	}
	require.NoError(t, scanner.Err())
	return nodes, ways, relations
}

func runConversion(t *testing.T, opts Options) *Provider {
	t.Helper()
	p, err := NewProvider(opts)
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background()))
	return p
}

func TestConvertSpeedZonesSplitting(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestExtract(t, dir)
	writeSpeedShapefile(t, dir, testSpeedSegs())
	outPath := filepath.Join(dir, "out.osm.pbf")

	p := runConversion(t, Options{DataDir: dir, InPath: inPath, OutPath: outPath})
	nodes, ways, relations := readOutput(t, outPath)

	// 10 original nodes plus one new cut node per segment end point
	assert.Len(t, nodes, 14)

	// AB and BC split in two, CD in three, DE and EF stay whole
	assert.Len(t, ways, 9)
	assert.Equal(t, 4, p.Stats().Splits())

	// no zone relation was loaded, the existing one passes through
	assert.Len(t, relations, 2)

	byID := make(map[osm.WayID]*osm.Way, len(ways))
	piecesOf := make(map[osm.WayID]int)
	for _, w := range ways {
		byID[w.ID] = w
		if int64(w.ID) <= 5 {
			piecesOf[w.ID]++
		}
	}
	// first piece keeps the original ID, later pieces get new ones
	for id := osm.WayID(1); id <= 5; id++ {
		assert.Equal(t, 1, piecesOf[id], "way %d", id)
	}

	speed30, speed20, zone30 := 0, 0, 0
	for _, w := range ways {
		switch w.Tags.Find("maxspeed") {
		case "30":
			speed30++
		case "20":
			speed20++
		}
		if w.Tags.Find("zone:traffic") == "DE:zone30" {
			zone30++
		}
	}
	assert.Equal(t, 4, speed30)
	assert.Equal(t, 1, speed20)
	assert.Equal(t, 4, zone30)

	// the strictest of the three EF zones wins and replaces the old value
	ef := byID[5]
	require.NotNil(t, ef)
	assert.Equal(t, "20", ef.Tags.Find("maxspeed"))
	assert.Equal(t, "DE:zone20", ef.Tags.Find("maxspeed:type"))
	assert.Equal(t, 1, p.Stats().Count(CategoryOverridden, "zonen_segmente"))

	// the record for the absent way is reported as unmatched
	unmatched := p.Unmatched()
	require.Contains(t, unmatched, "zonen_segmente")
	assert.Equal(t, []int64{8}, unmatched["zonen_segmente"])
}

func TestConvertCutNodeCoordinates(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestExtract(t, dir)
	writeSpeedShapefile(t, dir, testSpeedSegs()[:1])
	outPath := filepath.Join(dir, "out.osm.pbf")

	runConversion(t, Options{DataDir: dir, InPath: inPath, OutPath: outPath})
	nodes, ways, _ := readOutput(t, outPath)

	require.Len(t, nodes, 11)
	var cut *osm.Node
	for _, n := range nodes {
		if int64(n.ID) > 10 {
			cut = n
		}
	}
	// the cut node sits exactly at the segment end point
	require.NotNil(t, cut)
	assert.InDelta(t, testLon["1"], cut.Lon, 1e-7)
	assert.InDelta(t, testLat, cut.Lat, 1e-7)

	// both pieces of AB share the cut node
	var pieces []*osm.Way
	for _, w := range ways {
		if w.Nodes[0].ID == 1 || w.Nodes[len(w.Nodes)-1].ID == 2 {
			pieces = append(pieces, w)
		}
	}
	require.Len(t, pieces, 2)
	assert.Equal(t, cut.ID, pieces[0].Nodes[1].ID)
	assert.Equal(t, cut.ID, pieces[1].Nodes[0].ID)
}

func TestConvertDeterministic(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestExtract(t, dir)
	writeSpeedShapefile(t, dir, testSpeedSegs())

	out1 := filepath.Join(dir, "out1.osm.pbf")
	out2 := filepath.Join(dir, "out2.osm.pbf")
	runConversion(t, Options{DataDir: dir, InPath: inPath, OutPath: out1})
	runConversion(t, Options{DataDir: dir, InPath: inPath, OutPath: out2})

	b1, err := os.ReadFile(out1)
	require.NoError(t, err)
	b2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b1, b2))
}

func TestWriteUnmatchedGeoJSON(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestExtract(t, dir)
	writeSpeedShapefile(t, dir, testSpeedSegs())
	outPath := filepath.Join(dir, "out.osm.pbf")

	p := runConversion(t, Options{DataDir: dir, InPath: inPath, OutPath: outPath})

	geojsonPath := filepath.Join(dir, "unmatched.geojson")
	require.NoError(t, p.WriteUnmatchedGeoJSON(geojsonPath))

	data, err := os.ReadFile(geojsonPath)
	require.NoError(t, err)

	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Len(t, fc.Features, 1)
	assert.EqualValues(t, 8, fc.Features[0].Properties["segment_id"])
	assert.Equal(t, "zonen_segmente", fc.Features[0].Properties["layer"])
}

func TestNewProviderMissingInput(t *testing.T) {
	_, err := NewProvider(Options{
		DataDir: t.TempDir(),
		InPath:  filepath.Join(t.TempDir(), "nope.osm.pbf"),
	})
	assert.Error(t, err)
}

func TestNewProviderRejectsOutputEqualInput(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestExtract(t, dir)
	inInfo, err := os.Stat(inPath)
	require.NoError(t, err)

	_, err = NewProvider(Options{DataDir: dir, InPath: inPath, OutPath: inPath})
	assert.ErrorContains(t, err, "is the input file")

	// relative spelling of the same path
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, inPath)
	require.NoError(t, err)
	_, err = NewProvider(Options{DataDir: dir, InPath: inPath, OutPath: rel})
	assert.ErrorContains(t, err, "is the input file")

	// a hard link still names the input file
	link := filepath.Join(dir, "linked.osm.pbf")
	require.NoError(t, os.Link(inPath, link))
	_, err = NewProvider(Options{DataDir: dir, InPath: inPath, OutPath: link})
	assert.ErrorContains(t, err, "is the input file")

	// the extract must be untouched after the rejections
	info, err := os.Stat(inPath)
	require.NoError(t, err)
	assert.Equal(t, inInfo.Size(), info.Size())
}
