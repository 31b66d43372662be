// Package pbf writes OSM PBF files for the paulmach/osm element model.
package pbf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"math"

	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
)

// latlonScale converts degrees to the stored unit at the default
// granularity of 100 nanodegrees.
const latlonScale = 1e7

// groupSize is the number of elements batched into one primitive
// block.
const groupSize = 8000

// Writer streams OSM elements into PBF primitive blocks. Elements of
// one type are batched together; a type switch or a full batch flushes
// a block. Elements may arrive in any order, though readers expect the
// usual node/way/relation progression where possible. No element
// metadata (versions, users, timestamps) is written, which keeps the
// output deterministic.
type Writer struct {
	w io.Writer

	nodes     []*osm.Node
	ways      []*osm.Way
	relations []*osm.Relation
}

// NewWriter writes the OSMHeader blob and returns a writer ready for
// elements.
func NewWriter(w io.Writer, writingProgram string) (*Writer, error) {
	var header []byte
	for _, feature := range []string{"OsmSchema-V0.6", "DenseNodes"} {
		header = protowire.AppendTag(header, 4, protowire.BytesType)
		header = protowire.AppendString(header, feature)
	}
	header = protowire.AppendTag(header, 16, protowire.BytesType)
	header = protowire.AppendString(header, writingProgram)

	pw := &Writer{w: w}
	if err := pw.writeBlob("OSMHeader", header); err != nil {
		return nil, err
	}
	return pw, nil
}

// WriteNode queues a node for the next dense node block.
func (pw *Writer) WriteNode(n *osm.Node) error {
	if err := pw.flushExcept(elemNode); err != nil {
		return err
	}
	pw.nodes = append(pw.nodes, n)
	if len(pw.nodes) >= groupSize {
		return pw.flushNodes()
	}
	return nil
}

// WriteWay queues a way for the next way block.
func (pw *Writer) WriteWay(w *osm.Way) error {
	if err := pw.flushExcept(elemWay); err != nil {
		return err
	}
	pw.ways = append(pw.ways, w)
	if len(pw.ways) >= groupSize {
		return pw.flushWays()
	}
	return nil
}

// WriteRelation queues a relation for the next relation block.
func (pw *Writer) WriteRelation(r *osm.Relation) error {
	if err := pw.flushExcept(elemRelation); err != nil {
		return err
	}
	pw.relations = append(pw.relations, r)
	if len(pw.relations) >= groupSize {
		return pw.flushRelations()
	}
	return nil
}

// Close flushes all pending elements. It does not close the underlying
// writer.
func (pw *Writer) Close() error {
	return pw.flushExcept(elemNone)
}

type elemKind int

const (
	elemNone elemKind = iota
	elemNode
	elemWay
	elemRelation
)

func (pw *Writer) flushExcept(keep elemKind) error {
	if keep != elemNode {
		if err := pw.flushNodes(); err != nil {
			return err
		}
	}
	if keep != elemWay {
		if err := pw.flushWays(); err != nil {
			return err
		}
	}
	if keep != elemRelation {
		if err := pw.flushRelations(); err != nil {
			return err
		}
	}
	return nil
}

func (pw *Writer) flushNodes() error {
	if len(pw.nodes) == 0 {
		return nil
	}
	block := encodeDenseNodes(pw.nodes)
	pw.nodes = pw.nodes[:0]
	return pw.writeBlob("OSMData", block)
}

func (pw *Writer) flushWays() error {
	if len(pw.ways) == 0 {
		return nil
	}
	block := encodeWays(pw.ways)
	pw.ways = pw.ways[:0]
	return pw.writeBlob("OSMData", block)
}

func (pw *Writer) flushRelations() error {
	if len(pw.relations) == 0 {
		return nil
	}
	block := encodeRelations(pw.relations)
	pw.relations = pw.relations[:0]
	return pw.writeBlob("OSMData", block)
}

// writeBlob zlib-compresses a block payload and writes the framed
// BlobHeader + Blob pair.
func (pw *Writer) writeBlob(blobType string, payload []byte) error {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return eris.Wrap(err, "pbf: compress blob")
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "pbf: compress blob")
	}

	var blob []byte
	blob = protowire.AppendTag(blob, 2, protowire.VarintType)
	blob = protowire.AppendVarint(blob, uint64(len(payload)))
	blob = protowire.AppendTag(blob, 3, protowire.BytesType)
	blob = protowire.AppendBytes(blob, buf.Bytes())

	var header []byte
	header = protowire.AppendTag(header, 1, protowire.BytesType)
	header = protowire.AppendString(header, blobType)
	header = protowire.AppendTag(header, 3, protowire.VarintType)
	header = protowire.AppendVarint(header, uint64(len(blob)))

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(header)))

	for _, chunk := range [][]byte{size[:], header, blob} {
		if _, err := pw.w.Write(chunk); err != nil {
			return eris.Wrap(err, "pbf: write blob")
		}
	}
	return nil
}

// stringTable interns block strings; index 0 is the empty string, which
// dense key/value lists use as the per-node terminator.
type stringTable struct {
	index map[string]uint64
	vals  []string
}

func newStringTable() *stringTable {
	return &stringTable{
		index: map[string]uint64{"": 0},
		vals:  []string{""},
	}
}

func (st *stringTable) lookup(s string) uint64 {
	if i, ok := st.index[s]; ok {
		return i
	}
	i := uint64(len(st.vals))
	st.index[s] = i
	st.vals = append(st.vals, s)
	return i
}

func (st *stringTable) encode() []byte {
	var b []byte
	for _, s := range st.vals {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendPacked(msg []byte, field protowire.Number, packed []byte) []byte {
	msg = protowire.AppendTag(msg, field, protowire.BytesType)
	return protowire.AppendBytes(msg, packed)
}

func appendSint64(b []byte, v int64) []byte {
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func coordUnits(deg float64) int64 {
	return int64(math.Round(deg * latlonScale))
}

// encodeDenseNodes builds a primitive block with one dense node group.
func encodeDenseNodes(nodes []*osm.Node) []byte {
	st := newStringTable()

	var ids, lats, lons, kvs []byte
	var prevID, prevLat, prevLon int64
	for _, n := range nodes {
		id := int64(n.ID)
		ids = appendSint64(ids, id-prevID)
		prevID = id

		lat := coordUnits(n.Lat)
		lats = appendSint64(lats, lat-prevLat)
		prevLat = lat

		lon := coordUnits(n.Lon)
		lons = appendSint64(lons, lon-prevLon)
		prevLon = lon

		for _, t := range n.Tags {
			kvs = protowire.AppendVarint(kvs, st.lookup(t.Key))
			kvs = protowire.AppendVarint(kvs, st.lookup(t.Value))
		}
		kvs = protowire.AppendVarint(kvs, 0)
	}

	var dense []byte
	dense = appendPacked(dense, 1, ids)
	dense = appendPacked(dense, 8, lats)
	dense = appendPacked(dense, 9, lons)
	dense = appendPacked(dense, 10, kvs)

	var group []byte
	group = protowire.AppendTag(group, 2, protowire.BytesType)
	group = protowire.AppendBytes(group, dense)

	return encodeBlock(st, group)
}

// encodeWays builds a primitive block with one way group.
func encodeWays(ways []*osm.Way) []byte {
	st := newStringTable()

	var group []byte
	for _, w := range ways {
		var msg []byte
		msg = protowire.AppendTag(msg, 1, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(w.ID))

		if keys, vals := encodeTags(st, w.Tags); len(keys) > 0 {
			msg = appendPacked(msg, 2, keys)
			msg = appendPacked(msg, 3, vals)
		}

		var refs []byte
		var prev int64
		for _, wn := range w.Nodes {
			ref := int64(wn.ID)
			refs = appendSint64(refs, ref-prev)
			prev = ref
		}
		msg = appendPacked(msg, 8, refs)

		group = protowire.AppendTag(group, 3, protowire.BytesType)
		group = protowire.AppendBytes(group, msg)
	}

	return encodeBlock(st, group)
}

// encodeRelations builds a primitive block with one relation group.
func encodeRelations(relations []*osm.Relation) []byte {
	st := newStringTable()

	var group []byte
	for _, r := range relations {
		var msg []byte
		msg = protowire.AppendTag(msg, 1, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(r.ID))

		if keys, vals := encodeTags(st, r.Tags); len(keys) > 0 {
			msg = appendPacked(msg, 2, keys)
			msg = appendPacked(msg, 3, vals)
		}

		var roles, memids, types []byte
		var prev int64
		for _, m := range r.Members {
			roles = protowire.AppendVarint(roles, st.lookup(m.Role))
			memids = appendSint64(memids, m.Ref-prev)
			prev = m.Ref
			types = protowire.AppendVarint(types, uint64(memberType(m.Type)))
		}
		if len(r.Members) > 0 {
			msg = appendPacked(msg, 8, roles)
			msg = appendPacked(msg, 9, memids)
			msg = appendPacked(msg, 10, types)
		}

		group = protowire.AppendTag(group, 4, protowire.BytesType)
		group = protowire.AppendBytes(group, msg)
	}

	return encodeBlock(st, group)
}

func encodeTags(st *stringTable, tags osm.Tags) (keys, vals []byte) {
	for _, t := range tags {
		keys = protowire.AppendVarint(keys, st.lookup(t.Key))
		vals = protowire.AppendVarint(vals, st.lookup(t.Value))
	}
	return keys, vals
}

func memberType(t osm.Type) int {
	switch t {
	case osm.TypeWay:
		return 1
	case osm.TypeRelation:
		return 2
	default:
		return 0
	}
}

// encodeBlock wraps a string table and one primitive group into a
// PrimitiveBlock message. Granularity and offsets stay at their proto
// defaults.
func encodeBlock(st *stringTable, group []byte) []byte {
	var block []byte
	block = protowire.AppendTag(block, 1, protowire.BytesType)
	block = protowire.AppendBytes(block, st.encode())
	block = protowire.AppendTag(block, 2, protowire.BytesType)
	block = protowire.AppendBytes(block, group)
	return block
}
