package sevas

import (
	"sort"
	"strconv"
	"strings"
)

// wayTable maps OSM way IDs to the SEVAS records targeting them and
// remembers which IDs were ever looked up, so records whose way never
// appeared in the extract can be reported afterwards.
type wayTable[R any] struct {
	m        map[int64][]R
	accessed map[int64]bool
}

func newWayTable[R any]() wayTable[R] {
	return wayTable[R]{
		m:        make(map[int64][]R),
		accessed: make(map[int64]bool),
	}
}

func (t *wayTable[R]) add(osmID int64, rec R) {
	t.m[osmID] = append(t.m[osmID], rec)
	if _, ok := t.accessed[osmID]; !ok {
		t.accessed[osmID] = false
	}
}

// Get returns all records for the given OSM way ID and marks the ID as
// matched. Returns nil when no record targets the way.
func (t *wayTable[R]) Get(osmID int64) []R {
	recs, ok := t.m[osmID]
	if !ok {
		return nil
	}
	t.accessed[osmID] = true
	return recs
}

// Len returns the total number of records in the table.
func (t *wayTable[R]) Len() int {
	n := 0
	for _, recs := range t.m {
		n += len(recs)
	}
	return n
}

// WayIDs returns all targeted OSM way IDs in ascending order.
func (t *wayTable[R]) WayIDs() []int64 {
	ids := make([]int64, 0, len(t.m))
	for id := range t.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Unmatched returns the records of every way ID that was never looked
// up, ordered by way ID.
func (t *wayTable[R]) Unmatched() []R {
	var recs []R
	for _, id := range t.WayIDs() {
		if !t.accessed[id] {
			recs = append(recs, t.m[id]...)
		}
	}
	return recs
}

func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	// DBF numeric columns occasionally come through as "123.0"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "wahr", "ja":
		return true
	default:
		return false
	}
}
