package convert

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Category classifies a tag mutation for the end-of-run report.
type Category string

const (
	// CategoryAdded counts tags written because of a SEVAS record.
	CategoryAdded Category = "added"
	// CategoryOverridden counts existing tags dropped because a SEVAS
	// record governs their key.
	CategoryOverridden Category = "overridden"
	// CategoryRemoved counts tags stripped by the tag clean polygon.
	CategoryRemoved Category = "removed"
)

// Stats accumulates per-layer tag mutation counts and the number of
// way splits performed.
type Stats struct {
	counts map[Category]map[string]int
	splits int
}

// NewStats returns an empty counter set.
func NewStats() *Stats {
	return &Stats{counts: make(map[Category]map[string]int)}
}

// Add records n mutations of the given category for a layer.
func (s *Stats) Add(cat Category, layer string, n int) {
	if n == 0 {
		return
	}
	m, ok := s.counts[cat]
	if !ok {
		m = make(map[string]int)
		s.counts[cat] = m
	}
	m[layer] += n
}

// AddSplit records that a way was cut into extra pieces.
func (s *Stats) AddSplit(pieces int) {
	if pieces > 1 {
		s.splits += pieces - 1
	}
}

// Splits returns the number of extra way pieces created.
func (s *Stats) Splits() int { return s.splits }

// Count returns the counter for one category and layer.
func (s *Stats) Count(cat Category, layer string) int {
	return s.counts[cat][layer]
}

// Layers returns the layers with counts in a category, sorted.
func (s *Stats) Layers(cat Category) []string {
	layers := make([]string, 0, len(s.counts[cat]))
	for layer := range s.counts[cat] {
		layers = append(layers, layer)
	}
	sort.Strings(layers)
	return layers
}

// Report renders the human-readable end-of-run summary.
func (s *Stats) Report() string {
	var b strings.Builder
	b.WriteString("#__________ Report __________#\n")

	section := func(title string, cat Category) {
		fmt.Fprintf(&b, "%s\n", title)
		layers := s.Layers(cat)
		if len(layers) == 0 {
			b.WriteString("\t(none)\n")
			return
		}
		for _, layer := range layers {
			fmt.Fprintf(&b, "\t%s: %d\n", layer, s.counts[cat][layer])
		}
	}

	section("Tags added per layer", CategoryAdded)
	section("Tags overridden per layer", CategoryOverridden)
	section("Tags removed by polygon clean", CategoryRemoved)
	fmt.Fprintf(&b, "Way splits: %d\n", s.splits)
	return b.String()
}

// MarshalJSON serializes the counters for the run log.
func (s *Stats) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"splits": s.splits,
	}
	for cat, layers := range s.counts {
		out[string(cat)] = layers
	}
	return json.Marshal(out)
}
