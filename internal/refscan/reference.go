package refscan

import (
	"fmt"
	"sort"

	"mapdedupe.io/internal/tagtree"
)

// Source names the part of the save a reference was found in.
type Source string

const (
	SourceChunk  Source = "chunk"
	SourceEntity Source = "entity"
	SourcePlayer Source = "player"
	SourceLevel  Source = "level"
)

// Location identifies one map-id slot. Path points at the map-id scalar
// itself and is enough to rewrite it; the other fields are for people.
type Location struct {
	Source    Source
	Dimension string
	Region    string
	Chunk     string
	Owner     string
	Pos       *[3]int
	Holder    string
	Slot      int
	Path      tagtree.Path
}

func (l Location) String() string {
	s := string(l.Source)
	if l.Dimension != "" {
		s += " " + l.Dimension
	}
	if l.Owner != "" {
		s += " " + l.Owner
	}
	if l.Pos != nil {
		s += fmt.Sprintf(" @%d,%d,%d", l.Pos[0], l.Pos[1], l.Pos[2])
	}
	s += " " + l.Holder
	if l.Slot >= 0 {
		s += fmt.Sprintf("[%d]", l.Slot)
	}
	return s
}

// Reference is one in-world pointer to a map record.
type Reference struct {
	MapID    int
	Location Location
}

func (r Reference) String() string {
	return fmt.Sprintf("map %d\t%s\t%s", r.MapID, r.Location.Path, r.Location)
}

// SortReferences orders by locator path.
func SortReferences(refs []Reference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Location.Path.String() < refs[j].Location.Path.String()
	})
}

// GroupByMap indexes references by map id, preserving order.
func GroupByMap(refs []Reference) map[int][]Reference {
	out := map[int][]Reference{}
	for _, r := range refs {
		out[r.MapID] = append(out[r.MapID], r)
	}
	return out
}
