package classify

import "mapdedupe.io/internal/mapdata"

// Chooser picks the canonical survivor of a duplicate group. members is
// never empty and ordered by id; refCounts holds live references per id.
type Chooser interface {
	Choose(members []*mapdata.Map, refCounts map[int]int) int
}

type ChooserFunc func(members []*mapdata.Map, refCounts map[int]int) int

func (f ChooserFunc) Choose(members []*mapdata.Map, refCounts map[int]int) int {
	return f(members, refCounts)
}

// MostExplored prefers the member with the most explored cells, then the
// lowest id.
var MostExplored ChooserFunc = func(members []*mapdata.Map, _ map[int]int) int {
	best := members[0]
	bestN := best.Explored()
	for _, m := range members[1:] {
		n := m.Explored()
		if n > bestN || (n == bestN && m.ID < best.ID) {
			best, bestN = m, n
		}
	}
	return best.ID
}

// PreferReferenced pins the only member that still has references. With
// zero or several referenced members it defers to next.
func PreferReferenced(next Chooser) Chooser {
	if next == nil {
		next = MostExplored
	}
	return ChooserFunc(func(members []*mapdata.Map, refCounts map[int]int) int {
		only, n := 0, 0
		for _, m := range members {
			if refCounts[m.ID] > 0 {
				only = m.ID
				n++
			}
		}
		if n == 1 {
			return only
		}
		return next.Choose(members, refCounts)
	})
}

// Pinned picks the first pinned id found among the members, in pin order;
// groups without a pinned member defer to next.
func Pinned(ids []int, next Chooser) Chooser {
	if next == nil {
		next = MostExplored
	}
	pins := append([]int(nil), ids...)
	return ChooserFunc(func(members []*mapdata.Map, refCounts map[int]int) int {
		for _, pin := range pins {
			for _, m := range members {
				if m.ID == pin {
					return pin
				}
			}
		}
		return next.Choose(members, refCounts)
	})
}
