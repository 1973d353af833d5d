package merge

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"mapdedupe.io/internal/classify"
	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/protocol"
)

// PixelConflict is a cell where two members hold different non-zero
// colors. The earlier member in merge order keeps its color.
type PixelConflict struct {
	X, Y    int
	MapID   int
	Kept    byte
	Dropped byte
}

// MergedMap is the result of merging one duplicate group.
type MergedMap struct {
	Key         mapdata.Key
	CanonicalID int
	Superseded  []int
	Pixels      []byte
	Decorations []mapdata.Decoration
	Conflicts   []PixelConflict
	// Changed reports whether Pixels differ from the canonical record.
	Changed bool
}

// Order returns the group members in merge order: the canonical member,
// then the rest by decreasing explored cells and ascending id.
func Order(cat *mapdata.Catalog, g classify.Group) ([]*mapdata.Map, error) {
	canon, ok := cat.Get(g.Canonical)
	if !ok || !g.Has(g.Canonical) {
		return nil, fmt.Errorf("group %s: canonical map %d not in group", g.Key, g.Canonical)
	}
	rest := make([]*mapdata.Map, 0, len(g.Members)-1)
	explored := map[int]int{}
	for _, id := range g.Members {
		if id == g.Canonical {
			continue
		}
		m, ok := cat.Get(id)
		if !ok {
			return nil, fmt.Errorf("group %s: map %d not loaded", g.Key, id)
		}
		rest = append(rest, m)
		explored[id] = m.Explored()
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if explored[a.ID] != explored[b.ID] {
			return explored[a.ID] > explored[b.ID]
		}
		return a.ID < b.ID
	})
	return append([]*mapdata.Map{canon}, rest...), nil
}

// Merge computes the merged grid of a duplicate group. Each cell takes the
// first non-zero value in merge order, so the result is zero exactly where
// every member is zero. The inputs are not modified.
func Merge(cat *mapdata.Catalog, g classify.Group) (MergedMap, error) {
	members, err := Order(cat, g)
	if err != nil {
		return MergedMap{}, err
	}
	for _, m := range members {
		if len(m.Pixels) != mapdata.GridCells {
			return MergedMap{}, fmt.Errorf("map %d: %d pixels, want %d", m.ID, len(m.Pixels), mapdata.GridCells)
		}
	}

	canon := members[0]
	superseded := g.Superseded()
	sort.Ints(superseded)
	out := MergedMap{
		Key:         g.Key,
		CanonicalID: canon.ID,
		Superseded:  superseded,
		Pixels:      make([]byte, mapdata.GridCells),
		Decorations: append([]mapdata.Decoration(nil), canon.Decorations...),
	}
	for i := range out.Pixels {
		for _, m := range members {
			v := m.Pixels[i]
			if v == 0 {
				continue
			}
			if out.Pixels[i] == 0 {
				out.Pixels[i] = v
				continue
			}
			if v != out.Pixels[i] {
				out.Conflicts = append(out.Conflicts, PixelConflict{
					X: i % mapdata.GridSize, Y: i / mapdata.GridSize,
					MapID: m.ID, Kept: out.Pixels[i], Dropped: v,
				})
			}
		}
		if out.Pixels[i] != canon.Pixels[i] {
			out.Changed = true
		}
	}
	return out, nil
}

// Warnings converts conflicts to report warnings, at most max of them
// (max <= 0 means all).
func (m MergedMap) Warnings(max int) []protocol.Warning {
	n := len(m.Conflicts)
	if max > 0 && n > max {
		n = max
	}
	out := make([]protocol.Warning, 0, n)
	for _, c := range m.Conflicts[:n] {
		out = append(out, protocol.MapWarnf(protocol.WarnPixelConflict, c.MapID, mapdata.PixelsPath(c.MapID).String(),
			"cell (%d,%d): kept %d from canonical order, dropped %d", c.X, c.Y, c.Kept, c.Dropped))
	}
	return out
}

// Plan merges every group. Groups are independent, so they are merged on
// up to workers goroutines; results keep the order of groups.
func Plan(ctx context.Context, cat *mapdata.Catalog, groups []classify.Group, workers int) ([]MergedMap, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]MergedMap, len(groups))
	errs := make([]error, len(groups))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range groups {
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i], errs[i] = Merge(cat, groups[i])
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
