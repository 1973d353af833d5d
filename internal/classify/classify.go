package classify

import (
	"sort"

	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/refscan"
)

// Group is a maximal set of maps sharing one identity key.
type Group struct {
	Key       mapdata.Key
	Members   []int
	Canonical int
}

// Superseded returns every member except the canonical one.
func (g Group) Superseded() []int {
	out := make([]int, 0, len(g.Members)-1)
	for _, id := range g.Members {
		if id != g.Canonical {
			out = append(out, id)
		}
	}
	return out
}

func (g Group) Has(id int) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

type Options struct {
	// SeparateExplorer keys explorer maps apart from player maps.
	SeparateExplorer bool
	// Chooser picks the canonical member; nil means MostExplored.
	Chooser Chooser
}

type Result struct {
	Unique []int
	Groups []Group
	Lost   []int
	// RefCounts holds the number of references per map id.
	RefCounts map[int]int
}

func (r Result) IsLost(id int) bool { return r.RefCounts[id] == 0 }

func (r Result) GroupOf(id int) (Group, bool) {
	for _, g := range r.Groups {
		if g.Has(id) {
			return g, true
		}
	}
	return Group{}, false
}

// Classify buckets the catalog by identity key in one pass and marks maps
// without references as lost. Lost is independent of grouping.
func Classify(cat *mapdata.Catalog, refs []refscan.Reference, opts Options) Result {
	chooser := opts.Chooser
	if chooser == nil {
		chooser = MostExplored
	}

	counts := make(map[int]int, len(refs))
	for _, r := range refs {
		counts[r.MapID]++
	}

	buckets := map[mapdata.Key][]*mapdata.Map{}
	var keys []mapdata.Key
	res := Result{RefCounts: counts}
	for _, m := range cat.Maps() {
		k := m.Key(opts.SeparateExplorer)
		if _, ok := buckets[k]; !ok {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], m)
		if counts[m.ID] == 0 {
			res.Lost = append(res.Lost, m.ID)
		}
	}

	for _, k := range keys {
		members := buckets[k]
		if len(members) == 1 {
			res.Unique = append(res.Unique, members[0].ID)
			continue
		}
		ids := make([]int, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		res.Groups = append(res.Groups, Group{
			Key:       k,
			Members:   ids,
			Canonical: chooser.Choose(members, counts),
		})
	}

	sort.Ints(res.Unique)
	// Catalog order is ascending by id, so the first member is the lowest.
	sort.Slice(res.Groups, func(i, j int) bool { return res.Groups[i].Members[0] < res.Groups[j].Members[0] })
	return res
}
