package classify_test

import (
	"reflect"
	"testing"

	"mapdedupe.io/internal/classify"
	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/tagtree"
)

func mk(id int, dim mapdata.Dimension, scale, x, z, explored int) *mapdata.Map {
	px := make([]byte, mapdata.GridCells)
	for i := 0; i < explored; i++ {
		px[i] = 4
	}
	return &mapdata.Map{ID: id, Dimension: dim, Scale: scale, Center: mapdata.Pos{X: x, Z: z}, Pixels: px}
}

func ref(id int, path ...string) refscan.Reference {
	return refscan.Reference{MapID: id, Location: refscan.Location{Path: tagtree.P(path...)}}
}

func TestClassify_GroupsByIdentityKey(t *testing.T) {
	cat := mapdata.NewCatalog(
		mk(1, mapdata.Overworld, 1, 832, 320, 10),
		mk(2, mapdata.Overworld, 1, 832, 320, 50),
		mk(3, mapdata.Overworld, 1, 832, 320, 50),
		mk(4, mapdata.TheNether, 1, 832, 320, 10), // other dimension
		mk(5, mapdata.Overworld, 2, 832, 320, 10), // other scale
		mk(6, mapdata.Overworld, 1, 832, 448, 10), // other center
		mk(7, mapdata.TheNether, 1, 832, 320, 0),
	)
	res := classify.Classify(cat, nil, classify.Options{})

	if !reflect.DeepEqual(res.Unique, []int{5, 6}) {
		t.Fatalf("unique=%v", res.Unique)
	}
	if len(res.Groups) != 2 {
		t.Fatalf("groups=%+v", res.Groups)
	}
	g := res.Groups[0]
	if !reflect.DeepEqual(g.Members, []int{1, 2, 3}) {
		t.Fatalf("group members=%v", g.Members)
	}
	// 2 and 3 tie on explored cells: lowest id wins.
	if g.Canonical != 2 || !reflect.DeepEqual(g.Superseded(), []int{1, 3}) {
		t.Fatalf("canonical=%d superseded=%v", g.Canonical, g.Superseded())
	}
	if res.Groups[1].Canonical != 4 || !reflect.DeepEqual(res.Groups[1].Members, []int{4, 7}) {
		t.Fatalf("second group=%+v", res.Groups[1])
	}
}

func TestClassify_LostIsOrthogonal(t *testing.T) {
	cat := mapdata.NewCatalog(
		mk(5, mapdata.Overworld, 1, 0, 0, 20),
		mk(6, mapdata.Overworld, 1, 0, 0, 10),
		mk(42, mapdata.Overworld, 0, 64, 64, 1),
	)
	refs := []refscan.Reference{ref(5, "a"), ref(5, "b"), ref(99, "dangling")}

	res := classify.Classify(cat, refs, classify.Options{})
	if !reflect.DeepEqual(res.Lost, []int{6, 42}) {
		t.Fatalf("lost=%v", res.Lost)
	}
	if _, ok := res.GroupOf(6); !ok || !res.IsLost(6) {
		t.Fatalf("6 should be both a duplicate and lost")
	}

	refs = append(refs, ref(42, "playerdata", "p1", "Inventory", "0", "tag", "map"))
	res = classify.Classify(cat, refs, classify.Options{})
	if !reflect.DeepEqual(res.Lost, []int{6}) || res.IsLost(42) {
		t.Fatalf("after adding a reference lost=%v", res.Lost)
	}
}

func TestClassify_SeparateExplorer(t *testing.T) {
	a := mk(1, mapdata.Overworld, 1, 0, 0, 1)
	b := mk(2, mapdata.Overworld, 1, 0, 0, 1)
	b.Explorer = true
	cat := mapdata.NewCatalog(a, b)

	if got := classify.Classify(cat, nil, classify.Options{}); len(got.Groups) != 1 {
		t.Fatalf("default options should group explorer with player maps")
	}
	if got := classify.Classify(cat, nil, classify.Options{SeparateExplorer: true}); len(got.Groups) != 0 || len(got.Unique) != 2 {
		t.Fatalf("separate explorer groups=%v unique=%v", got.Groups, got.Unique)
	}
}

func TestChoosers(t *testing.T) {
	cat := mapdata.NewCatalog(
		mk(1, mapdata.Overworld, 1, 0, 0, 100),
		mk(2, mapdata.Overworld, 1, 0, 0, 10),
		mk(3, mapdata.Overworld, 1, 0, 0, 10),
	)

	onlyTwo := []refscan.Reference{ref(2, "x")}
	res := classify.Classify(cat, onlyTwo, classify.Options{Chooser: classify.PreferReferenced(nil)})
	if res.Groups[0].Canonical != 2 {
		t.Fatalf("PreferReferenced canonical=%d want 2", res.Groups[0].Canonical)
	}

	twoAndThree := []refscan.Reference{ref(2, "x"), ref(3, "y")}
	res = classify.Classify(cat, twoAndThree, classify.Options{Chooser: classify.PreferReferenced(nil)})
	if res.Groups[0].Canonical != 1 {
		t.Fatalf("PreferReferenced fallback canonical=%d want 1", res.Groups[0].Canonical)
	}

	res = classify.Classify(cat, nil, classify.Options{Chooser: classify.Pinned([]int{99, 3}, nil)})
	if res.Groups[0].Canonical != 3 {
		t.Fatalf("Pinned canonical=%d want 3", res.Groups[0].Canonical)
	}
}
