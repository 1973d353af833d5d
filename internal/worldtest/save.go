package worldtest

import (
	"fmt"
	"strconv"

	"mapdedupe.io/internal/tagtree"
)

const gridSize = 128

// Save builds decoded saves for tests. It writes raw tag nodes in the same
// layout the game uses so the code under test reads them through the
// facade like any other save:
//   - AddMap writes data/map_<id>
//   - AddChest/AddBlockEntity write block entities into region chunks
//   - AddItemFrame/AddEntity write entity chunks
//   - AddPlayer writes playerdata, SetLevelPlayer the single-player record
type Save struct {
	Tree *tagtree.Tree
}

func NewSave() *Save {
	t := tagtree.New()
	t.Root.Set("level", tagtree.NewCompound().Set("Data", tagtree.NewCompound().
		Set("LevelName", tagtree.ScalarNode(tagtree.String("Test World"))).
		Set("DataVersion", tagtree.ScalarNode(tagtree.Int(3465)))))
	t.Root.Set("data", tagtree.NewCompound())
	t.Root.Set("dimensions", tagtree.NewCompound())
	t.Root.Set("playerdata", tagtree.NewCompound())
	return &Save{Tree: t}
}

type MapSpec struct {
	ID        int
	Dimension string
	// LegacyDimension, when set, stores the dimension as the old integer id.
	LegacyDimension *int
	Scale           int
	X, Z            int
	Explorer        bool
	Pixels          []byte
	Banners         []string
}

func (s *Save) AddMap(spec MapSpec) tagtree.Path {
	data := tagtree.NewCompound()
	if spec.LegacyDimension != nil {
		data.Set("dimension", tagtree.ScalarNode(tagtree.Int(int32(*spec.LegacyDimension))))
	} else {
		dim := spec.Dimension
		if dim == "" {
			dim = "minecraft:overworld"
		}
		data.Set("dimension", tagtree.ScalarNode(tagtree.String(dim)))
	}
	explorer := int8(0)
	if spec.Explorer {
		explorer = 1
	}
	pixels := spec.Pixels
	if pixels == nil {
		pixels = make([]byte, gridSize*gridSize)
	}
	data.Set("scale", tagtree.ScalarNode(tagtree.Byte(int8(spec.Scale)))).
		Set("xCenter", tagtree.ScalarNode(tagtree.Int(int32(spec.X)))).
		Set("zCenter", tagtree.ScalarNode(tagtree.Int(int32(spec.Z)))).
		Set("trackingPosition", tagtree.ScalarNode(tagtree.Byte(1))).
		Set("unlimitedTracking", tagtree.ScalarNode(tagtree.Byte(explorer))).
		Set("locked", tagtree.ScalarNode(tagtree.Byte(0))).
		Set("colors", tagtree.ByteArrayNode(pixels))
	banners := tagtree.NewList(tagtree.KindCompound)
	for i, name := range spec.Banners {
		banners.Append(tagtree.NewCompound().
			Set("Name", tagtree.ScalarNode(tagtree.String(name))).
			Set("Color", tagtree.ScalarNode(tagtree.String("white"))).
			Set("Pos", tagtree.NewCompound().
				Set("X", tagtree.ScalarNode(tagtree.Int(int32(spec.X+i)))).
				Set("Y", tagtree.ScalarNode(tagtree.Int(64))).
				Set("Z", tagtree.ScalarNode(tagtree.Int(int32(spec.Z))))))
	}
	data.Set("banners", banners)

	rec := tagtree.NewCompound().
		Set("DataVersion", tagtree.ScalarNode(tagtree.Int(3465))).
		Set("data", data)
	name := "map_" + strconv.Itoa(spec.ID)
	s.Tree.Root.Compound["data"].Set(name, rec)
	return tagtree.P("data", name)
}

// SetRecord replaces a raw data/ child, e.g. to plant a corrupt record.
func (s *Save) SetRecord(name string, n *tagtree.Node) {
	s.Tree.Root.Compound["data"].Set(name, n)
}

func regionName(cx, cz int) string { return fmt.Sprintf("r.%d.%d", floorDiv(cx, 32), floorDiv(cz, 32)) }

func chunkName(cx, cz int) string { return fmt.Sprintf("c.%d.%d", cx, cz) }

// chunk returns (creating) the chunk compound of the given storage.
func (s *Save) chunk(storage, dim string, cx, cz int) (*tagtree.Node, tagtree.Path) {
	dims := s.Tree.Root.Compound["dimensions"]
	d, ok := dims.Compound[dim]
	if !ok {
		d = tagtree.NewCompound()
		dims.Set(dim, d)
	}
	st, ok := d.Compound[storage]
	if !ok {
		st = tagtree.NewCompound()
		d.Set(storage, st)
	}
	rn := regionName(cx, cz)
	r, ok := st.Compound[rn]
	if !ok {
		r = tagtree.NewCompound()
		st.Set(rn, r)
	}
	cn := chunkName(cx, cz)
	c, ok := r.Compound[cn]
	if !ok {
		c = tagtree.NewCompound().
			Set("DataVersion", tagtree.ScalarNode(tagtree.Int(3465))).
			Set("xPos", tagtree.ScalarNode(tagtree.Int(int32(cx)))).
			Set("zPos", tagtree.ScalarNode(tagtree.Int(int32(cz))))
		r.Set(cn, c)
	}
	return c, tagtree.P("dimensions", dim, storage, rn, cn)
}

// AddBlockEntity appends a block entity to the chunk holding pos and
// returns its path.
func (s *Save) AddBlockEntity(dim string, pos [3]int, be *tagtree.Node) tagtree.Path {
	c, p := s.chunk("region", dim, floorDiv(pos[0], 16), floorDiv(pos[2], 16))
	list, ok := c.Compound["block_entities"]
	if !ok {
		list = tagtree.NewList(tagtree.KindCompound)
		c.Set("block_entities", list)
	}
	be.Set("x", tagtree.ScalarNode(tagtree.Int(int32(pos[0])))).
		Set("y", tagtree.ScalarNode(tagtree.Int(int32(pos[1])))).
		Set("z", tagtree.ScalarNode(tagtree.Int(int32(pos[2]))))
	list.Append(be)
	return p.Join("block_entities", strconv.Itoa(len(list.List)-1))
}

func (s *Save) AddChest(dim string, pos [3]int, items ...*tagtree.Node) tagtree.Path {
	be := tagtree.NewCompound().
		Set("id", tagtree.ScalarNode(tagtree.String("minecraft:chest"))).
		Set("Items", tagtree.NewList(tagtree.KindCompound, items...))
	return s.AddBlockEntity(dim, pos, be)
}

// AddEntity appends an entity to the entity chunk holding pos.
func (s *Save) AddEntity(dim string, pos [3]int, e *tagtree.Node) tagtree.Path {
	c, p := s.chunk("entities", dim, floorDiv(pos[0], 16), floorDiv(pos[2], 16))
	list, ok := c.Compound["Entities"]
	if !ok {
		list = tagtree.NewList(tagtree.KindCompound)
		c.Set("Entities", list)
	}
	e.Set("Pos", tagtree.NewList(tagtree.KindDouble,
		tagtree.ScalarNode(tagtree.Double(float64(pos[0])+0.5)),
		tagtree.ScalarNode(tagtree.Double(float64(pos[1]))),
		tagtree.ScalarNode(tagtree.Double(float64(pos[2])+0.5))))
	list.Append(e)
	return p.Join("Entities", strconv.Itoa(len(list.List)-1))
}

func (s *Save) AddItemFrame(dim string, pos [3]int, item *tagtree.Node) tagtree.Path {
	e := tagtree.NewCompound().Set("id", tagtree.ScalarNode(tagtree.String("minecraft:item_frame")))
	if item != nil {
		e.Set("Item", item)
	}
	return s.AddEntity(dim, pos, e)
}

// AddCorruptChunk plants a chunk that cannot be decoded.
func (s *Save) AddCorruptChunk(storage, dim string, cx, cz int) tagtree.Path {
	s.chunk(storage, dim, cx, cz)
	rn, cn := regionName(cx, cz), chunkName(cx, cz)
	region := s.Tree.Root.Compound["dimensions"].Compound[dim].Compound[storage].Compound[rn]
	region.Set(cn, tagtree.ByteArrayNode([]byte{0xde, 0xad, 0xbe, 0xef}))
	return tagtree.P("dimensions", dim, storage, rn, cn)
}

func (s *Save) player(uuid string) *tagtree.Node {
	pd := s.Tree.Root.Compound["playerdata"]
	p, ok := pd.Compound[uuid]
	if !ok {
		p = tagtree.NewCompound().
			Set("Inventory", tagtree.NewList(tagtree.KindCompound)).
			Set("EnderItems", tagtree.NewList(tagtree.KindCompound))
		pd.Set(uuid, p)
	}
	return p
}

// AddPlayer adds items to a player's main inventory and returns the path
// of the first added stack.
func (s *Save) AddPlayer(uuid string, items ...*tagtree.Node) tagtree.Path {
	inv := s.player(uuid).Compound["Inventory"]
	first := len(inv.List)
	for _, it := range items {
		inv.Append(it)
	}
	return tagtree.P("playerdata", uuid, "Inventory", strconv.Itoa(first))
}

func (s *Save) AddEnderItems(uuid string, items ...*tagtree.Node) tagtree.Path {
	inv := s.player(uuid).Compound["EnderItems"]
	first := len(inv.List)
	for _, it := range items {
		inv.Append(it)
	}
	return tagtree.P("playerdata", uuid, "EnderItems", strconv.Itoa(first))
}

// SetLevelPlayer sets the single-player record stored in level.dat.
func (s *Save) SetLevelPlayer(items ...*tagtree.Node) tagtree.Path {
	p := tagtree.NewCompound().Set("Inventory", tagtree.NewList(tagtree.KindCompound, items...))
	s.Tree.Root.Compound["level"].Compound["Data"].Set("Player", p)
	return tagtree.P("level", "Data", "Player", "Inventory", "0")
}

// FilledMap is a map item stack using the item tag format.
func FilledMap(slot, id int) *tagtree.Node {
	return tagtree.NewCompound().
		Set("Slot", tagtree.ScalarNode(tagtree.Byte(int8(slot)))).
		Set("id", tagtree.ScalarNode(tagtree.String("minecraft:filled_map"))).
		Set("Count", tagtree.ScalarNode(tagtree.Byte(1))).
		Set("tag", tagtree.NewCompound().Set("map", tagtree.ScalarNode(tagtree.Int(int32(id)))))
}

// FilledMapComponents is a map item stack using the data component format.
func FilledMapComponents(slot, id int) *tagtree.Node {
	return tagtree.NewCompound().
		Set("Slot", tagtree.ScalarNode(tagtree.Byte(int8(slot)))).
		Set("id", tagtree.ScalarNode(tagtree.String("minecraft:filled_map"))).
		Set("count", tagtree.ScalarNode(tagtree.Int(1))).
		Set("components", tagtree.NewCompound().
			Set("minecraft:map_id", tagtree.ScalarNode(tagtree.Int(int32(id)))))
}

func Item(slot int, id string) *tagtree.Node {
	return tagtree.NewCompound().
		Set("Slot", tagtree.ScalarNode(tagtree.Byte(int8(slot)))).
		Set("id", tagtree.ScalarNode(tagtree.String(id))).
		Set("Count", tagtree.ScalarNode(tagtree.Byte(1)))
}

// ShulkerBox is a shulker box item holding items, item tag format.
func ShulkerBox(slot int, items ...*tagtree.Node) *tagtree.Node {
	box := Item(slot, "minecraft:shulker_box")
	box.Set("tag", tagtree.NewCompound().Set("BlockEntityTag", tagtree.NewCompound().
		Set("Items", tagtree.NewList(tagtree.KindCompound, items...))))
	return box
}

// ShulkerBoxComponents is a shulker box item holding items as a
// minecraft:container component.
func ShulkerBoxComponents(slot int, items ...*tagtree.Node) *tagtree.Node {
	entries := tagtree.NewList(tagtree.KindCompound)
	for i, it := range items {
		delete(it.Compound, "Slot")
		entries.Append(tagtree.NewCompound().
			Set("slot", tagtree.ScalarNode(tagtree.Int(int32(i)))).
			Set("item", it))
	}
	box := Item(slot, "minecraft:shulker_box")
	box.Set("components", tagtree.NewCompound().Set("minecraft:container", entries))
	return box
}

func Bundle(slot int, items ...*tagtree.Node) *tagtree.Node {
	b := Item(slot, "minecraft:bundle")
	b.Set("components", tagtree.NewCompound().
		Set("minecraft:bundle_contents", tagtree.NewList(tagtree.KindCompound, items...)))
	return b
}

// Pixels builds a grid from fill(x, y).
func Pixels(fill func(x, y int) byte) []byte {
	out := make([]byte, gridSize*gridSize)
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			out[x+y*gridSize] = fill(x, y)
		}
	}
	return out
}

// Half returns a grid explored with color in the top (y < 64) or bottom
// half, extra extends the explored band by that many rows.
func Half(top bool, color byte, extra int) []byte {
	return Pixels(func(x, y int) byte {
		if top && y < gridSize/2+extra {
			return color
		}
		if !top && y >= gridSize/2-extra {
			return color
		}
		return 0
	})
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}
