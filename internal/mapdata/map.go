package mapdata

import (
	"fmt"
	"strconv"

	"mapdedupe.io/internal/tagtree"
)

// Every map record holds a GridSize x GridSize grid of palette indexes,
// stored row-major (x + y*GridSize). Zero means unexplored.
const (
	GridSize  = 128
	GridCells = GridSize * GridSize
	MaxScale  = 4
)

type Dimension string

const (
	Overworld Dimension = "minecraft:overworld"
	TheNether Dimension = "minecraft:the_nether"
	TheEnd    Dimension = "minecraft:the_end"
)

var legacyDimensions = map[int64]Dimension{
	0:  Overworld,
	-1: TheNether,
	1:  TheEnd,
}

// ParseDimension accepts the namespaced string form and the legacy integer
// ids used by older saves.
func ParseDimension(v tagtree.Scalar) (Dimension, error) {
	if s, err := v.AsString(); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty dimension")
		}
		return Dimension(s), nil
	}
	n, err := v.AsInt()
	if err != nil {
		return "", err
	}
	d, ok := legacyDimensions[n]
	if !ok {
		return "", fmt.Errorf("unknown legacy dimension %d", n)
	}
	return d, nil
}

func (d Dimension) Name() string {
	switch d {
	case Overworld:
		return "OVERWORLD"
	case TheNether:
		return "THE_NETHER"
	case TheEnd:
		return "THE_END"
	}
	return string(d)
}

type Pos struct {
	X, Z int
}

func (p Pos) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Z) }

// Decoration is a banner or item frame marker shown on a map. Decorations
// depend on who looked at the map, so they are never merged.
type Decoration struct {
	Source string `json:"source"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Z      int    `json:"z"`
	Name   string `json:"name,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Map is one map data record.
type Map struct {
	ID          int
	DataVersion int
	Dimension   Dimension
	Scale       int
	Center      Pos
	Explorer    bool
	Tracking    bool
	Locked      bool
	Pixels      []byte
	Decorations []Decoration
}

// Map types, as shown by the game's own item names.
const (
	TypePlayer   = "Player"
	TypeExplorer = "Explorer"
	TypeTreasure = "Treasure"
)

func (m *Map) Type() string {
	switch {
	case m.Explorer && m.Scale == 1:
		return TypeTreasure
	case m.Explorer:
		return TypeExplorer
	}
	return TypePlayer
}

// Explored counts non-zero cells.
func (m *Map) Explored() int {
	n := 0
	for _, p := range m.Pixels {
		if p != 0 {
			n++
		}
	}
	return n
}

func (m *Map) Pixel(x, y int) byte { return m.Pixels[x+y*GridSize] }

// Key returns the identity key. The explorer flag only takes part when
// separateExplorer is set.
func (m *Map) Key(separateExplorer bool) Key {
	k := Key{Dimension: m.Dimension, Scale: m.Scale, Center: m.Center}
	if separateExplorer {
		k.Explorer = m.Explorer
	}
	return k
}

func (m *Map) String() string {
	return fmt.Sprintf("<Map %3d: %-8s %-10s %d %s>", m.ID, m.Type(), m.Dimension.Name(), m.Scale, m.Center)
}

// Key is the structural identity of a map: two records with equal keys
// cover the same area and differ only in exploration progress.
type Key struct {
	Dimension Dimension
	Scale     int
	Center    Pos
	Explorer  bool
}

func (k Key) String() string {
	s := fmt.Sprintf("%s scale=%d center=%s", k.Dimension.Name(), k.Scale, k.Center)
	if k.Explorer {
		s += " explorer"
	}
	return s
}

// Less orders keys for stable output.
func (k Key) Less(o Key) bool {
	if k.Dimension != o.Dimension {
		return k.Dimension < o.Dimension
	}
	if k.Scale != o.Scale {
		return k.Scale < o.Scale
	}
	if k.Center.X != o.Center.X {
		return k.Center.X < o.Center.X
	}
	if k.Center.Z != o.Center.Z {
		return k.Center.Z < o.Center.Z
	}
	return !k.Explorer && o.Explorer
}

// Storage locations inside the decoded save.
var StoragePath = tagtree.P("data")

func RecordName(id int) string { return "map_" + strconv.Itoa(id) }

func RecordPath(id int) tagtree.Path { return StoragePath.Child(RecordName(id)) }

func PixelsPath(id int) tagtree.Path { return RecordPath(id).Join("data", "colors") }

// ParseRecordName returns the id of a "map_<id>" record name.
func ParseRecordName(name string) (int, bool) {
	const prefix = "map_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	digits := name[len(prefix):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return id, true
}
