package mapdata

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/tagtree"
)

var ErrCorruptRecord = errors.New("corrupt map record")

// Catalog owns every map record loaded for a run.
type Catalog struct {
	maps map[int]*Map
	ids  []int
}

func NewCatalog(maps ...*Map) *Catalog {
	c := &Catalog{maps: make(map[int]*Map, len(maps))}
	for _, m := range maps {
		c.maps[m.ID] = m
	}
	c.ids = make([]int, 0, len(c.maps))
	for id := range c.maps {
		c.ids = append(c.ids, id)
	}
	sort.Ints(c.ids)
	return c
}

func (c *Catalog) Get(id int) (*Map, bool) {
	m, ok := c.maps[id]
	return m, ok
}

func (c *Catalog) Len() int { return len(c.ids) }

// IDs returns all map ids in ascending order.
func (c *Catalog) IDs() []int { return append([]int(nil), c.ids...) }

// Maps returns all maps ordered by id.
func (c *Catalog) Maps() []*Map {
	out := make([]*Map, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.maps[id]
	}
	return out
}

// Load reads every map record under the map storage index. Records with
// broken geometry are skipped and reported; only an unreadable storage
// index fails the load.
func Load(f tagtree.Facade) (*Catalog, []protocol.Warning, error) {
	kids, err := f.ReadChildren(StoragePath)
	if errors.Is(err, tagtree.ErrNotFound) {
		return NewCatalog(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read map storage: %w", err)
	}

	var (
		maps     []*Map
		warnings []protocol.Warning
	)
	for _, p := range kids {
		id, ok := ParseRecordName(p.Base())
		if !ok {
			continue
		}
		m, err := LoadOne(f, id)
		if err != nil {
			warnings = append(warnings, protocol.MapWarnf(protocol.WarnCorruptRecord, id, p.String(), "%v", err))
			continue
		}
		maps = append(maps, m)
	}
	return NewCatalog(maps...), warnings, nil
}

// LoadOne reads a single map record by id. A missing record yields
// tagtree.ErrNotFound; broken geometry or pixels yield ErrCorruptRecord.
func LoadOne(f tagtree.Facade, id int) (*Map, error) {
	root := RecordPath(id)
	if _, err := f.ReadChildren(root); err != nil {
		if errors.Is(err, tagtree.ErrNotFound) {
			return nil, fmt.Errorf("map %d: %w", id, err)
		}
		return nil, fmt.Errorf("map %d: %v: %w", id, err, ErrCorruptRecord)
	}
	data := root.Child("data")
	corrupt := func(field string, err error) error {
		return fmt.Errorf("map %d: %s: %v: %w", id, field, err, ErrCorruptRecord)
	}

	m := &Map{ID: id}

	if v, err := tagtree.ReadInt(f, root.Child("DataVersion")); err == nil {
		m.DataVersion = int(v)
	}

	dim, err := f.ReadScalar(data.Child("dimension"))
	if err != nil {
		return nil, corrupt("dimension", err)
	}
	if m.Dimension, err = ParseDimension(dim); err != nil {
		return nil, corrupt("dimension", err)
	}

	scale, err := tagtree.ReadInt(f, data.Child("scale"))
	if err != nil {
		return nil, corrupt("scale", err)
	}
	if scale < 0 || scale > MaxScale {
		return nil, corrupt("scale", fmt.Errorf("out of range: %d", scale))
	}
	m.Scale = int(scale)

	x, err := tagtree.ReadInt(f, data.Child("xCenter"))
	if err != nil {
		return nil, corrupt("xCenter", err)
	}
	z, err := tagtree.ReadInt(f, data.Child("zCenter"))
	if err != nil {
		return nil, corrupt("zCenter", err)
	}
	if x < math.MinInt32 || x > math.MaxInt32 || z < math.MinInt32 || z > math.MaxInt32 {
		return nil, corrupt("center", fmt.Errorf("out of range: %d,%d", x, z))
	}
	m.Center = Pos{X: int(x), Z: int(z)}

	m.Explorer = readFlag(f, data.Child("unlimitedTracking"))
	m.Tracking = readFlag(f, data.Child("trackingPosition"))
	m.Locked = readFlag(f, data.Child("locked"))

	colors, err := f.ReadByteArray(data.Child("colors"))
	switch {
	case errors.Is(err, tagtree.ErrNotFound):
		colors = make([]byte, GridCells)
	case err != nil:
		return nil, corrupt("colors", err)
	case len(colors) != GridCells:
		return nil, corrupt("colors", fmt.Errorf("length %d, want %d", len(colors), GridCells))
	}
	m.Pixels = colors

	m.Decorations = append(readDecorations(f, data.Child("banners"), "banner"),
		readDecorations(f, data.Child("frames"), "frame")...)
	return m, nil
}

func readFlag(f tagtree.Facade, p tagtree.Path) bool {
	v, err := tagtree.ReadInt(f, p)
	return err == nil && v != 0
}

// readDecorations is best effort: markers never affect identity or pixels.
func readDecorations(f tagtree.Facade, list tagtree.Path, source string) []Decoration {
	kids, err := f.ReadChildren(list)
	if err != nil {
		return nil
	}
	out := make([]Decoration, 0, len(kids))
	for _, p := range kids {
		d := Decoration{Source: source}
		pos := p.Child("Pos")
		if source == "frame" {
			pos = p.Child("pos")
			if _, err := f.ReadChildren(pos); err != nil {
				pos = p.Child("Pos")
			}
		}
		if v, err := tagtree.ReadInt(f, pos.Child("X")); err == nil {
			d.X = int(v)
		}
		if v, err := tagtree.ReadInt(f, pos.Child("Y")); err == nil {
			d.Y = int(v)
		}
		if v, err := tagtree.ReadInt(f, pos.Child("Z")); err == nil {
			d.Z = int(v)
		}
		if s, err := tagtree.ReadString(f, p.Child("Name")); err == nil {
			d.Name = s
		}
		if s, err := tagtree.ReadString(f, p.Child("Color")); err == nil {
			d.Color = s
		}
		out = append(out, d)
	}
	return out
}
