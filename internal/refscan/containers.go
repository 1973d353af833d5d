package refscan

import (
	"strings"

	"mapdedupe.io/internal/tagtree"
)

// Capability says how a container field holds item stacks.
type Capability uint8

const (
	// SingleSlot fields hold exactly one item stack (item frames, jukeboxes).
	SingleSlot Capability = iota + 1
	// MultiSlot fields hold a list or compound of item stacks (chests,
	// player inventories, entity equipment).
	MultiSlot
	// Nested fields live inside an item stack and hold more stacks
	// (shulker boxes, bundles).
	Nested
)

func (c Capability) String() string {
	switch c {
	case SingleSlot:
		return "single"
	case MultiSlot:
		return "multi"
	case Nested:
		return "nested"
	}
	return "unknown"
}

type containerField struct {
	rel []string
	cap Capability
}

// ownerFields lists the container fields of block entities, entities and
// players. Fields absent on an owner are skipped, so one table serves
// every kind of owner.
var ownerFields = []containerField{
	{rel: []string{"Item"}, cap: SingleSlot},
	{rel: []string{"item"}, cap: SingleSlot},
	{rel: []string{"RecordItem"}, cap: SingleSlot},
	{rel: []string{"Book"}, cap: SingleSlot},
	{rel: []string{"Items"}, cap: MultiSlot},
	{rel: []string{"Inventory"}, cap: MultiSlot},
	{rel: []string{"EnderItems"}, cap: MultiSlot},
	{rel: []string{"HandItems"}, cap: MultiSlot},
	{rel: []string{"ArmorItems"}, cap: MultiSlot},
	{rel: []string{"equipment"}, cap: MultiSlot},
}

// stackFields lists containers carried inside an item stack.
var stackFields = []containerField{
	{rel: []string{"tag", "BlockEntityTag", "Items"}, cap: Nested},
	{rel: []string{"tag", "Items"}, cap: Nested},
	{rel: []string{"components", "minecraft:container"}, cap: Nested},
	{rel: []string{"components", "minecraft:bundle_contents"}, cap: Nested},
}

// Container is one item-holding field found on an owner or inside a stack.
type Container struct {
	Cap   Capability
	Field string
	Path  tagtree.Path
}

// containersAt returns the fields of table present under base.
func containersAt(f tagtree.Facade, base tagtree.Path, table []containerField) []Container {
	var out []Container
	for _, cf := range table {
		p := base.Join(cf.rel...)
		if _, err := f.ReadChildren(p); err != nil {
			continue
		}
		out = append(out, Container{Cap: cf.cap, Field: strings.Join(cf.rel, "."), Path: p})
	}
	return out
}

// Stacks returns the item stack paths directly held by c. Component
// containers wrap each stack as {slot, item}; the wrapper is unpacked.
func (c Container) Stacks(f tagtree.Facade) []tagtree.Path {
	if c.Cap == SingleSlot {
		return []tagtree.Path{c.Path}
	}
	kids, err := f.ReadChildren(c.Path)
	if err != nil {
		return nil
	}
	out := make([]tagtree.Path, 0, len(kids))
	for _, k := range kids {
		if _, err := f.ReadScalar(k.Child("id")); err == nil {
			out = append(out, k)
			continue
		}
		if _, err := f.ReadScalar(k.Join("item", "id")); err == nil {
			out = append(out, k.Child("item"))
		}
	}
	return out
}
