package refscan

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/tagtree"
)

// Save layout roots.
var (
	DimensionsPath = tagtree.P("dimensions")
	PlayerDataPath = tagtree.P("playerdata")
	LevelPlayer    = tagtree.P("level", "Data", "Player")
)

// Per-dimension chunk storages: block entities live in region, entities
// live in their own storage since 1.17 (older chunks keep them inline).
var storages = []string{"region", "entities"}

const (
	filledMapID       = "minecraft:filled_map"
	legacyFilledMapID = 358
	// maxDepth bounds nesting of containers inside stacks and of passengers.
	maxDepth = 16
)

// ProgressFunc is called after every finished job.
type ProgressFunc func(done, total, refs int)

// Scanner walks the whole world graph for map references. The facade is
// only read.
type Scanner struct {
	Facade     tagtree.Facade
	Workers    int
	Logger     *log.Logger
	OnProgress ProgressFunc
}

// Result of one full scan. Refs are sorted by locator path so that two
// scans of the same save produce the same sequence.
type Result struct {
	Refs     []Reference
	Warnings []protocol.Warning
	Chunks   int
	Players  int
	// Unreadable counts chunks and regions that were skipped.
	Unreadable int
}

func (r *Result) ByMap() map[int][]Reference { return GroupByMap(r.Refs) }

// Counts returns the number of references per map id.
func (r *Result) Counts() map[int]int {
	out := map[int]int{}
	for _, ref := range r.Refs {
		out[ref.MapID]++
	}
	return out
}

type jobKind uint8

const (
	jobChunk jobKind = iota + 1
	jobPlayer
)

type job struct {
	kind      jobKind
	source    Source
	dimension string
	region    string
	chunk     string
	owner     string
	path      tagtree.Path
}

type batch struct {
	refs     []Reference
	warnings []protocol.Warning
	chunk    bool
	player   bool
	bad      bool
}

// Scan performs one full pass. Cancelling ctx aborts the scan and discards
// partial results.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs, warns := s.plan()
	res := &Result{Warnings: warns, Unreadable: len(warns)}
	logger.Printf("scanning %d chunks/players with %d workers", len(jobs), workers)

	in := make(chan job)
	out := make(chan batch, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range in {
				out <- s.run(j)
			}
		}()
	}
	go func() {
		defer close(in)
		for _, j := range jobs {
			select {
			case in <- j:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	done := 0
	for b := range out {
		done++
		res.Refs = append(res.Refs, b.refs...)
		res.Warnings = append(res.Warnings, b.warnings...)
		if b.chunk {
			res.Chunks++
		}
		if b.player {
			res.Players++
		}
		if b.bad {
			res.Unreadable++
		}
		if s.OnProgress != nil {
			s.OnProgress(done, len(jobs), len(res.Refs))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	SortReferences(res.Refs)
	sort.SliceStable(res.Warnings, func(i, j int) bool { return res.Warnings[i].Path < res.Warnings[j].Path })
	logger.Printf("scan done: chunks=%d players=%d references=%d unreadable=%d",
		res.Chunks, res.Players, len(res.Refs), res.Unreadable)
	return res, nil
}

// plan enumerates jobs in a fixed order. Regions that cannot be listed are
// reported here.
func (s *Scanner) plan() ([]job, []protocol.Warning) {
	f := s.Facade
	var (
		jobs  []job
		warns []protocol.Warning
	)

	if _, err := f.ReadChildren(LevelPlayer); err == nil {
		jobs = append(jobs, job{kind: jobPlayer, source: SourceLevel, owner: "level", path: LevelPlayer})
	}
	if players, err := f.ReadChildren(PlayerDataPath); err == nil {
		for _, p := range players {
			jobs = append(jobs, job{kind: jobPlayer, source: SourcePlayer, owner: p.Base(), path: p})
		}
	}

	dims, err := f.ReadChildren(DimensionsPath)
	if err != nil {
		return jobs, warns
	}
	for _, dim := range dims {
		for _, storage := range storages {
			regions, err := f.ReadChildren(dim.Child(storage))
			if err != nil {
				if !errors.Is(err, tagtree.ErrNotFound) {
					warns = append(warns, protocol.Warnf(protocol.WarnUnreadableChunk, dim.Child(storage).String(), "storage unreadable: %v", err))
				}
				continue
			}
			source := SourceChunk
			if storage == "entities" {
				source = SourceEntity
			}
			for _, region := range regions {
				chunks, err := f.ReadChildren(region)
				if err != nil {
					warns = append(warns, protocol.Warnf(protocol.WarnUnreadableChunk, region.String(), "region unreadable: %v", err))
					continue
				}
				for _, c := range chunks {
					jobs = append(jobs, job{
						kind:      jobChunk,
						source:    source,
						dimension: dim.Base(),
						region:    region.Base(),
						chunk:     c.Base(),
						path:      c,
					})
				}
			}
		}
	}
	return jobs, warns
}

func (s *Scanner) run(j job) batch {
	v := visitor{f: s.Facade, job: j}
	switch j.kind {
	case jobPlayer:
		v.owner(j.path, j.owner, 0)
		return batch{refs: v.refs, player: true}
	}

	base := j.path
	if _, err := s.Facade.ReadChildren(base); err != nil {
		return batch{
			bad:      true,
			warnings: []protocol.Warning{protocol.Warnf(protocol.WarnUnreadableChunk, base.String(), "chunk unreadable: %v", err)},
		}
	}
	// Chunks written before 1.18 wrap everything in a Level compound.
	if _, err := s.Facade.ReadChildren(base.Child("Level")); err == nil {
		base = base.Child("Level")
	}
	for _, list := range []string{"block_entities", "TileEntities", "Entities"} {
		owners, err := s.Facade.ReadChildren(base.Child(list))
		if err != nil {
			continue
		}
		for _, o := range owners {
			v.owner(o, "", 0)
		}
	}
	return batch{refs: v.refs, chunk: true}
}

// visitor collects references for one job. Every owner is visited through
// the same container table regardless of its kind.
type visitor struct {
	f    tagtree.Facade
	job  job
	refs []Reference
}

func (v *visitor) owner(p tagtree.Path, label string, depth int) {
	if depth > maxDepth {
		return
	}
	if label == "" {
		label, _ = tagtree.ReadString(v.f, p.Child("id"))
	}
	pos := ownerPos(v.f, p)
	for _, c := range containersAt(v.f, p, ownerFields) {
		v.container(c, label, pos, c.Field, depth)
	}
	if riders, err := v.f.ReadChildren(p.Child("Passengers")); err == nil {
		for _, r := range riders {
			v.owner(r, "", depth+1)
		}
	}
}

func (v *visitor) container(c Container, owner string, pos *[3]int, holder string, depth int) {
	if depth > maxDepth {
		return
	}
	for _, stack := range c.Stacks(v.f) {
		if id, ok := filledMapRef(v.f, stack); ok {
			v.refs = append(v.refs, Reference{MapID: id.mapID, Location: Location{
				Source:    v.job.source,
				Dimension: v.job.dimension,
				Region:    v.job.region,
				Chunk:     v.job.chunk,
				Owner:     owner,
				Pos:       pos,
				Holder:    holder,
				Slot:      stackSlot(v.f, stack, c),
				Path:      id.path,
			}})
		}
		for _, nested := range containersAt(v.f, stack, stackFields) {
			v.container(nested, owner, pos, holder+">"+nested.Field, depth+1)
		}
	}
}

type mapRef struct {
	mapID int
	path  tagtree.Path
}

// filledMapRef returns the map-id slot of a filled map stack.
func filledMapRef(f tagtree.Facade, stack tagtree.Path) (mapRef, bool) {
	idv, err := f.ReadScalar(stack.Child("id"))
	if err != nil {
		return mapRef{}, false
	}
	legacy := false
	if s, err := idv.AsString(); err == nil {
		if s != filledMapID && s != strings.TrimPrefix(filledMapID, "minecraft:") {
			return mapRef{}, false
		}
	} else if n, err := idv.AsInt(); err == nil && n == legacyFilledMapID {
		legacy = true
	} else {
		return mapRef{}, false
	}

	candidates := []tagtree.Path{
		stack.Join("components", "minecraft:map_id"),
		stack.Join("tag", "map"),
	}
	if legacy {
		candidates = append(candidates, stack.Child("Damage"))
	}
	for _, p := range candidates {
		n, err := tagtree.ReadInt(f, p)
		if err != nil || n < 0 || n > math.MaxInt32 {
			continue
		}
		return mapRef{mapID: int(n), path: p}, true
	}
	return mapRef{}, false
}

func stackSlot(f tagtree.Facade, stack tagtree.Path, c Container) int {
	for _, name := range []string{"Slot", "slot"} {
		if n, err := tagtree.ReadInt(f, stack.Child(name)); err == nil {
			return int(n)
		}
	}
	// Component container entries keep the slot on the wrapper.
	if stack.Base() == "item" {
		if n, err := tagtree.ReadInt(f, stack.Parent().Child("slot")); err == nil {
			return int(n)
		}
	}
	if c.Cap == MultiSlot || c.Cap == Nested {
		if i, err := strconv.Atoi(stack.Base()); err == nil {
			return i
		}
	}
	return -1
}

// ownerPos reads block entity x/y/z or an entity Pos list.
func ownerPos(f tagtree.Facade, p tagtree.Path) *[3]int {
	var out [3]int
	ok := true
	for i, name := range []string{"x", "y", "z"} {
		n, err := tagtree.ReadInt(f, p.Child(name))
		if err != nil {
			ok = false
			break
		}
		out[i] = int(n)
	}
	if ok {
		return &out
	}
	for i := 0; i < 3; i++ {
		v, err := f.ReadScalar(p.Join("Pos", strconv.Itoa(i)))
		if err != nil {
			return nil
		}
		fv, err := v.AsFloat()
		if err != nil {
			return nil
		}
		out[i] = int(math.Floor(fv))
	}
	return &out
}
