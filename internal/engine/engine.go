package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"mapdedupe.io/internal/classify"
	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/merge"
	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/rewrite"
	"mapdedupe.io/internal/tagtree"
)

type Options struct {
	// RunID names the run; empty means a fresh random id.
	RunID               string
	Workers             int
	SeparateExplorer    bool
	PreferReferenced    bool
	Pin                 []int
	MaxConflictWarnings int

	Logger     *log.Logger
	OnProgress refscan.ProgressFunc
}

func (o Options) chooser() classify.Chooser {
	var c classify.Chooser = classify.MostExplored
	if o.PreferReferenced {
		c = classify.PreferReferenced(c)
	}
	if len(o.Pin) > 0 {
		c = classify.Pinned(o.Pin, c)
	}
	return c
}

// Analysis is one read-only pass over a save: catalog, references,
// classification and the merge plan.
type Analysis struct {
	RunID   string
	World   string
	Catalog *mapdata.Catalog
	Scan    *refscan.Result
	Classes classify.Result
	Plan    []merge.MergedMap

	Warnings []protocol.Warning

	opts Options
}

// Analyze never writes to f. A cancelled ctx returns ctx.Err() and no
// partial analysis.
func Analyze(ctx context.Context, world string, f tagtree.Facade, opts Options) (*Analysis, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	a := &Analysis{RunID: runID, World: world, opts: opts}

	cat, warns, err := mapdata.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load maps: %w", err)
	}
	a.Catalog = cat
	a.Warnings = append(a.Warnings, warns...)
	logger.Printf("run %s: %d maps, %d corrupt records", a.RunID, cat.Len(), len(warns))

	sc := &refscan.Scanner{Facade: f, Workers: opts.Workers, Logger: logger, OnProgress: opts.OnProgress}
	res, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}
	a.Scan = res
	a.Warnings = append(a.Warnings, res.Warnings...)

	a.Classes = classify.Classify(cat, res.Refs, classify.Options{
		SeparateExplorer: opts.SeparateExplorer,
		Chooser:          opts.chooser(),
	})

	plan, err := merge.Plan(ctx, cat, a.Classes.Groups, opts.Workers)
	if err != nil {
		return nil, err
	}
	a.Plan = plan
	for _, m := range plan {
		a.Warnings = append(a.Warnings, m.Warnings(opts.MaxConflictWarnings)...)
	}
	logger.Printf("run %s: unique=%d groups=%d lost=%d references=%d",
		a.RunID, len(a.Classes.Unique), len(a.Classes.Groups), len(a.Classes.Lost), len(res.Refs))
	return a, nil
}

// Select keeps the merge plan entries whose group contains one of ids.
// No ids selects everything.
func (a *Analysis) Select(ids []int) []merge.MergedMap {
	if len(ids) == 0 {
		return a.Plan
	}
	want := map[int]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []merge.MergedMap
	for _, m := range a.Plan {
		if want[m.CanonicalID] {
			out = append(out, m)
			continue
		}
		for _, id := range m.Superseded {
			if want[id] {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Rewrite applies plan through rw to the analyzed references.
func (a *Analysis) Rewrite(rw *rewrite.Rewriter, plan []merge.MergedMap, dryRun bool) rewrite.Report {
	return rw.Apply(a.Scan.Refs, plan, dryRun)
}

// Report builds the end-of-run summary. rep may be nil when no rewrite ran.
func (a *Analysis) Report(rep *rewrite.Report) protocol.Report {
	out := protocol.Report{
		Type:            protocol.TypeReport,
		ProtocolVersion: protocol.Version,
		RunID:           a.RunID,
		World:           a.World,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		Groups:          []protocol.GroupSummary{},
		Lost:            append([]int{}, a.Classes.Lost...),

		LostMayBeInaccurate: a.Scan.Unreadable > 0,
	}

	duplicates := 0
	for _, g := range a.Classes.Groups {
		duplicates += len(g.Members) - 1
	}
	out.Counts = protocol.Counts{
		Total:      a.Catalog.Len(),
		Unique:     len(a.Classes.Unique),
		Groups:     len(a.Classes.Groups),
		Duplicates: duplicates,
		Lost:       len(a.Classes.Lost),
		References: len(a.Scan.Refs),
	}

	for _, m := range a.Catalog.Maps() {
		out.Maps = append(out.Maps, protocol.MapSummary{
			ID:         m.ID,
			Type:       m.Type(),
			Dimension:  string(m.Dimension),
			Scale:      m.Scale,
			Center:     [2]int{m.Center.X, m.Center.Z},
			Explored:   m.Explored(),
			References: a.Classes.RefCounts[m.ID],
			Lost:       a.Classes.IsLost(m.ID),
		})
	}

	conflicts := map[int]int{}
	total := 0
	for _, m := range a.Plan {
		conflicts[m.CanonicalID] = len(m.Conflicts)
		total += len(m.Conflicts)
	}
	for _, g := range a.Classes.Groups {
		out.Groups = append(out.Groups, protocol.GroupSummary{
			Dimension:  string(g.Key.Dimension),
			Scale:      g.Key.Scale,
			Center:     [2]int{g.Key.Center.X, g.Key.Center.Z},
			Members:    g.Members,
			Canonical:  g.Canonical,
			Superseded: g.Superseded(),
			Conflicts:  conflicts[g.Canonical],
		})
	}

	warns := a.Warnings
	if rep != nil {
		s := rep.Summary()
		out.Rewrite = &s
		warns = append(append([]protocol.Warning(nil), warns...), rep.Warnings...)
	}
	out.Warnings.Add(warns...)
	// Details are capped per group; the count is not.
	out.Warnings.PixelConflicts = total
	out.Details = warns
	return out
}
