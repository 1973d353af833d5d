package rewrite

import (
	"fmt"
	"io"
	"log"
	"sort"

	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/merge"
	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/tagtree"
)

// Change is one reference moved from a superseded map to its canonical map.
type Change struct {
	From     int
	To       int
	Location refscan.Location
	Applied  bool
	Err      error
}

// AuditSink records applied changes, e.g. to a log next to the save.
// Report.WriteAudit feeds it once the changes are persisted.
type AuditSink interface {
	WriteChange(runID string, c Change) error
}

type Report struct {
	DryRun  bool
	Changes []Change
	// PixelWrites lists canonical maps whose grid was (or would be) rewritten.
	PixelWrites []int
	Deleted     []int
	Kept        []int
	Warnings    []protocol.Warning
}

func (r Report) Failed() int {
	n := 0
	for _, c := range r.Changes {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// WriteAudit sends every applied change to sink. Call it only after the
// rewritten save reached disk.
func (r Report) WriteAudit(sink AuditSink, runID string) error {
	for _, c := range r.Changes {
		if !c.Applied {
			continue
		}
		if err := sink.WriteChange(runID, c); err != nil {
			return fmt.Errorf("audit %s: %w", c.Location.Path, err)
		}
	}
	return nil
}

func (r Report) Summary() protocol.RewriteSummary {
	s := protocol.RewriteSummary{
		DryRun:      r.DryRun,
		Changed:     len(r.Changes) - r.Failed(),
		Failed:      r.Failed(),
		PixelWrites: len(r.PixelWrites),
		Deleted:     r.Deleted,
		Kept:        r.Kept,
	}
	for _, c := range r.Changes {
		cs := protocol.ChangeSummary{Path: c.Location.Path.String(), From: c.From, To: c.To, Applied: c.Applied}
		if c.Err != nil {
			cs.Error = c.Err.Error()
		}
		s.Changes = append(s.Changes, cs)
	}
	return s
}

// Rewriter applies a merge plan to the save. It is the only component that
// writes through the facade and does so from a single goroutine.
type Rewriter struct {
	Facade tagtree.Facade
	Logger *log.Logger
}

// Apply moves every reference of a superseded map onto its canonical map,
// writes merged grids and deletes superseded records. With dryRun the
// facade is never written and the report lists what would change.
//
// Writes are not transactional: a failed reference is reported and the
// writes before it stay applied. A superseded record is only deleted when
// all of its references and its group's merged grid were written.
func (rw *Rewriter) Apply(refs []refscan.Reference, plan []merge.MergedMap, dryRun bool) Report {
	logger := rw.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rep := Report{DryRun: dryRun}

	canonicalOf := map[int]int{}
	for _, m := range plan {
		for _, id := range m.Superseded {
			canonicalOf[id] = m.CanonicalID
		}
	}

	// failed maps a superseded id to the reason its record must stay.
	failed := map[int]string{}
	for _, ref := range refs {
		to, ok := canonicalOf[ref.MapID]
		if !ok {
			continue
		}
		c := Change{From: ref.MapID, To: to, Location: ref.Location}
		if !dryRun {
			c.Err = rw.rewriteRef(ref, to)
			c.Applied = c.Err == nil
			if c.Err != nil {
				failed[ref.MapID] = "some references still point at it"
				rep.Warnings = append(rep.Warnings, protocol.MapWarnf(protocol.WarnWriteFailure, ref.MapID,
					ref.Location.Path.String(), "rewrite to %d: %v", to, c.Err))
				logger.Printf("rewrite %s: %v", ref.Location.Path, c.Err)
			}
		}
		rep.Changes = append(rep.Changes, c)
	}

	for _, m := range plan {
		if !m.Changed {
			continue
		}
		if dryRun {
			rep.PixelWrites = append(rep.PixelWrites, m.CanonicalID)
			continue
		}
		p := mapdata.PixelsPath(m.CanonicalID)
		if err := rw.Facade.WriteByteArray(p, m.Pixels); err != nil {
			rep.Warnings = append(rep.Warnings, protocol.MapWarnf(protocol.WarnWriteFailure, m.CanonicalID, p.String(), "write merged pixels: %v", err))
			logger.Printf("write %s: %v", p, err)
			// The superseded grids hold cells the canonical record lacks.
			for _, id := range m.Superseded {
				if _, ok := failed[id]; !ok {
					failed[id] = "merged grid was not written"
				}
			}
			continue
		}
		rep.PixelWrites = append(rep.PixelWrites, m.CanonicalID)
	}

	var superseded []int
	for id := range canonicalOf {
		superseded = append(superseded, id)
	}
	sort.Ints(superseded)
	for _, id := range superseded {
		if why, ok := failed[id]; ok {
			rep.Kept = append(rep.Kept, id)
			rep.Warnings = append(rep.Warnings, protocol.MapWarnf(protocol.WarnRecordKept, id, mapdata.RecordPath(id).String(),
				"kept: %s", why))
			continue
		}
		if dryRun {
			rep.Deleted = append(rep.Deleted, id)
			continue
		}
		p := mapdata.RecordPath(id)
		if err := rw.Facade.DeleteNode(p); err != nil {
			rep.Kept = append(rep.Kept, id)
			rep.Warnings = append(rep.Warnings, protocol.MapWarnf(protocol.WarnWriteFailure, id, p.String(), "delete record: %v", err))
			logger.Printf("delete %s: %v", p, err)
			continue
		}
		rep.Deleted = append(rep.Deleted, id)
	}

	logger.Printf("rewrite done: dry_run=%v changes=%d failed=%d pixel_writes=%d deleted=%d kept=%d",
		dryRun, len(rep.Changes), rep.Failed(), len(rep.PixelWrites), len(rep.Deleted), len(rep.Kept))
	return rep
}

// rewriteRef writes the canonical id into the reference slot, keeping the
// stored integer width. The slot must still hold the id the scan saw.
func (rw *Rewriter) rewriteRef(ref refscan.Reference, to int) error {
	cur, err := rw.Facade.ReadScalar(ref.Location.Path)
	if err != nil {
		return err
	}
	n, err := cur.AsInt()
	if err != nil {
		return err
	}
	if int(n) != ref.MapID {
		return fmt.Errorf("slot holds map %d, scanned %d", n, ref.MapID)
	}
	next, err := cur.WithInt(int64(to))
	if err != nil {
		return err
	}
	return rw.Facade.WriteScalar(ref.Location.Path, next)
}
