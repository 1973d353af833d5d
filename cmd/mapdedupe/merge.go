package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"mapdedupe.io/internal/merge"
	"mapdedupe.io/internal/persistence/backup"
	"mapdedupe.io/internal/persistence/indexdb"
	plog "mapdedupe.io/internal/persistence/log"
	"mapdedupe.io/internal/persistence/savefile"
	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/rewrite"
)

// writeSave is replaced in tests.
var writeSave = savefile.Write

func mergeCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("merge")
	rf := bindRunFlags(fs)
	commit := fs.Bool("commit", false, "write the result to the save (default: dry run)")
	pin := fs.String("pin", "", "comma separated map ids to keep as canonical")
	if err := parse(fs, args); err != nil {
		return err
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		return err
	}
	pins, err := parseIDs([]string{*pin})
	if err != nil {
		return err
	}

	s, err := rf.open(ctx, pins)
	if err != nil {
		return err
	}
	plan := s.an.Select(ids)
	write := *commit && len(plan) > 0

	rw := &rewrite.Rewriter{Facade: s.tree, Logger: s.logger}
	if write {
		if s.cfg.BackupBeforeCommit {
			dir, err := backup.Create(s.world.Dir, s.world.Save, backup.Meta{
				RunID:      s.an.RunID,
				World:      s.world.Name,
				Groups:     len(plan),
				Superseded: superseded(plan),
			})
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			s.logger.Printf("backup written to %s", dir)
		}
	}

	rr := s.an.Rewrite(rw, plan, !*commit)
	if write {
		// The rewrite only touched the in-memory tree; an interrupt here
		// leaves the save as it was.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeSave(s.world.Save, savefile.Header{World: s.world.Name, RunID: s.an.RunID}, s.tree); err != nil {
			return fmt.Errorf("write save: %w", err)
		}
		if s.cfg.AuditEnabled {
			writeAudit(s, rr)
		}
	}

	rep := s.an.Report(&rr)
	recordRun(ctx, s, rep)

	if rf.jsonOut {
		printJSON(stdout, rep)
		return nil
	}
	printMerge(stdout, plan, rr)
	printWarnings(stdout, rep)
	return nil
}

func superseded(plan []merge.MergedMap) []int {
	var out []int
	for _, m := range plan {
		out = append(out, m.Superseded...)
	}
	return out
}

func printMerge(w io.Writer, plan []merge.MergedMap, rr rewrite.Report) {
	if len(plan) == 0 {
		fmt.Fprintln(w, "no duplicate groups to merge")
		return
	}
	for _, m := range plan {
		fmt.Fprintf(w, "%s: keep %d, merge %v, conflicts=%d\n", m.Key, m.CanonicalID, m.Superseded, len(m.Conflicts))
	}
	for _, c := range rr.Changes {
		status := "planned"
		switch {
		case c.Err != nil:
			status = "FAILED: " + c.Err.Error()
		case c.Applied:
			status = "done"
		}
		fmt.Fprintf(w, "  map %d -> %d  %s  [%s]\n", c.From, c.To, c.Location, status)
	}
	fmt.Fprintf(w, "references=%d failed=%d pixel_writes=%d deleted=%v kept=%v\n",
		len(rr.Changes)-rr.Failed(), rr.Failed(), len(rr.PixelWrites), rr.Deleted, rr.Kept)
	if rr.DryRun {
		fmt.Fprintln(w, "dry run: nothing written, rerun with -commit to apply")
	}
}

// writeAudit logs the applied changes once the save holds them.
func writeAudit(s *session, rr rewrite.Report) {
	audit := plog.NewAuditLogger(s.world.Dir)
	defer audit.Close()
	if err := rr.WriteAudit(audit, s.an.RunID); err != nil {
		s.logger.Printf("audit: %v", err)
	}
}

// recordRun stores the run in the index and the per-world report log.
// Failures are logged; the run itself already succeeded.
func recordRun(ctx context.Context, s *session, rep protocol.Report) {
	if s.cfg.IndexEnabled {
		idx, err := indexdb.OpenSQLite(filepath.Join(s.cfg.DataDir, indexdb.FileName))
		if err != nil {
			s.logger.Printf("open index: %v", err)
		} else {
			if err := idx.RecordRun(ctx, rep, s.an.Scan.Refs); err != nil {
				s.logger.Printf("index run: %v", err)
			}
			_ = idx.Close()
		}
	}
	if s.cfg.AuditEnabled {
		rl := plog.NewReportLogger(filepath.Join(s.cfg.DataDir, "worlds", s.world.Name))
		if err := rl.WriteReport(rep); err != nil {
			s.logger.Printf("report log: %v", err)
		}
		_ = rl.Close()
	}
}
