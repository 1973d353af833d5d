package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"mapdedupe.io/internal/locator"
	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/tagtree"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func worldsCmd(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("worlds")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := rf.config()
	if err != nil {
		return err
	}
	names, err := locator.List(cfg)
	if err != nil {
		return err
	}
	if rf.jsonOut {
		printJSON(stdout, names)
		return nil
	}
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return nil
}

func listCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := rf.open(ctx, nil)
	if err != nil {
		return err
	}
	rep := s.an.Report(nil)
	if rf.jsonOut {
		printJSON(stdout, rep.Maps)
		return nil
	}
	for _, m := range s.an.Catalog.Maps() {
		fmt.Fprintln(stdout, m)
	}
	fmt.Fprintf(stdout, "%d maps\n", rep.Counts.Total)
	printWarnings(stdout, rep)
	return nil
}

type showOut struct {
	ID          int                  `json:"id"`
	Type        string               `json:"type,omitempty"`
	Dimension   string               `json:"dimension,omitempty"`
	Scale       int                  `json:"scale"`
	Center      [2]int               `json:"center"`
	Explored    int                  `json:"explored"`
	Tracking    bool                 `json:"tracking"`
	Locked      bool                 `json:"locked"`
	Decorations []mapdata.Decoration `json:"decorations,omitempty"`
	Error       string               `json:"error,omitempty"`

	// Set with -refs only.
	References *int  `json:"references,omitempty"`
	Lost       *bool `json:"lost,omitempty"`
	Group      []int `json:"group,omitempty"`
	Canonical  *bool `json:"canonical,omitempty"`
}

func showCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("show")
	rf := bindRunFlags(fs)
	withRefs := fs.Bool("refs", false, "scan the world for references and duplicates of each map")
	if err := parse(fs, args); err != nil {
		return err
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: show needs at least one map id", errUsage)
	}
	var s *session
	if *withRefs {
		s, err = rf.open(ctx, nil)
	} else {
		s, err = rf.load()
	}
	if err != nil {
		return err
	}
	for _, id := range ids {
		m, err := mapdata.LoadOne(s.tree, id)
		if err != nil {
			msg := err.Error()
			switch {
			case errors.Is(err, tagtree.ErrNotFound):
				msg = "not found"
			case errors.Is(err, mapdata.ErrCorruptRecord):
				msg = "corrupt: " + msg
			}
			if rf.jsonOut {
				printJSON(stdout, showOut{ID: id, Error: msg})
			} else {
				fmt.Fprintf(stdout, "map %d: %s\n", id, msg)
			}
			continue
		}
		out := showOut{
			ID: m.ID, Type: m.Type(), Dimension: string(m.Dimension), Scale: m.Scale,
			Center: [2]int{m.Center.X, m.Center.Z}, Explored: m.Explored(),
			Tracking: m.Tracking, Locked: m.Locked, Decorations: m.Decorations,
		}
		if s.an != nil {
			refs, lost := s.an.Classes.RefCounts[m.ID], s.an.Classes.IsLost(m.ID)
			out.References, out.Lost = &refs, &lost
			if g, ok := s.an.Classes.GroupOf(m.ID); ok {
				canonical := g.Canonical == m.ID
				out.Group, out.Canonical = g.Members, &canonical
			}
		}
		if rf.jsonOut {
			printJSON(stdout, out)
			continue
		}
		fmt.Fprintln(stdout, m)
		fmt.Fprintf(stdout, "  explored:    %d/%d\n", out.Explored, mapdata.GridCells)
		fmt.Fprintf(stdout, "  tracking:    %v  locked: %v\n", out.Tracking, out.Locked)
		for _, d := range m.Decorations {
			fmt.Fprintf(stdout, "  %s %q at %d,%d,%d\n", d.Source, d.Name, d.X, d.Y, d.Z)
		}
		if out.References != nil {
			fmt.Fprintf(stdout, "  references:  %d\n", *out.References)
		}
		if out.Group != nil {
			fmt.Fprintf(stdout, "  duplicates:  %v (canonical: %v)\n", out.Group, *out.Canonical)
		}
	}
	return nil
}

func dupesCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("dupes")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := rf.open(ctx, nil)
	if err != nil {
		return err
	}
	rep := s.an.Report(nil)
	if rf.jsonOut {
		printJSON(stdout, rep.Groups)
		return nil
	}
	for _, g := range s.an.Classes.Groups {
		fmt.Fprintf(stdout, "%s\n", g.Key)
		for _, id := range g.Members {
			m, _ := s.an.Catalog.Get(id)
			mark := " "
			if id == g.Canonical {
				mark = "*"
			}
			fmt.Fprintf(stdout, " %s %s explored=%d refs=%d\n", mark, m, m.Explored(), s.an.Classes.RefCounts[id])
		}
	}
	fmt.Fprintf(stdout, "%d groups, %d duplicate maps\n", rep.Counts.Groups, rep.Counts.Duplicates)
	printWarnings(stdout, rep)
	return nil
}

type searchOut struct {
	MapID      int      `json:"map_id"`
	References []string `json:"references"`
	Paths      []string `json:"paths"`
}

func searchCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("search")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		return err
	}
	s, err := rf.open(ctx, nil)
	if err != nil {
		return err
	}
	byMap := s.an.Scan.ByMap()
	if len(ids) == 0 {
		ids = s.an.Catalog.IDs()
	}
	for _, id := range ids {
		refs := byMap[id]
		if rf.jsonOut {
			out := searchOut{MapID: id, References: []string{}, Paths: []string{}}
			for _, r := range refs {
				out.References = append(out.References, r.Location.String())
				out.Paths = append(out.Paths, r.Location.Path.String())
			}
			printJSON(stdout, out)
			continue
		}
		printRefs(stdout, id, refs)
	}
	printWarnings(stdout, s.an.Report(nil))
	return nil
}

func printRefs(w io.Writer, id int, refs []refscan.Reference) {
	fmt.Fprintf(w, "map %d: %d references\n", id, len(refs))
	for _, r := range refs {
		fmt.Fprintf(w, "  %s\n    %s\n", r.Location, r.Location.Path)
	}
}

func lostCmd(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("lost")
	rf := bindRunFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := rf.open(ctx, nil)
	if err != nil {
		return err
	}
	rep := s.an.Report(nil)
	if rf.jsonOut {
		printJSON(stdout, struct {
			Lost                []int `json:"lost"`
			LostMayBeInaccurate bool  `json:"lost_may_be_inaccurate"`
		}{rep.Lost, rep.LostMayBeInaccurate})
		return nil
	}
	for _, id := range rep.Lost {
		m, _ := s.an.Catalog.Get(id)
		fmt.Fprintln(stdout, m)
	}
	fmt.Fprintf(stdout, "%d lost maps\n", len(rep.Lost))
	printWarnings(stdout, rep)
	return nil
}
