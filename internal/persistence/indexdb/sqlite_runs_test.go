package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/tagtree"
)

func sampleReport() protocol.Report {
	return protocol.Report{
		Type:        protocol.TypeReport,
		RunID:       "run-1",
		World:       "w1",
		GeneratedAt: "2026-01-02T03:04:05Z",
		Counts:      protocol.Counts{Total: 3, Unique: 1, Groups: 1, Duplicates: 1, Lost: 1, References: 2},
		Maps: []protocol.MapSummary{
			{ID: 5, Type: "Player", Dimension: "minecraft:overworld", Scale: 1, Center: [2]int{832, 320}, Explored: 9000, References: 1},
			{ID: 6, Type: "Player", Dimension: "minecraft:overworld", Scale: 1, Center: [2]int{832, 320}, Explored: 8192, References: 1},
			{ID: 42, Type: "Player", Dimension: "minecraft:the_nether", Scale: 0, Lost: true},
		},
		Groups: []protocol.GroupSummary{{Dimension: "minecraft:overworld", Scale: 1, Center: [2]int{832, 320}, Members: []int{5, 6}, Canonical: 5, Superseded: []int{6}}},
		Lost:   []int{42},
		Rewrite: &protocol.RewriteSummary{
			Changed: 1,
			Deleted: []int{6},
			Changes: []protocol.ChangeSummary{{Path: "/playerdata/p/Inventory/0/tag/map", From: 6, To: 5, Applied: true}},
		},
	}
}

func TestSQLiteIndex_RecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", FileName)
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	refs := []refscan.Reference{
		{MapID: 5, Location: refscan.Location{Source: refscan.SourceChunk, Dimension: "minecraft:overworld", Holder: "Items", Slot: 0, Path: tagtree.P("dimensions", "minecraft:overworld", "region", "r.0.0", "c.0.0", "block_entities", "0", "Items", "0", "tag", "map")}},
		{MapID: 6, Location: refscan.Location{Source: refscan.SourcePlayer, Owner: "p", Holder: "Inventory", Slot: 0, Path: tagtree.P("playerdata", "p", "Inventory", "0", "tag", "map")}},
	}
	if err := idx.RecordRun(context.Background(), sampleReport(), refs); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if st := idx.Stats(); st.RunsWritten != 1 || st.RunsFailed != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		world          string
		dryRun, groups int
		changed, lost  int
	)
	row := db.QueryRow(`SELECT world,dry_run,groups_count,changed,lost FROM runs WHERE run_id='run-1'`)
	if err := row.Scan(&world, &dryRun, &groups, &changed, &lost); err != nil {
		t.Fatalf("Scan run: %v", err)
	}
	if world != "w1" || dryRun != 0 || groups != 1 || changed != 1 || lost != 1 {
		t.Fatalf("run row mismatch: world=%s dry=%d groups=%d changed=%d lost=%d", world, dryRun, groups, changed, lost)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM maps WHERE run_id='run-1' AND lost=1`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("lost maps=%d err=%v", n, err)
	}
	var refPath string
	if err := db.QueryRow(`SELECT path FROM refs WHERE run_id='run-1' AND map_id=6`).Scan(&refPath); err != nil {
		t.Fatalf("Scan ref: %v", err)
	}
	if refPath != "/playerdata/p/Inventory/0/tag/map" {
		t.Fatalf("ref path=%q", refPath)
	}
	var members string
	if err := db.QueryRow(`SELECT members_json FROM map_groups WHERE run_id='run-1'`).Scan(&members); err != nil || members != "[5,6]" {
		t.Fatalf("members=%q err=%v", members, err)
	}
	var errText sql.NullString
	if err := db.QueryRow(`SELECT error FROM changes WHERE run_id='run-1' AND seq=0`).Scan(&errText); err != nil || errText.Valid {
		t.Fatalf("change error=%v err=%v", errText, err)
	}
}

func TestSQLiteIndex_RecordRunReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	rep := sampleReport()
	for i := 0; i < 2; i++ {
		if err := idx.RecordRun(context.Background(), rep, nil); err != nil {
			t.Fatalf("RecordRun #%d: %v", i, err)
		}
	}
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("runs=%d err=%v", n, err)
	}

	rep.RunID = ""
	if err := idx.RecordRun(context.Background(), rep, nil); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}
