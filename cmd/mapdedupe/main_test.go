package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mapdedupe.io/internal/mapdata"
	"mapdedupe.io/internal/persistence/backup"
	"mapdedupe.io/internal/persistence/savefile"
	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/tagtree"
	"mapdedupe.io/internal/worldtest"
)

type fixture struct {
	cfgPath  string
	worldDir string
	save     string
	dataDir  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	s := worldtest.NewSave()
	s.AddMap(worldtest.MapSpec{ID: 5, Scale: 1, X: 832, Z: 320, Pixels: worldtest.Half(true, 4, 10)})
	s.AddMap(worldtest.MapSpec{ID: 6, Scale: 1, X: 832, Z: 320, Pixels: worldtest.Half(false, 9, 0)})
	s.AddMap(worldtest.MapSpec{ID: 42, Scale: 3, X: 0, Z: 0})
	s.AddPlayer("11111111-0000-0000-0000-000000000000", worldtest.FilledMap(0, 5))
	s.AddChest("minecraft:overworld", [3]int{10, 64, -3}, worldtest.FilledMap(2, 6))

	f := fixture{
		worldDir: filepath.Join(root, "worlds", "w1"),
		dataDir:  filepath.Join(root, "data"),
		cfgPath:  filepath.Join(root, "mapdedupe.yaml"),
	}
	f.save = filepath.Join(f.worldDir, savefile.FileName)
	if err := savefile.Write(f.save, savefile.Header{World: "w1"}, s.Tree); err != nil {
		t.Fatalf("write save: %v", err)
	}
	cfg := fmt.Sprintf("worlds_dir: %s\ndata_dir: %s\ndefault_world: w1\nworkers: 2\n", filepath.Dir(f.worldDir), f.dataDir)
	if err := os.WriteFile(f.cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return f
}

func (f fixture) run(t *testing.T, cmd command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cmd(context.Background(), append([]string{"-config", f.cfgPath, "-env", ""}, args...), &out)
	return out.String(), err
}

func TestParseIDs(t *testing.T) {
	got, err := parseIDs([]string{"5,6", " 7 ", ""})
	if err != nil || !reflect.DeepEqual(got, []int{5, 6, 7}) {
		t.Fatalf("parseIDs=%v err=%v", got, err)
	}
	if _, err := parseIDs([]string{"x"}); !errors.Is(err, errUsage) {
		t.Fatalf("err=%v want errUsage", err)
	}
	if _, err := parseIDs([]string{"-3"}); !errors.Is(err, errUsage) {
		t.Fatalf("negative id accepted")
	}
}

func TestReadOnlyCommands(t *testing.T) {
	f := newFixture(t)
	before, _ := os.ReadFile(f.save)

	out, err := f.run(t, listCmd)
	if err != nil || !strings.Contains(out, "3 maps") || !strings.Contains(out, "<Map   5:") {
		t.Fatalf("list: err=%v out=%s", err, out)
	}
	out, err = f.run(t, dupesCmd)
	if err != nil || !strings.Contains(out, "* <Map   5:") || !strings.Contains(out, "1 groups") {
		t.Fatalf("dupes: err=%v out=%s", err, out)
	}
	out, err = f.run(t, lostCmd, "-json")
	if err != nil {
		t.Fatalf("lost: %v", err)
	}
	var lost struct{ Lost []int }
	if err := json.Unmarshal([]byte(out), &lost); err != nil || !reflect.DeepEqual(lost.Lost, []int{42}) {
		t.Fatalf("lost=%s err=%v", out, err)
	}
	out, err = f.run(t, searchCmd, "6")
	if err != nil || !strings.Contains(out, "map 6: 1 references") || !strings.Contains(out, "/block_entities/0/Items/0/tag/map") {
		t.Fatalf("search: err=%v out=%s", err, out)
	}
	out, err = f.run(t, showCmd, "-refs", "5", "99")
	if err != nil || !strings.Contains(out, "canonical: true") || !strings.Contains(out, "map 99: not found") {
		t.Fatalf("show: err=%v out=%s", err, out)
	}
	if _, err := f.run(t, showCmd); !errors.Is(err, errUsage) {
		t.Fatalf("show without ids err=%v", err)
	}
	out, err = f.run(t, worldsCmd)
	if err != nil || strings.TrimSpace(out) != "w1" {
		t.Fatalf("worlds: err=%v out=%q", err, out)
	}

	after, _ := os.ReadFile(f.save)
	if !bytes.Equal(before, after) {
		t.Fatalf("read-only commands changed the save")
	}
}

func TestShow_TellsCorruptFromMissing(t *testing.T) {
	f := newFixture(t)
	h, tree, err := savefile.Read(f.save)
	if err != nil {
		t.Fatalf("read save: %v", err)
	}
	s := &worldtest.Save{Tree: tree}
	s.SetRecord(mapdata.RecordName(7), tagtree.NewCompound().Set("data", tagtree.NewCompound()))
	if err := savefile.Write(f.save, h, tree); err != nil {
		t.Fatalf("write save: %v", err)
	}

	out, err := f.run(t, showCmd, "5", "7", "99")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "<Map   5:") || strings.Contains(out, "references:") {
		t.Fatalf("show without -refs should print the record only:\n%s", out)
	}
	if !strings.Contains(out, "map 7: corrupt:") || !strings.Contains(out, "map 99: not found") {
		t.Fatalf("out=%s", out)
	}

	out, err = f.run(t, showCmd, "-json", "7")
	if err != nil {
		t.Fatalf("show -json: %v", err)
	}
	var got struct {
		ID    int    `json:"id"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil || got.ID != 7 || !strings.HasPrefix(got.Error, "corrupt:") {
		t.Fatalf("json=%s err=%v", out, err)
	}
}

func TestMerge_DryRunLeavesSave(t *testing.T) {
	f := newFixture(t)
	before, _ := os.ReadFile(f.save)

	out, err := f.run(t, mergeCmd)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !strings.Contains(out, "keep 5, merge [6]") || !strings.Contains(out, "dry run") {
		t.Fatalf("out=%s", out)
	}
	after, _ := os.ReadFile(f.save)
	if !bytes.Equal(before, after) {
		t.Fatalf("dry run changed the save")
	}
	if dirs, _ := backup.List(f.worldDir); len(dirs) != 0 {
		t.Fatalf("dry run made a backup: %v", dirs)
	}
}

func TestMerge_CommitWritesSaveBackupAndIndex(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, mergeCmd, "-json", "-commit")
	if err != nil {
		t.Fatalf("merge -commit: %v", err)
	}
	var rep protocol.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}
	if rep.Rewrite == nil || rep.Rewrite.DryRun || rep.Rewrite.Changed != 1 || !reflect.DeepEqual(rep.Rewrite.Deleted, []int{6}) {
		t.Fatalf("rewrite=%+v", rep.Rewrite)
	}

	h, tree, err := savefile.Read(f.save)
	if err != nil {
		t.Fatalf("read save: %v", err)
	}
	if h.RunID != rep.RunID {
		t.Fatalf("header run=%q want %q", h.RunID, rep.RunID)
	}
	if _, err := tree.Lookup(mapdata.RecordPath(6)); !errors.Is(err, tagtree.ErrNotFound) {
		t.Fatalf("record 6 still present: %v", err)
	}

	dirs, err := backup.List(f.worldDir)
	if err != nil || len(dirs) != 1 {
		t.Fatalf("backups=%v err=%v", dirs, err)
	}
	if _, tree, err := savefile.Read(filepath.Join(dirs[0], savefile.FileName)); err != nil {
		t.Fatalf("read backup: %v", err)
	} else if _, err := tree.Lookup(mapdata.RecordPath(6)); err != nil {
		t.Fatalf("backup should hold the original save: %v", err)
	}
	out, err = f.run(t, backupsCmd, "-json")
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	var listed struct {
		Meta backup.Meta     `json:"meta"`
		Save savefile.Header `json:"save"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("backups json: %v\n%s", err, out)
	}
	if listed.Meta.RunID != rep.RunID || !reflect.DeepEqual(listed.Meta.Superseded, []int{6}) || listed.Save.World != "w1" {
		t.Fatalf("backup listing=%+v", listed)
	}

	if audits, _ := filepath.Glob(filepath.Join(f.worldDir, "audit", "rewrite-*.jsonl.zst")); len(audits) == 0 {
		t.Fatalf("no audit log written")
	}

	out, err = f.run(t, dbCmd, "runs")
	if err != nil || !strings.Contains(out, rep.RunID) {
		t.Fatalf("db runs: err=%v out=%s", err, out)
	}
	out, err = f.run(t, dbCmd, "-map", "6", "changes")
	if err != nil || !strings.Contains(out, `"from":6`) || !strings.Contains(out, `"applied":1`) {
		t.Fatalf("db changes: err=%v out=%s", err, out)
	}
	if _, err := f.run(t, dbCmd, "nope"); !errors.Is(err, errUsage) {
		t.Fatalf("unknown query err=%v", err)
	}

	// Nothing left to merge.
	out, err = f.run(t, mergeCmd, "-commit")
	if err != nil || !strings.Contains(out, "no duplicate groups") {
		t.Fatalf("second merge: err=%v out=%s", err, out)
	}
}

func TestMerge_FailedSaveWriteLeavesNoAudit(t *testing.T) {
	f := newFixture(t)
	before, _ := os.ReadFile(f.save)
	errDisk := errors.New("disk full")
	writeSave = func(string, savefile.Header, *tagtree.Tree) error { return errDisk }
	defer func() { writeSave = savefile.Write }()

	if _, err := f.run(t, mergeCmd, "-commit"); !errors.Is(err, errDisk) {
		t.Fatalf("err=%v want %v", err, errDisk)
	}
	if audits, _ := filepath.Glob(filepath.Join(f.worldDir, "audit", "*")); len(audits) != 0 {
		t.Fatalf("audit written for an unsaved merge: %v", audits)
	}
	after, _ := os.ReadFile(f.save)
	if !bytes.Equal(before, after) {
		t.Fatalf("save changed")
	}
}

func TestOpen_UnknownWorld(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, listCmd, "-world", "nowhere"); !errors.Is(err, protocol.ErrWorldNotFound) {
		t.Fatalf("err=%v want ErrWorldNotFound", err)
	}
}
