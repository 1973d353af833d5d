package backup

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestCreate_CopiesSaveAndWritesMeta(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := filepath.Join(worldDir, "world.save.zst")
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	dir, err := Create(worldDir, src, Meta{RunID: "r1", World: "w1", Groups: 1, Superseded: []int{6}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(dir, "-r1") {
		t.Fatalf("backup dir=%q", dir)
	}

	got, err := os.ReadFile(filepath.Join(dir, "world.save.zst"))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("backup content mismatch: got=%q want=%q", got, want)
	}

	meta, err := ReadMeta(dir)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.RunID != "r1" || meta.Save != "world.save.zst" || meta.Source != src || !reflect.DeepEqual(meta.Superseded, []int{6}) {
		t.Fatalf("meta=%+v", meta)
	}

	dirs, err := List(worldDir)
	if err != nil || len(dirs) != 1 || dirs[0] != dir {
		t.Fatalf("List=%v err=%v", dirs, err)
	}
}

func TestCreate_RequiresRunID(t *testing.T) {
	if _, err := Create(t.TempDir(), "x", Meta{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestList_NoBackups(t *testing.T) {
	dirs, err := List(t.TempDir())
	if err != nil || len(dirs) != 0 {
		t.Fatalf("List=%v err=%v", dirs, err)
	}
}
