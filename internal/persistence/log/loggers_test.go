package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"mapdedupe.io/internal/protocol"
	"mapdedupe.io/internal/refscan"
	"mapdedupe.io/internal/rewrite"
	"mapdedupe.io/internal/tagtree"
)

func readLines(t *testing.T, dir string) []map[string]any {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var out []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestAuditLogger_WritesOneLinePerChange(t *testing.T) {
	worldDir := t.TempDir()
	l := NewAuditLogger(worldDir)
	for _, from := range []int{6, 7} {
		c := rewrite.Change{From: from, To: 5, Applied: true, Location: refscan.Location{
			Source: refscan.SourcePlayer, Owner: "p1", Holder: "Inventory", Slot: 2,
			Path: tagtree.P("playerdata", "p1", "Inventory", "2", "tag", "map"),
		}}
		if err := l.WriteChange("run-1", c); err != nil {
			t.Fatalf("WriteChange: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(worldDir, "audit"))
	if len(lines) != 2 {
		t.Fatalf("lines=%d want 2", len(lines))
	}
	if lines[0]["run_id"] != "run-1" || lines[0]["from"] != float64(6) || lines[1]["to"] != float64(5) {
		t.Fatalf("lines=%v", lines)
	}
	if lines[0]["path"] != "/playerdata/p1/Inventory/2/tag/map" {
		t.Fatalf("path=%v", lines[0]["path"])
	}
}

func TestReportLogger_WritesReport(t *testing.T) {
	worldDir := t.TempDir()
	l := NewReportLogger(worldDir)
	if err := l.WriteReport(protocol.Report{Type: protocol.TypeReport, RunID: "r", World: "w"}); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	_ = l.Close()

	lines := readLines(t, filepath.Join(worldDir, "reports"))
	if len(lines) != 1 || lines[0]["run_id"] != "r" {
		t.Fatalf("lines=%v", lines)
	}
}
