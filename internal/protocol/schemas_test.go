package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mapdedupe.io/internal/protocol"
)

func compileReportSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", "report.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", p, err)
	}
	return s
}

func TestSchemas_ValidateSample(t *testing.T) {
	s := compileReportSchema(t)

	var v any
	_ = json.Unmarshal([]byte(`{
	  "type":"REPORT",
	  "protocol_version":"1.0",
	  "run_id":"8d0c7a3e-6f4b-4c61-9a55-2a8f0e7d1b11",
	  "world":"New World",
	  "counts":{"total":3,"unique":1,"groups":1,"duplicates":2,"lost":1,"references":4},
	  "groups":[{"dimension":"OVERWORLD","scale":1,"center":[832,320],"members":[5,6],"canonical":5,"superseded":[6],"conflicts":0}],
	  "lost":[6],
	  "lost_may_be_inaccurate":false,
	  "rewrite":{"dry_run":true,"changed":1,"failed":0,"pixel_writes":0,"deleted":null,
	    "changes":[{"path":"/playerdata/p1/Inventory/0/tag/map","from":6,"to":5,"applied":false}]},
	  "warnings":{"corrupt_records":0,"unreadable_chunks":0,"pixel_conflicts":0,"write_failures":0,"records_kept":0}
	}`), &v)
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSchemas_ValidateEncodedReport(t *testing.T) {
	s := compileReportSchema(t)

	rep := protocol.Report{
		Type:            protocol.TypeReport,
		ProtocolVersion: protocol.Version,
		RunID:           "r1",
		World:           "w",
		Groups:          []protocol.GroupSummary{},
		Lost:            []int{},
		Maps: []protocol.MapSummary{
			{ID: 0, Type: "Treasure", Dimension: "OVERWORLD", Scale: 1, Center: [2]int{0, 0}},
		},
		Details: []protocol.Warning{protocol.MapWarnf(protocol.WarnCorruptRecord, 3, "/data/map_3", "missing scale")},
	}
	rep.Warnings.Add(rep.Details...)

	b, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
