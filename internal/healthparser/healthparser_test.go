package healthparser

import (
	"testing"

	"github.com/copperbox/depsera/internal/model"
)

func TestParseDefaultFormatTopLevelFields(t *testing.T) {
	body := `[{"name":"postgres","healthy":true,"latencyMs":15,"type":"database","impact":"critical"}]`

	res := Parse([]byte(body), nil)

	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	rec := res.Records[0]
	if rec.Name != "postgres" {
		t.Errorf("expected name postgres, got %q", rec.Name)
	}
	if rec.Healthy == nil || !*rec.Healthy {
		t.Errorf("expected healthy=true")
	}
	if rec.LatencyMs == nil || *rec.LatencyMs != 15 {
		t.Errorf("expected latency 15, got %v", rec.LatencyMs)
	}
	if rec.Type == nil || *rec.Type != model.DependencyType("database") {
		t.Errorf("expected type database, got %v", rec.Type)
	}
}

func TestParseDefaultFormatNestedHealthObject(t *testing.T) {
	body := `[{"name":"redis","health":{"state":0,"code":200,"latency":8}}]`

	res := Parse([]byte(body), nil)

	rec := res.Records[0]
	if rec.Healthy == nil || !*rec.Healthy {
		t.Errorf("expected state 0 to derive healthy=true")
	}
	if rec.HealthCode == nil || *rec.HealthCode != 200 {
		t.Errorf("expected health code 200, got %v", rec.HealthCode)
	}
	if rec.LatencyMs == nil || *rec.LatencyMs != 8 {
		t.Errorf("expected latency 8 from nested health object, got %v", rec.LatencyMs)
	}
}

func TestParseDefaultFormatNonZeroStateIsUnhealthy(t *testing.T) {
	body := `[{"name":"redis","health":{"state":2}}]`

	res := Parse([]byte(body), nil)

	rec := res.Records[0]
	if rec.Healthy == nil || *rec.Healthy {
		t.Errorf("expected non-zero state to derive healthy=false")
	}
}

func TestParseDefaultFormatTopLevelHealthyOverridesState(t *testing.T) {
	body := `[{"name":"redis","healthy":true,"health":{"state":2}}]`

	res := Parse([]byte(body), nil)

	rec := res.Records[0]
	if rec.Healthy == nil || !*rec.Healthy {
		t.Errorf("expected explicit healthy field to take priority over derived state")
	}
}

func TestParseDefaultFormatDropsRowMissingName(t *testing.T) {
	body := `[{"healthy":true}]`

	res := Parse([]byte(body), nil)

	if len(res.Records) != 0 {
		t.Fatalf("expected the row to be dropped, got %d records", len(res.Records))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings))
	}
}

func TestParseDefaultFormatWarnsOnNegativeNestedLatency(t *testing.T) {
	body := `[{"name":"redis","health":{"latency":-1}}]`

	res := Parse([]byte(body), nil)

	rec := res.Records[0]
	if rec.LatencyMs != nil {
		t.Errorf("expected negative latency to be dropped, got %v", rec.LatencyMs)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings))
	}
}

func TestParseDefaultFormatInvalidJSONYieldsWarningNotError(t *testing.T) {
	res := Parse([]byte("not json"), nil)

	if len(res.Records) != 0 {
		t.Fatalf("expected 0 records for invalid JSON, got %d", len(res.Records))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(res.Warnings))
	}
}

func TestParseDelegatesToSchemaMappingWhenProvided(t *testing.T) {
	schema := &model.SchemaMapping{
		Root: "deps",
		Fields: model.SchemaFields{
			Name:    model.PathMapping("name"),
			Healthy: model.PathMapping("healthy"),
		},
	}
	body := `{"deps":[{"name":"custom","healthy":true}]}`

	res := Parse([]byte(body), schema)

	if len(res.Records) != 1 || res.Records[0].Name != "custom" {
		t.Fatalf("expected schema-mapped record, got %+v", res.Records)
	}
}
