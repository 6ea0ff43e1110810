package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/copperbox/depsera/internal/model"
)

// timeStr / parseTime store time.Time as RFC3339 text, matching sqlite's
// lack of a native temporal type.
func timeStr(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	v := nb.Bool
	return &v
}

func encodeWarnings(warnings []string) string {
	if warnings == nil {
		warnings = []string{}
	}
	b, _ := json.Marshal(warnings)
	return string(b)
}

func decodeWarnings(raw string) []string {
	var out []string
	if raw == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeSchema(schema *model.SchemaMapping) sql.NullString {
	if schema == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeSchema(ns sql.NullString) *model.SchemaMapping {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out model.SchemaMapping
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return &out
}
