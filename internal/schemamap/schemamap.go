// Package schemamap maps arbitrary JSON health-check responses into the
// canonical dependency record shape, driven by a model.SchemaMapping. It is
// pure and deterministic: the same (body, schema) pair always produces the
// same output, as required by the dependency mapper contract.
package schemamap

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/copperbox/depsera/internal/model"
)

var trueStrings = map[string]bool{
	"true": true, "ok": true, "healthy": true, "up": true,
}

var falseStrings = map[string]bool{
	"false": true, "error": true, "unhealthy": true, "down": true, "critical": true,
}

// Result is the output of Map: the extracted records plus any non-fatal
// warnings encountered along the way.
type Result struct {
	Records  []model.CanonicalRecord
	Warnings []string
}

// Map resolves schema.Root against body and extracts one CanonicalRecord
// per array element.
func Map(body []byte, schema model.SchemaMapping) Result {
	root := gjson.GetBytes(body, schema.Root)
	if !root.Exists() || !root.IsArray() {
		return Result{Warnings: []string{"expected array at " + schema.Root}}
	}

	var res Result
	for _, elem := range root.Array() {
		record, warn, ok := mapElement(elem, schema.Fields)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		if ok {
			res.Records = append(res.Records, record)
		}
	}
	return res
}

func mapElement(elem gjson.Result, fields model.SchemaFields) (model.CanonicalRecord, string, bool) {
	name, ok := resolveString(elem, fields.Name)
	if !ok || name == "" {
		return model.CanonicalRecord{}, "row dropped: missing required field \"name\"", false
	}

	record := model.CanonicalRecord{Name: name}

	healthy, warn := resolveHealthy(elem, fields.Healthy)
	record.Healthy = healthy

	if fields.Latency != nil {
		if lat, lwarn := resolveLatency(elem, *fields.Latency); lat != nil {
			record.LatencyMs = lat
		} else if lwarn != "" && warn == "" {
			warn = lwarn
		}
	}

	if fields.Impact != nil {
		if s, ok := resolveString(elem, *fields.Impact); ok && s != "" {
			impact := model.Impact(strings.ToLower(s))
			record.Impact = &impact
		}
	}

	if fields.Description != nil {
		if s, ok := resolveString(elem, *fields.Description); ok && s != "" {
			record.Description = &s
		}
	}

	if fields.Type != nil {
		if s, ok := resolveString(elem, *fields.Type); ok && s != "" {
			t := model.DependencyType(strings.ToLower(s))
			record.Type = &t
		}
	}

	return record, warn, true
}

// resolveString evaluates a plain dotted-path FieldMapping against elem,
// returning the raw string form. BoolCompare mappings are not valid here
// and resolve as not-found.
func resolveString(elem gjson.Result, fm model.FieldMapping) (string, bool) {
	if fm.Compare != nil || fm.Path == "" {
		return "", false
	}
	r := elem.Get(fm.Path)
	if !r.Exists() {
		return "", false
	}
	return r.String(), true
}

func resolveLatency(elem gjson.Result, fm model.FieldMapping) (*int, string) {
	if fm.Compare != nil || fm.Path == "" {
		return nil, ""
	}
	r := elem.Get(fm.Path)
	if !r.Exists() || r.Type == gjson.Null {
		return nil, ""
	}
	if r.Type != gjson.Number {
		return nil, "non-numeric latency value for \"" + fm.Path + "\""
	}
	v := int(r.Num)
	if r.Num < 0 {
		return nil, "negative latency value for \"" + fm.Path + "\""
	}
	return &v, ""
}

// resolveHealthy implements the healthy-coercion rules: a boolean passes
// through, a recognized string maps to true/false, an unrecognized string
// maps to null with a warning. A BoolCompare yields the case-insensitive
// equality of its field against Equals, or null (no warning) when the field
// is absent.
func resolveHealthy(elem gjson.Result, fm model.FieldMapping) (*bool, string) {
	if fm.Compare != nil {
		cmp := fm.Compare
		r := elem.Get(cmp.Field)
		if !r.Exists() {
			return nil, ""
		}
		eq := strings.EqualFold(strings.ToLower(r.String()), strings.ToLower(cmp.Equals))
		return &eq, ""
	}

	r := elem.Get(fm.Path)
	if !r.Exists() || r.Type == gjson.Null {
		return nil, ""
	}

	switch r.Type {
	case gjson.True, gjson.False:
		b := r.Bool()
		return &b, ""
	case gjson.String:
		lower := strings.ToLower(r.String())
		if trueStrings[lower] {
			v := true
			return &v, ""
		}
		if falseStrings[lower] {
			v := false
			return &v, ""
		}
		return nil, "unrecognized healthy string value: " + strconv.Quote(r.String())
	default:
		return nil, "unrecognized healthy value type"
	}
}

// DryRun maps body against schema without persisting anything, matching the
// schemaMapper.dryRun contract the UI's "Test mapping" feature consumes.
func DryRun(body []byte, schema model.SchemaMapping) Result {
	return Map(body, schema)
}
