// Package healthparser turns a raw health-endpoint response body into the
// canonical dependency record set, either via the default wire format or by
// delegating to internal/schemamap when the service declares a custom
// SchemaMapping.
package healthparser

import (
	"encoding/json"

	"github.com/copperbox/depsera/internal/model"
	"github.com/copperbox/depsera/internal/schemamap"
)

// Parse produces the canonical record set for body. Failures of JSON
// parsing, wrong root type, or total rejection never raise an error; they
// return an empty record set plus a warning, matching 4.D's non-fatal
// contract (fatal classification is reserved for the HTTP fetcher).
func Parse(body []byte, schema *model.SchemaMapping) schemamap.Result {
	if schema != nil {
		return schemamap.Map(body, *schema)
	}
	return parseDefault(body)
}

type defaultHealth struct {
	State     *int `json:"state"`
	Code      *int `json:"code"`
	Latency   *int `json:"latency"`
}

type defaultRecord struct {
	Name        string          `json:"name"`
	Healthy     *bool           `json:"healthy"`
	Health      *defaultHealth  `json:"health"`
	Type        string          `json:"type"`
	Impact      string          `json:"impact"`
	Description string          `json:"description"`
	HealthCode  *int            `json:"healthCode"`
	LatencyMs   *int            `json:"latencyMs"`
	HealthState *int            `json:"healthState"`
}

func parseDefault(body []byte) schemamap.Result {
	var rows []defaultRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		return schemamap.Result{Warnings: []string{"invalid JSON or wrong root type: " + err.Error()}}
	}

	var res schemamap.Result
	for _, row := range rows {
		if row.Name == "" {
			res.Warnings = append(res.Warnings, "row dropped: missing required field \"name\"")
			continue
		}

		rec := model.CanonicalRecord{Name: row.Name}

		healthy := row.Healthy
		state := firstNonNil(row.HealthState, fieldOf(row.Health, func(h defaultHealth) *int { return h.State }))
		if healthy == nil && state != nil {
			v := *state == 0
			healthy = &v
		}
		rec.Healthy = healthy
		rec.HealthState = state
		rec.HealthCode = firstNonNil(row.HealthCode, fieldOf(row.Health, func(h defaultHealth) *int { return h.Code }))
		rec.LatencyMs = firstNonNil(row.LatencyMs, fieldOf(row.Health, func(h defaultHealth) *int { return h.Latency }))

		if row.LatencyMs == nil && row.Health != nil && row.Health.Latency != nil && *row.Health.Latency < 0 {
			rec.LatencyMs = nil
			res.Warnings = append(res.Warnings, "negative latency value for \""+row.Name+"\"")
		}

		if row.Type != "" {
			t := model.DependencyType(row.Type)
			rec.Type = &t
		}
		if row.Impact != "" {
			imp := model.Impact(row.Impact)
			rec.Impact = &imp
		}
		if row.Description != "" {
			rec.Description = &row.Description
		}

		res.Records = append(res.Records, rec)
	}
	return res
}

func fieldOf(h *defaultHealth, get func(defaultHealth) *int) *int {
	if h == nil {
		return nil
	}
	return get(*h)
}

func firstNonNil(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
