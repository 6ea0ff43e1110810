package transition

import (
	"testing"

	"github.com/copperbox/depsera/internal/model"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func impactPtr(i model.Impact) *model.Impact { return &i }

func TestDetectFirstSeen(t *testing.T) {
	rec := model.CanonicalRecord{Name: "db", Healthy: boolPtr(true)}
	if got := Detect(nil, rec); got != FirstSeen {
		t.Errorf("Detect(nil, ...) = %v, want FirstSeen", got)
	}
}

func TestDetectBecameUnhealthy(t *testing.T) {
	prev := &model.Dependency{Healthy: boolPtr(true)}
	rec := model.CanonicalRecord{Name: "cache", Healthy: boolPtr(false)}
	if got := Detect(prev, rec); got != BecameUnhealthy {
		t.Errorf("Detect(healthy->unhealthy) = %v, want BecameUnhealthy", got)
	}
}

func TestDetectRecovered(t *testing.T) {
	prev := &model.Dependency{Healthy: boolPtr(false)}
	rec := model.CanonicalRecord{Name: "cache", Healthy: boolPtr(true)}
	if got := Detect(prev, rec); got != Recovered {
		t.Errorf("Detect(unhealthy->healthy) = %v, want Recovered", got)
	}
}

func TestDetectNoChange(t *testing.T) {
	prev := &model.Dependency{Healthy: boolPtr(true)}
	rec := model.CanonicalRecord{Name: "db", Healthy: boolPtr(true)}
	if got := Detect(prev, rec); got != NoChange {
		t.Errorf("Detect(healthy->healthy) = %v, want NoChange", got)
	}
}

func TestDetectStillUnhealthyErrorChanged(t *testing.T) {
	prev := &model.Dependency{Healthy: boolPtr(false), HealthCode: intPtr(500)}
	rec := model.CanonicalRecord{Name: "cache", Healthy: boolPtr(false), HealthCode: intPtr(503)}
	if got := Detect(prev, rec); got != StillUnhealthyErrorChanged {
		t.Errorf("Detect(unhealthy code 500->503) = %v, want StillUnhealthyErrorChanged", got)
	}
}

func TestDetectStillUnhealthySameCode(t *testing.T) {
	prev := &model.Dependency{Healthy: boolPtr(false), HealthCode: intPtr(500)}
	rec := model.CanonicalRecord{Name: "cache", Healthy: boolPtr(false), HealthCode: intPtr(500)}
	if got := Detect(prev, rec); got != NoChange {
		t.Errorf("Detect(unhealthy code unchanged) = %v, want NoChange", got)
	}
}

// TestIsAlertableFirstSeenUnhealthy covers the S1 scenario fix: a dependency
// unhealthy on its very first observed poll must still be event-worthy,
// even though there is no previous row for it to have "become" unhealthy
// from.
func TestIsAlertableFirstSeenUnhealthy(t *testing.T) {
	if !FirstSeen.IsAlertable(boolPtr(false)) {
		t.Error("FirstSeen with healthy=false must be alertable (spec.md §8 S1)")
	}
}

func TestIsAlertableFirstSeenHealthy(t *testing.T) {
	if FirstSeen.IsAlertable(boolPtr(true)) {
		t.Error("FirstSeen with healthy=true must not be alertable")
	}
}

func TestIsAlertableFirstSeenNilHealthy(t *testing.T) {
	if FirstSeen.IsAlertable(nil) {
		t.Error("FirstSeen with unknown (nil) healthy must not be alertable")
	}
}

func TestIsAlertableBecameUnhealthyAndRecovered(t *testing.T) {
	if !BecameUnhealthy.IsAlertable(boolPtr(false)) {
		t.Error("BecameUnhealthy must always be alertable")
	}
	if !Recovered.IsAlertable(boolPtr(true)) {
		t.Error("Recovered must always be alertable")
	}
}

func TestIsAlertableNoChangeAndStillUnhealthy(t *testing.T) {
	if NoChange.IsAlertable(boolPtr(true)) {
		t.Error("NoChange must never be alertable")
	}
	if StillUnhealthyErrorChanged.IsAlertable(boolPtr(false)) {
		t.Error("StillUnhealthyErrorChanged must never be alertable (no status change)")
	}
}

func TestSeverity(t *testing.T) {
	cases := []struct {
		name   string
		impact *model.Impact
		want   model.Severity
	}{
		{"nil impact", nil, model.SeverityWarning},
		{"critical impact", impactPtr(model.ImpactCritical), model.SeverityCritical},
		{"high impact", impactPtr(model.ImpactHigh), model.SeverityCritical},
		{"medium impact", impactPtr(model.ImpactMedium), model.SeverityWarning},
		{"low impact", impactPtr(model.ImpactLow), model.SeverityWarning},
		{"none impact", impactPtr(model.ImpactNone), model.SeverityWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Severity(tc.impact); got != tc.want {
				t.Errorf("Severity(%v) = %v, want %v", tc.impact, got, tc.want)
			}
		})
	}
}
