// Package transition derives status-change and recovery events from a
// previous dependency row and a newly-parsed record. It is a pure function
// with no teacher equivalent to adapt from — the teacher's domain has no
// health-transition concept — so its shape is grounded instead on the
// previous/next health-state comparison sketches found in the rest of the
// example pack (sentinel's health watcher, threat-telemetry-hub's
// observability health package).
package transition

import "github.com/copperbox/depsera/internal/model"

// Kind is the outcome of comparing a previous row against a new record.
type Kind int

const (
	NoChange Kind = iota
	FirstSeen
	BecameUnhealthy
	Recovered
	StillUnhealthyErrorChanged
)

func (k Kind) String() string {
	switch k {
	case FirstSeen:
		return "first_seen"
	case BecameUnhealthy:
		return "became_unhealthy"
	case Recovered:
		return "recovered"
	case StillUnhealthyErrorChanged:
		return "still_unhealthy_but_error_changed"
	default:
		return "no_change"
	}
}

// IsAlertable reports whether Kind, given the new record's healthy value,
// should produce a StatusChangeEvent/DependencyErrorHistory row and reach
// the alert dispatcher. became_unhealthy and recovered always qualify;
// first_seen qualifies only when the dependency is already unhealthy on
// its first observed poll — there is no previous state for it to recover
// from, but spec.md §8 scenario S1 still requires a StatusChangeEvent with
// previous_healthy=null for a first-seen unhealthy dependency.
func (k Kind) IsAlertable(healthy *bool) bool {
	switch k {
	case BecameUnhealthy, Recovered:
		return true
	case FirstSeen:
		return healthy != nil && !*healthy
	default:
		return false
	}
}

// Detect compares previous (nil for a never-seen dependency) against the
// newly-parsed record and classifies the transition.
func Detect(previous *model.Dependency, record model.CanonicalRecord) Kind {
	if previous == nil {
		return FirstSeen
	}

	prevHealthy := previous.Healthy
	newHealthy := record.Healthy

	switch {
	case boolEqual(prevHealthy, newHealthy):
		if isUnhealthy(newHealthy) && errorChanged(previous, record) {
			return StillUnhealthyErrorChanged
		}
		return NoChange
	case isUnhealthy(newHealthy) && !isUnhealthy(prevHealthy):
		return BecameUnhealthy
	case !isUnhealthy(newHealthy) && isUnhealthy(prevHealthy):
		return Recovered
	default:
		return NoChange
	}
}

func isUnhealthy(b *bool) bool {
	return b != nil && !*b
}

func boolEqual(a, b *bool) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func errorChanged(previous *model.Dependency, record model.CanonicalRecord) bool {
	// A new record never carries an error/message of its own (those are
	// derived downstream from the poll response), so a change of health
	// code stands in for a change of error. The resulting kind is not
	// alertable and emits no StatusChangeEvent.
	return previous.HealthCode != nil && record.HealthCode != nil && *previous.HealthCode != *record.HealthCode
}

// Severity assigns the alerting weight to an unhealthy record, per the
// resolved open question: unhealthy with impact in {critical, high} is
// critical severity, all other unhealthy is warning.
func Severity(impact *model.Impact) model.Severity {
	if impact != nil && (*impact == model.ImpactCritical || *impact == model.ImpactHigh) {
		return model.SeverityCritical
	}
	return model.SeverityWarning
}
