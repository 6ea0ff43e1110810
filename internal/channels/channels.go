// Package channels implements the two concrete alert channel senders in the
// base set (§4.J): a Slack webhook sender built on slack-go/slack, and a
// generic HTTP webhook sender. Both satisfy the shared send(event,
// configJson) -> {success, error?} contract with a 10s wall-clock timeout
// and no internal retry.
package channels

import (
	"context"
	"time"
)

// SendTimeout is the fixed per-attempt timeout both senders apply.
const SendTimeout = 10 * time.Second

// EventType distinguishes the two event shapes the generic webhook schema
// carries.
type EventType string

const (
	EventDependencyStatusChange EventType = "dependency_status_change"
	EventPollError              EventType = "poll_error"
)

// Ref names an entity by id and name, used for the service/dependency
// fields of the generic webhook schema.
type Ref struct {
	ID   string
	Name string
}

// Event is the channel-agnostic shape both senders render from.
type Event struct {
	Type       EventType
	Service    Ref
	Dependency *Ref
	OldStatus  string
	NewStatus  string
	Severity   string
	Timestamp  time.Time
	URL        string // deep link back to the app, set only when APP_BASE_URL is configured
}

// Result is the outcome of one send attempt.
type Result struct {
	Success bool
	Error   string
}

// Sender is the shared channel interface. config is the channel's raw
// Config JSON (model.AlertChannel.Config).
type Sender interface {
	Send(ctx context.Context, config []byte, event Event) Result
}

func failure(reason string) Result { return Result{Success: false, Error: reason} }

func success() Result { return Result{Success: true} }
