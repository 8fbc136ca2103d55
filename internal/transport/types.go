// Package transport implements the two delivery strategies for remote state:
// push over a persistent websocket and pull over periodic HTTP requests. Both
// report failures as typed signals on a channel instead of unwinding call
// stacks, so the synchronizer can arbitrate mode switching.
package transport

import (
	"context"
	"time"

	"github.com/vantagesec/sentinel-go/internal/state"
)

// Mode identifies a delivery strategy.
type Mode string

const (
	ModePush Mode = "push"
	ModePull Mode = "pull"
)

// Status is the lifecycle state of a strategy. Transitions are
// Idle → Connecting → Active ⇄ Failing, returning to Idle only on teardown.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusFailing    Status = "failing"
)

// Failure is a typed failure signal reported to the synchronizer.
type Failure struct {
	Mode        Mode
	Err         error
	Consecutive int // consecutive failures for this strategy since last success
}

// Session describes one connectivity attempt for a strategy. Sessions are
// immutable values: a reconnect produces a replacement session, never a
// mutation visible to readers.
type Session struct {
	ID          string // uuid, unique per connection/poll cycle
	Mode        Mode
	Status      Status
	RetryCount  int
	StartedAt   time.Time
	LastSuccess time.Time
}

// Strategy is a capability-based delivery mechanism. Run drives the strategy
// until the context is cancelled; inbound payloads and failure signals are
// delivered on the respective channels without blocking the strategy.
type Strategy interface {
	Mode() Mode
	Run(ctx context.Context)
	Payloads() <-chan state.RawPayload
	Failures() <-chan Failure
	Session() Session
}

// Channel capacities. Payload channels absorb short consumer stalls; failure
// channels only need the latest few signals.
const (
	payloadChanSize = 8
	failureChanSize = 8
)
