package speaker

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

// Outcome classifies the result of one send attempt.
type Outcome string

// Attempt outcomes. Delivered and NoReply are successes.
const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeNoReply   Outcome = "no_reply"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeRefused   Outcome = "refused"
	OutcomeReset     Outcome = "reset"
	OutcomeResolve   Outcome = "resolve"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Success reports whether the outcome counts as a delivered command.
func (o Outcome) Success() bool {
	return o == OutcomeDelivered || o == OutcomeNoReply
}

// Attempt is the observational record of one send.
type Attempt struct {
	RequestID string
	Action    string
	Zone      string
	Para      string
	Outcome   Outcome

	// Status is the HTTP status of the reply, 0 when none was read.
	Status   int
	Duration time.Duration
	Err      error
	At       time.Time
}

// Recorder receives every attempt, successful or not.
// Implementations must not block.
type Recorder interface {
	RecordAttempt(a Attempt)
}

// Stats holds client counters.
type Stats struct {
	Attempts    uint64
	Delivered   uint64
	NoReply     uint64
	Failures    uint64
	LastOutcome Outcome
	LastAttempt time.Time
}

// classify maps a transport error to an outcome.
func classify(err error) Outcome {
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return OutcomeResolve
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return OutcomeRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return OutcomeReset
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeFailed
}
