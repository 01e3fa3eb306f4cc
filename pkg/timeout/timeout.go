package timeout

import (
	"time"

	"github.com/pkg/errors"
)

// ErrDeadline is the distinguished timeout signal. It is raised by Check
// the moment the shared deadline passes and is only handled at the top of
// a solvability check, which treats it as "assume solvable".
var ErrDeadline = errors.New("solve deadline exceeded")

// Default is the budget used when a caller does not pick one.
const Default = 600 * time.Second

// Unlimited is large enough that no realistic check hits it. Nested code
// that is handed no timer of its own runs against this.
const Unlimited = 600000 * time.Second

// Timer is a single absolute deadline shared by every phase of one
// solvability check. It is created once at the top level and threaded by
// reference through all nested calls so the whole check, no matter how
// many configs or requirement phases remain, is bounded by one budget.
type Timer struct {
	deadline time.Time
}

// New creates a timer whose deadline is now+budget. A non-positive budget
// means Unlimited.
func New(budget time.Duration) *Timer {
	if budget <= 0 {
		budget = Unlimited
	}

	return &Timer{deadline: time.Now().Add(budget)}
}

// Remaining reports the signed time left before the deadline. Negative
// once the deadline has passed.
func (t *Timer) Remaining() time.Duration {
	return time.Until(t.deadline)
}

// Expired reports whether the deadline has passed.
func (t *Timer) Expired() bool {
	return t.Remaining() <= 0
}

// Check returns ErrDeadline once the deadline has passed, nil before.
// Every phase boundary calls this; cancellation is cooperative.
func (t *Timer) Check() error {
	if t.Expired() {
		return errors.WithStack(ErrDeadline)
	}

	return nil
}
