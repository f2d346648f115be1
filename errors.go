package httpcore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Wrap them with github.com/pkg/errors so call sites
// keep a stack trace while callers can still classify an error with
// errors.Is / errors.Cause, same pattern the teacher uses in its own
// errors.go and dnssec-backend.go.
var (
	// ErrInvalidArgument: bad endpoint literal, forbidden header, negative
	// port/timeout/weight, a nil required value. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState: API called in the wrong state (scheduler off its
	// event loop, WithIPAddr("") on an IP-literal host).
	ErrIllegalState = errors.New("illegal state")

	// ErrUnknownHost: NXDOMAIN, or a hit on the negative cache.
	ErrUnknownHost = errors.New("unknown host")

	// ErrResponseTimeout: connection- or request-level response deadline
	// elapsed.
	ErrResponseTimeout = errors.New("response timeout")

	// ErrRejectedExecution: the event loop terminated while work was
	// queued.
	ErrRejectedExecution = errors.New("rejected execution: event executor terminated")

	// ErrCancelled: the owning subsystem was closed while an operation was
	// pending.
	ErrCancelled = errors.New("cancelled")
)

// DNSTimeoutError is returned when every upstream query attempted for a
// resolution timed out. Questions holds the record-type labels that were
// queried ("a", "aaaa"); it does not record the names or search-expanded
// forms that were tried.
type DNSTimeoutError struct {
	Questions []string
}

func (e *DNSTimeoutError) Error() string {
	return fmt.Sprintf("dns query timed out for %v", e.Questions)
}

// RetryTaskOutcome identifies why a retry task's exception handler was
// invoked instead of the task itself running.
type RetryTaskOutcome int

const (
	// RetryTaskOvertaken: a strictly-earlier task replaced this one before
	// it ran.
	RetryTaskOvertaken RetryTaskOutcome = iota
	// RetryTaskCancelled: the scheduler was closed (or the event loop
	// terminated) before this task ran.
	RetryTaskCancelled
	// RetryingAlreadyCompleted: an internal scheduler invariant violation;
	// a task was notified after it had already run.
	RetryingAlreadyCompleted
)

func (o RetryTaskOutcome) String() string {
	switch o {
	case RetryTaskOvertaken:
		return "RETRY_TASK_OVERTAKEN"
	case RetryTaskCancelled:
		return "RETRY_TASK_CANCELLED"
	case RetryingAlreadyCompleted:
		return "RETRYING_ALREADY_COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// RetrySchedulingException is delivered to a retry task's own exception
// handler, never surfaced to the caller of try_schedule directly -- the
// scheduler is the one component in this package with a private per-task
// error channel separate from its main result (spec.md §7).
type RetrySchedulingException struct {
	Outcome RetryTaskOutcome
}

func (e *RetrySchedulingException) Error() string {
	return "retry scheduling: " + e.Outcome.String()
}

// IsInvalidArgument reports whether err (or its cause) is ErrInvalidArgument.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsIllegalState reports whether err (or its cause) is ErrIllegalState.
func IsIllegalState(err error) bool { return errors.Is(err, ErrIllegalState) }

// IsUnknownHost reports whether err (or its cause) is ErrUnknownHost.
func IsUnknownHost(err error) bool { return errors.Is(err, ErrUnknownHost) }

// IsCancelled reports whether err (or its cause) is ErrCancelled.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
