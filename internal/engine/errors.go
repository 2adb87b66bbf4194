package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/v0xg/studiopilot/internal/diagnostics"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("element not found")

// NotFoundError reports that no strategy of a catalog entry produced a
// visible element within the budget.
type NotFoundError struct {
	Entry      string
	Strategies int
	Waited     time.Duration
	// Report is set when a diagnostic capture was taken for the miss.
	Report *diagnostics.ErrorReport
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no visible match after %d strategies in %s", e.Entry, e.Strategies, e.Waited.Round(time.Millisecond))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InteractionError is returned when an interaction exhausted its retries.
type InteractionError struct {
	Action   string
	Entry    string
	Attempts int
	Err      error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Action, e.Entry, e.Attempts, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }
