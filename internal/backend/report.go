package backend

import (
	"errors"
	"fmt"
	"time"
)

// ActionError records one VM's failed action.
type ActionError struct {
	VM     string
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Action, e.VM, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one VM's action.
type Result struct {
	VM       string
	Action   Action
	Err      error
	Duration time.Duration
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report collects per-VM results of a fleet action in fleet order.
type Report struct {
	Action  Action
	Results []Result
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []Result {
	if r == nil {
		return nil
	}
	var failed []Result
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Succeeded returns the number of VMs whose action succeeded.
func (r *Report) Succeeded() int {
	if r == nil {
		return 0
	}
	return len(r.Results) - len(r.Failed())
}

// Err joins every per-VM failure into one error, or returns nil when all
// actions succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, &ActionError{VM: res.VM, Action: res.Action, Err: res.Err})
	}
	return errors.Join(errs...)
}
