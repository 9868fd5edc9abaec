// Package lifecycle defines the job state machine.
package lifecycle

import (
	"sort"
	"strings"

	"marketplace-service/internal/apperr"
)

// Status is a job lifecycle state
type Status string

const (
	Pending   Status = "pending"
	Matched   Status = "matched"
	Accepted  Status = "accepted"
	Started   Status = "started"
	Completed Status = "completed"
	Declined  Status = "declined"
)

// transitions lists the legal next states. Declined jobs go back to the pool
// and can be matched again; completed is terminal.
var transitions = map[Status][]Status{
	Pending:   {Matched},
	Matched:   {Accepted, Declined},
	Accepted:  {Started, Declined},
	Started:   {Completed},
	Declined:  {Matched},
	Completed: nil,
}

// All returns every status in lifecycle order
func All() []Status {
	return []Status{Pending, Matched, Accepted, Started, Completed, Declined}
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Active reports whether a plumber is committed to a job in state s
func (s Status) Active() bool {
	return s == Matched || s == Accepted || s == Started
}

// Parse normalizes a status name; ok is false for unknown names
func Parse(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Next returns the states reachable from s in one step
func Next(s Status) []Status {
	next := append([]Status(nil), transitions[s]...)
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate returns a validation error for unknown statuses and a conflict
// error for illegal jumps, such as pending -> completed.
func Validate(from, to Status) error {
	if !from.Valid() {
		return apperr.Validation("unknown current status %q", from)
	}
	if !to.Valid() {
		return apperr.Validation("unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return apperr.Conflict("illegal status transition %s -> %s", from, to)
	}
	return nil
}
