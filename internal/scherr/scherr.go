// Package scherr defines the scheduler's error kinds (spec.md §7). All are
// fatal to the enclosing create_schedule call; no partial schedules are
// ever returned alongside an error.
//
// The shape mirrors the teacher's internal/errors package (a closed error
// type enum plus a struct carrying diagnostic context and a custom
// Error() string), but wraps with github.com/pkg/errors instead of
// hand-rolling stack capture, since pkg/errors was already present in the
// teacher's dependency graph.
package scherr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed enumeration of fatal scheduler error kinds.
type Kind string

const (
	IRSpecViolation         Kind = "IRSpecViolation"
	AssignCycle             Kind = "AssignCycle"
	NonContiguousSelfAssign Kind = "NonContiguousSelfAssign"
	ScheduleCycle           Kind = "ScheduleCycle"
	InternalInvariant       Kind = "InternalInvariant"
)

// SchedError is a fatal scheduling error carrying enough context (the
// offending node's string form, a relevant shape-tracker, grouped/scheduled
// counts) to diagnose without re-running the scheduler.
type SchedError struct {
	Kind    Kind
	Message string
	Node    string // String() of the offending UOp, if any
	Detail  string // extra context: shape-tracker dump, counts, etc.
}

func (e *SchedError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s\n  at %s", e.Kind, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s\n  at %s\n  %s", e.Kind, e.Message, e.Node, e.Detail)
}

// New builds and stack-wraps a SchedError.
func New(kind Kind, node fmt.Stringer, detail, format string, args ...any) error {
	n := ""
	if node != nil {
		n = node.String()
	}
	return errors.WithStack(&SchedError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Node:    n,
		Detail:  detail,
	})
}

// As extracts the *SchedError from a (possibly pkg/errors-wrapped) error.
func As(err error) (*SchedError, bool) {
	type causer interface{ Cause() error }
	for err != nil {
		if se, ok := err.(*SchedError); ok {
			return se, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}
