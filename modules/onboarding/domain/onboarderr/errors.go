// Package onboarderr classifies onboarding failures. Terminal errors carry their own
// logging so each failure is reported once, where it is first classified.
package onboarderr

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/pkg/workqueue"
)

// Loggable errors know how to report themselves.
type Loggable interface {
	error
	Log(log *logrus.Entry)
}

type Violation struct {
	Path   string
	Detail string
}

// ValidationError lists everything that is wrong with one entity. It is never retried.
type ValidationError struct {
	Kind       entity.Kind
	EntityID   string
	Violations []Violation

	logged atomic.Bool
}

func NewValidationError(kind entity.Kind, entityID string, violations ...Violation) *ValidationError {
	return &ValidationError{Kind: kind, EntityID: entityID, Violations: violations}
}

func (e *ValidationError) Add(path, detail string) {
	e.Violations = append(e.Violations, Violation{Path: path, Detail: detail})
}

func (e *ValidationError) Empty() bool { return len(e.Violations) == 0 }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Path+": "+v.Detail)
	}
	return fmt.Sprintf("%s %s failed validation: %s", e.Kind, e.EntityID, strings.Join(parts, "; "))
}

func (e *ValidationError) Retriable() bool { return false }

func (e *ValidationError) Log(log *logrus.Entry) {
	if !e.logged.CompareAndSwap(false, true) {
		return
	}
	for _, v := range e.Violations {
		log.WithFields(logrus.Fields{
			"kind":      e.Kind,
			"entity_id": e.EntityID,
			"path":      v.Path,
		}).Error(v.Detail)
	}
}

// InvalidEntityNameError reports a name that does not resolve within its scope.
type InvalidEntityNameError struct {
	Kind           entity.Kind
	Name           string
	OrganizationID uuid.UUID
	SchoolID       uuid.UUID

	logged atomic.Bool
}

func NewInvalidEntityNameError(kind entity.Kind, name string, organizationID, schoolID uuid.UUID) *InvalidEntityNameError {
	return &InvalidEntityNameError{Kind: kind, Name: name, OrganizationID: organizationID, SchoolID: schoolID}
}

func (e *InvalidEntityNameError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q does not exist", e.Kind, e.Name)
	if e.OrganizationID != uuid.Nil {
		fmt.Fprintf(&b, " in organization %s", e.OrganizationID)
	}
	if e.SchoolID != uuid.Nil {
		fmt.Fprintf(&b, " and school %s", e.SchoolID)
	}
	return b.String()
}

func (e *InvalidEntityNameError) Retriable() bool { return false }

func (e *InvalidEntityNameError) Log(log *logrus.Entry) {
	if !e.logged.CompareAndSwap(false, true) {
		return
	}
	fields := logrus.Fields{"kind": e.Kind, "name": e.Name}
	if e.OrganizationID != uuid.Nil {
		fields["organization_id"] = e.OrganizationID
	}
	if e.SchoolID != uuid.Nil {
		fields["school_id"] = e.SchoolID
	}
	log.WithFields(fields).Error("invalid entity name")
}

// NotFoundError reports an entity the source of record does not know.
type NotFoundError struct {
	Kind     entity.Kind
	EntityID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found in source of record", e.Kind, e.EntityID)
}

func (e *NotFoundError) Retriable() bool { return false }

func (e *NotFoundError) Is(target error) bool { return target == entity.ErrNotFound }

// ConflictError reports a write that collides with an existing record.
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicts with an existing record (%s): %v", e.Constraint, e.Err)
}

func (e *ConflictError) Unwrap() error        { return e.Err }
func (e *ConflictError) Retriable() bool      { return false }
func (e *ConflictError) Is(target error) bool { return target == entity.ErrConflict }

// InternalError is a broken invariant inside the validation chain.
type InternalError struct {
	Msg string
}

var ErrInternalLogic = &InternalError{Msg: "internal logic error"}

func (e *InternalError) Error() string   { return e.Msg }
func (e *InternalError) Retriable() bool { return false }

func (e *InternalError) Is(target error) bool {
	t, ok := target.(*InternalError)
	return ok && t == ErrInternalLogic
}

func Internalf(format string, args ...any) error {
	return &InternalError{Msg: "internal logic error: " + fmt.Sprintf(format, args...)}
}

// RetriableError marks a collaborator failure that may succeed on a later attempt.
type RetriableError struct {
	Op  string
	Err error
}

func Retriable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RetriableError{Op: op, Err: err}
}

func (e *RetriableError) Error() string   { return e.Op + ": " + e.Err.Error() }
func (e *RetriableError) Unwrap() error   { return e.Err }
func (e *RetriableError) Retriable() bool { return true }

// IsTerminal reports whether err must not be retried. Errors that do not classify
// themselves are retriable.
func IsTerminal(err error) bool {
	return workqueue.Terminal(err)
}

// LogError reports err once and returns it unchanged. Typed errors log themselves;
// anything else is logged generically.
func LogError(log *logrus.Entry, err error, fields logrus.Fields) error {
	if err == nil {
		return nil
	}
	if log == nil {
		return err
	}
	logInto(log.WithFields(fields), err)
	return err
}

func logInto(log *logrus.Entry, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			logInto(log, e)
		}
		return
	}
	var l Loggable
	if errors.As(err, &l) {
		l.Log(log)
		return
	}
	log.WithError(err).Error("onboarding failed")
}
