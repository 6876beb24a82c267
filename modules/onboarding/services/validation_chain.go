package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
	"github.com/iota-uz/onboarding/pkg/constants"
)

// Descriptor lists the cross references one raw entity declares. Empty fields
// are not resolved.
type Descriptor struct {
	Kind             entity.Kind
	ClientID         string
	OrganizationName string
	SchoolName       string
	ClassNames       []string
	ProgramNames     []string
	RoleNames        []string
}

// Resolved holds the ids a Descriptor resolved to.
type Resolved struct {
	OrganizationID uuid.UUID
	SchoolID       *uuid.UUID
	ClassIDs       []uuid.UUID
	ProgramIDs     []string
	RoleIDs        []string
}

// ValidationChain checks a raw entity's schema and resolves its references.
// Organization, school and class failures stop the chain; schema, program and
// role failures are collected into a single ValidationError.
type ValidationChain struct {
	names    *ResolutionContext
	programs *ProgramRegistry
}

func NewValidationChain(names *ResolutionContext, programs *ProgramRegistry) *ValidationChain {
	return &ValidationChain{names: names, programs: programs}
}

func (c *ValidationChain) Resolve(ctx context.Context, raw any, d Descriptor) (Resolved, error) {
	verr := onboarderr.NewValidationError(d.Kind, d.ClientID)
	schemaViolations(verr, constants.Validate.StructCtx(ctx, raw))
	if missingParent(d) && !verr.Empty() {
		return Resolved{}, verr
	}

	var res Resolved
	if d.OrganizationName != "" {
		id, err := c.names.OrganizationID(ctx, d.OrganizationName)
		if err != nil {
			return Resolved{}, err
		}
		res.OrganizationID = id
	}

	if d.SchoolName != "" {
		if res.OrganizationID == uuid.Nil {
			return Resolved{}, onboarderr.Internalf("school %q resolved without an organization", d.SchoolName)
		}
		id, err := c.names.SchoolID(ctx, d.SchoolName, res.OrganizationID)
		if err != nil {
			return Resolved{}, err
		}
		res.SchoolID = &id
	}

	if len(d.ClassNames) > 0 {
		if res.SchoolID == nil {
			return Resolved{}, onboarderr.Internalf("classes %v resolved without a school", d.ClassNames)
		}
		ids, err := c.names.ClassesAreValid(ctx, d.ClassNames, res.OrganizationID, *res.SchoolID)
		if err != nil {
			return Resolved{}, err
		}
		res.ClassIDs = ids
	}

	// Class scope is not checked: the entity declaring these programs is
	// the school or class being created, not a member of one.
	for i, name := range d.ProgramNames {
		id, err := c.programs.ProgramID(ctx, name, res.OrganizationID, res.SchoolID, nil)
		if err != nil {
			if !onboarderr.IsTerminal(err) {
				return Resolved{}, err
			}
			absorb(verr, fmt.Sprintf("program_names[%d]", i), err)
			continue
		}
		res.ProgramIDs = append(res.ProgramIDs, id)
	}

	if len(d.RoleNames) > 0 {
		ids, err := c.names.RolesAreValid(ctx, d.RoleNames, res.OrganizationID)
		switch {
		case err == nil:
			res.RoleIDs = ids
		case hasRetriable(err) || errors.Is(err, onboarderr.ErrInternalLogic):
			return Resolved{}, err
		default:
			absorb(verr, "role_names", err)
		}
	}

	if !verr.Empty() {
		return Resolved{}, verr
	}
	return res, nil
}

// missingParent reports a school without its organization or classes without
// their school.
func missingParent(d Descriptor) bool {
	return (d.SchoolName != "" && d.OrganizationName == "") ||
		(len(d.ClassNames) > 0 && d.SchoolName == "")
}

func schemaViolations(verr *onboarderr.ValidationError, err error) {
	if err == nil {
		return
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		verr.Add("", err.Error())
		return
	}
	for _, fe := range ves {
		verr.Add(fieldPath(fe), describe(fe))
	}
}

// fieldPath drops the struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is empty", fe.Param())
	case "required_with":
		return fmt.Sprintf("is required when %s is set", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match layout %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// absorb copies the violations carried by err into verr under path.
func absorb(verr *onboarderr.ValidationError, path string, err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			absorb(verr, path, e)
		}
		return
	}
	var ve *onboarderr.ValidationError
	if errors.As(err, &ve) {
		for _, v := range ve.Violations {
			verr.Add(path, v.Detail)
		}
		return
	}
	verr.Add(path, err.Error())
}

// hasRetriable reports whether any part of a possibly joined error is retriable.
func hasRetriable(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if hasRetriable(e) {
				return true
			}
		}
		return false
	}
	return !onboarderr.IsTerminal(err)
}
