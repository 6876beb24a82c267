package entity

import (
	"slices"

	"github.com/google/uuid"
)

// NamedID is a record as the target platform directory lists it.
type NamedID struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TargetOrganization is the target platform's view of an organization.
type TargetOrganization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

// ProgramRecord is a program known to the target platform. A nil OrganizationID
// marks a system program. Empty SchoolIDs or ClassIDs mean no restriction at
// that level.
type ProgramRecord struct {
	ID             string
	Name           string
	OrganizationID uuid.UUID
	SchoolIDs      []uuid.UUID
	ClassIDs       []uuid.UUID
}

func (p ProgramRecord) IsSystem() bool { return p.OrganizationID == uuid.Nil }

// ValidFor reports whether the program may be used at the given scope. A nil id
// skips the check for that level.
func (p ProgramRecord) ValidFor(schoolID, classID *uuid.UUID) bool {
	if schoolID != nil && len(p.SchoolIDs) > 0 && !slices.Contains(p.SchoolIDs, *schoolID) {
		return false
	}
	if classID != nil && len(p.ClassIDs) > 0 && !slices.Contains(p.ClassIDs, *classID) {
		return false
	}
	return true
}

type RoleRecord struct {
	ID             string
	Name           string
	OrganizationID uuid.UUID
}

func (r RoleRecord) IsSystem() bool { return r.OrganizationID == uuid.Nil }
