package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
)

// NameLookup resolves names to internal ids within their scope. Unknown names
// return entity.ErrNotFound.
type NameLookup interface {
	OrganizationIDByName(ctx context.Context, name string) (uuid.UUID, error)
	SchoolIDByName(ctx context.Context, name string, orgID uuid.UUID) (uuid.UUID, error)
	ClassIDByName(ctx context.Context, name string, orgID, schoolID uuid.UUID) (uuid.UUID, error)
}

type ProgramStore interface {
	FindProgram(ctx context.Context, name string, orgID uuid.UUID) (entity.ProgramRecord, error)
	// FindIDsWithProgram returns the schools and classes of orgID linked to the program.
	FindIDsWithProgram(ctx context.Context, programID string, orgID uuid.UUID) (schoolIDs, classIDs []uuid.UUID, err error)
	InsertProgram(ctx context.Context, p entity.ProgramRecord) error
}

type RoleStore interface {
	FindRole(ctx context.Context, name string, orgID uuid.UUID) (entity.RoleRecord, error)
	InsertRole(ctx context.Context, r entity.RoleRecord) error
}

// EntityWriter persists validated entities and returns the id they are stored
// under, which differs from the validated id when the entity already existed.
type EntityWriter interface {
	InsertOrganization(ctx context.Context, o *entity.ValidatedOrganization) (uuid.UUID, error)
	InsertSchool(ctx context.Context, s *entity.ValidatedSchool) (uuid.UUID, error)
	InsertClass(ctx context.Context, c *entity.ValidatedClass) (uuid.UUID, error)
	InsertUser(ctx context.Context, u *entity.ValidatedUser) (uuid.UUID, error)
}

type Store interface {
	NameLookup
	ProgramStore
	RoleStore
	EntityWriter
}

// Directory is the target platform's view of organizations, programs and roles.
type Directory interface {
	OrganizationExists(ctx context.Context, name string) (entity.TargetOrganization, error)
	SystemPrograms(ctx context.Context) ([]entity.NamedID, error)
	SystemRoles(ctx context.Context) ([]entity.NamedID, error)
	CustomProgramsForOrg(ctx context.Context, targetOrgID string) ([]entity.NamedID, error)
	CustomRolesForOrg(ctx context.Context, targetOrgID string) ([]entity.NamedID, error)
}

// Fetcher reads raw entities from the source of record. Unknown entities return
// entity.ErrNotFound.
type Fetcher interface {
	FetchEntity(ctx context.Context, kind entity.Kind, id string) (entity.Raw, error)
	FetchChildren(ctx context.Context, kind entity.Kind, parentID string) ([]entity.Raw, error)
	ListOrganizations(ctx context.Context) ([]string, error)
}
