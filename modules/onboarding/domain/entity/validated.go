package entity

import (
	"slices"

	"github.com/google/uuid"
)

// Validated is an entity that passed validation and can be persisted.
type Validated interface {
	Kind() Kind
	ID() uuid.UUID
	ClientID() string
	Name() string
}

type ValidatedOrganization struct {
	id        uuid.UUID
	clientID  string
	name      string
	targetID  string
	shortCode string
}

func NewValidatedOrganization(id uuid.UUID, raw RawOrganization, target TargetOrganization) *ValidatedOrganization {
	return &ValidatedOrganization{
		id:        id,
		clientID:  raw.ID,
		name:      raw.Name,
		targetID:  target.ID,
		shortCode: target.ShortCode,
	}
}

func (o *ValidatedOrganization) Kind() Kind        { return KindOrganization }
func (o *ValidatedOrganization) ID() uuid.UUID     { return o.id }
func (o *ValidatedOrganization) ClientID() string  { return o.clientID }
func (o *ValidatedOrganization) Name() string      { return o.name }
func (o *ValidatedOrganization) TargetID() string  { return o.targetID }
func (o *ValidatedOrganization) ShortCode() string { return o.shortCode }

type ValidatedSchool struct {
	id             uuid.UUID
	clientID       string
	name           string
	shortCode      string
	organizationID uuid.UUID
	programIDs     []string
}

func NewValidatedSchool(id uuid.UUID, raw RawSchool, organizationID uuid.UUID, programIDs []string) *ValidatedSchool {
	return &ValidatedSchool{
		id:             id,
		clientID:       raw.ID,
		name:           raw.Name,
		shortCode:      raw.ShortCode,
		organizationID: organizationID,
		programIDs:     slices.Clone(programIDs),
	}
}

func (s *ValidatedSchool) Kind() Kind                { return KindSchool }
func (s *ValidatedSchool) ID() uuid.UUID             { return s.id }
func (s *ValidatedSchool) ClientID() string          { return s.clientID }
func (s *ValidatedSchool) Name() string              { return s.name }
func (s *ValidatedSchool) ShortCode() string         { return s.shortCode }
func (s *ValidatedSchool) OrganizationID() uuid.UUID { return s.organizationID }
func (s *ValidatedSchool) ProgramIDs() []string      { return slices.Clone(s.programIDs) }

type ValidatedClass struct {
	id             uuid.UUID
	clientID       string
	name           string
	shortCode      string
	organizationID uuid.UUID
	schoolID       uuid.UUID
	programIDs     []string
}

func NewValidatedClass(id uuid.UUID, raw RawClass, organizationID, schoolID uuid.UUID, programIDs []string) *ValidatedClass {
	return &ValidatedClass{
		id:             id,
		clientID:       raw.ID,
		name:           raw.Name,
		shortCode:      raw.ShortCode,
		organizationID: organizationID,
		schoolID:       schoolID,
		programIDs:     slices.Clone(programIDs),
	}
}

func (c *ValidatedClass) Kind() Kind                { return KindClass }
func (c *ValidatedClass) ID() uuid.UUID             { return c.id }
func (c *ValidatedClass) ClientID() string          { return c.clientID }
func (c *ValidatedClass) Name() string              { return c.name }
func (c *ValidatedClass) ShortCode() string         { return c.shortCode }
func (c *ValidatedClass) OrganizationID() uuid.UUID { return c.organizationID }
func (c *ValidatedClass) SchoolID() uuid.UUID       { return c.schoolID }
func (c *ValidatedClass) ProgramIDs() []string      { return slices.Clone(c.programIDs) }

type ValidatedUser struct {
	id             uuid.UUID
	clientID       string
	givenName      string
	familyName     string
	email          string
	phone          string
	dateOfBirth    string
	gender         string
	organizationID uuid.UUID
	schoolID       *uuid.UUID
	classIDs       []uuid.UUID
	roleIDs        []string
}

// UserRefs carries the ids a user's cross references resolved to.
type UserRefs struct {
	OrganizationID uuid.UUID
	SchoolID       *uuid.UUID
	ClassIDs       []uuid.UUID
	RoleIDs        []string
}

func NewValidatedUser(id uuid.UUID, raw RawUser, refs UserRefs) *ValidatedUser {
	u := &ValidatedUser{
		id:             id,
		clientID:       raw.ID,
		givenName:      raw.GivenName,
		familyName:     raw.FamilyName,
		email:          raw.Email,
		phone:          raw.Phone,
		dateOfBirth:    raw.DateOfBirth,
		gender:         raw.Gender,
		organizationID: refs.OrganizationID,
		classIDs:       slices.Clone(refs.ClassIDs),
		roleIDs:        slices.Clone(refs.RoleIDs),
	}
	if refs.SchoolID != nil {
		sid := *refs.SchoolID
		u.schoolID = &sid
	}
	return u
}

func (u *ValidatedUser) Kind() Kind                { return KindUser }
func (u *ValidatedUser) ID() uuid.UUID             { return u.id }
func (u *ValidatedUser) ClientID() string          { return u.clientID }
func (u *ValidatedUser) Name() string              { return u.givenName + " " + u.familyName }
func (u *ValidatedUser) GivenName() string         { return u.givenName }
func (u *ValidatedUser) FamilyName() string        { return u.familyName }
func (u *ValidatedUser) Email() string             { return u.email }
func (u *ValidatedUser) Phone() string             { return u.phone }
func (u *ValidatedUser) DateOfBirth() string       { return u.dateOfBirth }
func (u *ValidatedUser) Gender() string            { return u.gender }
func (u *ValidatedUser) OrganizationID() uuid.UUID { return u.organizationID }
func (u *ValidatedUser) ClassIDs() []uuid.UUID     { return slices.Clone(u.classIDs) }
func (u *ValidatedUser) RoleIDs() []string         { return slices.Clone(u.roleIDs) }

func (u *ValidatedUser) SchoolID() (uuid.UUID, bool) {
	if u.schoolID == nil {
		return uuid.Nil, false
	}
	return *u.schoolID, true
}
