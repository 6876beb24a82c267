package entity

import "strings"

// Raw is an entity as read from the source of record, before validation.
type Raw interface {
	Kind() Kind
	ClientID() string
}

type RawOrganization struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=120"`
}

func (r RawOrganization) Kind() Kind       { return KindOrganization }
func (r RawOrganization) ClientID() string { return r.ID }

type RawSchool struct {
	ID               string   `json:"id" validate:"required,max=64"`
	Name             string   `json:"name" validate:"required,max=120"`
	ShortCode        string   `json:"short_code" validate:"omitempty,max=16,alphanum"`
	OrganizationName string   `json:"organization_name" validate:"required"`
	ProgramNames     []string `json:"program_names" validate:"dive,required"`
}

func (r RawSchool) Kind() Kind       { return KindSchool }
func (r RawSchool) ClientID() string { return r.ID }

type RawClass struct {
	ID               string   `json:"id" validate:"required,max=64"`
	Name             string   `json:"name" validate:"required,max=120"`
	ShortCode        string   `json:"short_code" validate:"omitempty,max=16,alphanum"`
	OrganizationName string   `json:"organization_name" validate:"required"`
	SchoolName       string   `json:"school_name" validate:"required"`
	ProgramNames     []string `json:"program_names" validate:"dive,required"`
}

func (r RawClass) Kind() Kind       { return KindClass }
func (r RawClass) ClientID() string { return r.ID }

type RawUser struct {
	ID               string   `json:"id" validate:"required,max=64"`
	GivenName        string   `json:"given_name" validate:"required,max=100"`
	FamilyName       string   `json:"family_name" validate:"required,max=100"`
	Email            string   `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone            string   `json:"phone" validate:"required_without=Email,omitempty,e164"`
	DateOfBirth      string   `json:"date_of_birth" validate:"omitempty,datetime=01-2006"`
	Gender           string   `json:"gender" validate:"required,oneof=male female other"`
	OrganizationName string   `json:"organization_name" validate:"required"`
	SchoolName       string   `json:"school_name" validate:"required_with=ClassNames"`
	ClassNames       []string `json:"class_names" validate:"dive,required"`
	RoleNames        []string `json:"role_names" validate:"min=1,dive,required"`
}

func (r RawUser) Kind() Kind       { return KindUser }
func (r RawUser) ClientID() string { return r.ID }

// Normalize trims every name so lookups compare what the source meant.
func Normalize(raw Raw) Raw {
	switch r := raw.(type) {
	case RawOrganization:
		r.Name = strings.TrimSpace(r.Name)
		return r
	case RawSchool:
		r.Name = strings.TrimSpace(r.Name)
		r.OrganizationName = strings.TrimSpace(r.OrganizationName)
		r.ProgramNames = trimAll(r.ProgramNames)
		return r
	case RawClass:
		r.Name = strings.TrimSpace(r.Name)
		r.OrganizationName = strings.TrimSpace(r.OrganizationName)
		r.SchoolName = strings.TrimSpace(r.SchoolName)
		r.ProgramNames = trimAll(r.ProgramNames)
		return r
	case RawUser:
		r.GivenName = strings.TrimSpace(r.GivenName)
		r.FamilyName = strings.TrimSpace(r.FamilyName)
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		r.Phone = strings.TrimSpace(r.Phone)
		r.Gender = strings.ToLower(strings.TrimSpace(r.Gender))
		r.OrganizationName = strings.TrimSpace(r.OrganizationName)
		r.SchoolName = strings.TrimSpace(r.SchoolName)
		r.ClassNames = trimAll(r.ClassNames)
		r.RoleNames = trimAll(r.RoleNames)
		return r
	default:
		return raw
	}
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
