package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/domain/onboarderr"
)

// ProgramRegistry resolves program names to target ids. An organization's own
// programs win over system programs when they are valid for the requested
// school and class.
type ProgramRegistry struct {
	core      *registry[entity.ProgramRecord]
	directory Directory
	store     ProgramStore
	log       *logrus.Entry
}

func NewProgramRegistry(directory Directory, store ProgramStore, cache RegistryCache, log *logrus.Entry) *ProgramRegistry {
	r := &ProgramRegistry{directory: directory, store: store, log: componentLogger(log, "program_registry")}
	r.core = newRegistry("program", directory.SystemPrograms, r.findScoped, cache)
	return r
}

func (r *ProgramRegistry) findScoped(ctx context.Context, name string, orgID uuid.UUID) (entity.ProgramRecord, error) {
	rec, err := r.store.FindProgram(ctx, name, orgID)
	if err != nil {
		return entity.ProgramRecord{}, err
	}
	schools, classes, err := r.store.FindIDsWithProgram(ctx, rec.ID, orgID)
	if err != nil {
		return entity.ProgramRecord{}, err
	}
	rec.SchoolIDs = schools
	rec.ClassIDs = classes
	return rec, nil
}

func (r *ProgramRegistry) Initialize(ctx context.Context) error {
	if err := r.core.initialize(ctx); err != nil {
		return fmt.Errorf("initialize program registry: %w", err)
	}
	r.log.WithField("system_programs", r.core.systemSize()).Debug("program registry ready")
	return nil
}

// ProgramID resolves name for orgID. schoolID and classID narrow the scope check
// of organization programs; nil skips that level.
func (r *ProgramRegistry) ProgramID(ctx context.Context, name string, orgID uuid.UUID, schoolID, classID *uuid.UUID) (string, error) {
	if !r.core.isReady() {
		return "", ErrRegistryNotInitialized
	}
	rec, ok, err := r.core.orgRecord(ctx, name, orgID)
	if err != nil {
		return "", err
	}
	if ok && rec.ValidFor(schoolID, classID) {
		return rec.ID, nil
	}
	if id, ok := r.core.systemID(name); ok {
		return id, nil
	}
	return "", onboarderr.NewValidationError(entity.KindProgram, name, onboarderr.Violation{
		Path: "program",
		Detail: fmt.Sprintf("program %q is not valid for organization %s, school %s, class %s",
			name, orgID, scopeString(schoolID), scopeString(classID)),
	})
}

func (r *ProgramRegistry) ProgramIsValid(ctx context.Context, name string, orgID uuid.UUID, schoolID, classID *uuid.UUID) bool {
	_, err := r.ProgramID(ctx, name, orgID, schoolID, classID)
	return err == nil
}

// FetchAndStoreForOrg copies the organization's custom programs from the directory
// into the store. Every program is attempted; failures are returned together.
func (r *ProgramRegistry) FetchAndStoreForOrg(ctx context.Context, orgID uuid.UUID, targetOrgID string) error {
	records, err := r.directory.CustomProgramsForOrg(ctx, targetOrgID)
	if err != nil {
		return fmt.Errorf("fetch custom programs for %s: %w", targetOrgID, err)
	}
	var errs []error
	for _, rec := range records {
		p := entity.ProgramRecord{ID: rec.ID, Name: rec.Name, OrganizationID: orgID}
		if err := r.store.InsertProgram(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("store program %q: %w", rec.Name, err))
			continue
		}
		r.core.forget(orgID, rec.Name)
	}
	r.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"programs":        len(records),
		"failed":          len(errs),
	}).Info("custom programs stored")
	return errors.Join(errs...)
}

// Flush drops the per-organization cache. The system map stays.
func (r *ProgramRegistry) Flush() {
	r.core.flush()
}

// OnEntityPersisted drops cached scopes once a school or class links programs.
func (r *ProgramRegistry) OnEntityPersisted(e *EntityPersistedEvent) {
	if len(e.ProgramIDs) == 0 {
		return
	}
	if e.Kind == entity.KindSchool || e.Kind == entity.KindClass {
		r.core.invalidateOrg(e.OrganizationID, "program_scope")
	}
}

func scopeString(id *uuid.UUID) string {
	if id == nil {
		return "<any>"
	}
	return id.String()
}
