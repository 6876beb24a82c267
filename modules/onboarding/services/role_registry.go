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

type RoleRegistry struct {
	core      *registry[entity.RoleRecord]
	directory Directory
	store     RoleStore
	log       *logrus.Entry
}

var _ RoleLookup = (*RoleRegistry)(nil)

func NewRoleRegistry(directory Directory, store RoleStore, cache RegistryCache, log *logrus.Entry) *RoleRegistry {
	r := &RoleRegistry{directory: directory, store: store, log: componentLogger(log, "role_registry")}
	r.core = newRegistry("role", directory.SystemRoles, store.FindRole, cache)
	return r
}

func (r *RoleRegistry) Initialize(ctx context.Context) error {
	if err := r.core.initialize(ctx); err != nil {
		return fmt.Errorf("initialize role registry: %w", err)
	}
	r.log.WithField("system_roles", r.core.systemSize()).Debug("role registry ready")
	return nil
}

func (r *RoleRegistry) RoleID(ctx context.Context, name string, orgID uuid.UUID) (string, error) {
	if !r.core.isReady() {
		return "", ErrRegistryNotInitialized
	}
	rec, ok, err := r.core.orgRecord(ctx, name, orgID)
	if err != nil {
		return "", err
	}
	if ok {
		return rec.ID, nil
	}
	if id, ok := r.core.systemID(name); ok {
		return id, nil
	}
	return "", onboarderr.NewValidationError(entity.KindRole, name, onboarderr.Violation{
		Path:   "role",
		Detail: fmt.Sprintf("role %q is not valid for organization %s", name, orgID),
	})
}

func (r *RoleRegistry) RoleIsValid(ctx context.Context, name string, orgID uuid.UUID) bool {
	_, err := r.RoleID(ctx, name, orgID)
	return err == nil
}

func (r *RoleRegistry) FetchAndStoreForOrg(ctx context.Context, orgID uuid.UUID, targetOrgID string) error {
	records, err := r.directory.CustomRolesForOrg(ctx, targetOrgID)
	if err != nil {
		return fmt.Errorf("fetch custom roles for %s: %w", targetOrgID, err)
	}
	var errs []error
	for _, rec := range records {
		role := entity.RoleRecord{ID: rec.ID, Name: rec.Name, OrganizationID: orgID}
		if err := r.store.InsertRole(ctx, role); err != nil {
			errs = append(errs, fmt.Errorf("store role %q: %w", rec.Name, err))
			continue
		}
		r.core.forget(orgID, rec.Name)
	}
	r.log.WithFields(logrus.Fields{
		"organization_id": orgID,
		"roles":           len(records),
		"failed":          len(errs),
	}).Info("custom roles stored")
	return errors.Join(errs...)
}

func (r *RoleRegistry) Flush() {
	r.core.flush()
}
