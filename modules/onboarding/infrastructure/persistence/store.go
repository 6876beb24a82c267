// Package persistence stores onboarded entities and their program and role links
// in Postgres. Repositories take the pool or transaction from the context.
package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/modules/onboarding/domain/entity"
	"github.com/iota-uz/onboarding/modules/onboarding/services"
	"github.com/iota-uz/onboarding/pkg/composables"
)

type Store struct{}

var _ services.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func pgOptionalUUID(id uuid.UUID, ok bool) pgtype.UUID {
	if !ok {
		return pgtype.UUID{}
	}
	return pgUUID(id)
}

func (s *Store) lookupID(ctx context.Context, op, q string, args ...any) (uuid.UUID, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	if err := db.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return uuid.Nil, mapPgError(err, op)
	}
	return id, nil
}

func (s *Store) OrganizationIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	return s.lookupID(ctx, "find organization",
		`SELECT id FROM onboarding_organizations WHERE name = $1`, name)
}

func (s *Store) SchoolIDByName(ctx context.Context, name string, orgID uuid.UUID) (uuid.UUID, error) {
	return s.lookupID(ctx, "find school",
		`SELECT id FROM onboarding_schools WHERE organization_id = $1 AND name = $2`, orgID, name)
}

func (s *Store) ClassIDByName(ctx context.Context, name string, orgID, schoolID uuid.UUID) (uuid.UUID, error) {
	return s.lookupID(ctx, "find class",
		`SELECT id FROM onboarding_classes WHERE organization_id = $1 AND school_id = $2 AND name = $3`,
		orgID, schoolID, name)
}

func (s *Store) FindProgram(ctx context.Context, name string, orgID uuid.UUID) (entity.ProgramRecord, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return entity.ProgramRecord{}, err
	}
	rec := entity.ProgramRecord{Name: name, OrganizationID: orgID}
	err = db.QueryRow(ctx,
		`SELECT id FROM onboarding_programs WHERE organization_id = $1 AND name = $2`,
		orgID, name,
	).Scan(&rec.ID)
	if err != nil {
		return entity.ProgramRecord{}, mapPgError(err, "find program")
	}
	return rec, nil
}

func (s *Store) FindIDsWithProgram(ctx context.Context, programID string, orgID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	schools, err := collectIDs(ctx, db, `
		SELECT sp.school_id
		  FROM onboarding_school_programs sp
		  JOIN onboarding_schools s ON s.id = sp.school_id
		 WHERE sp.program_id = $1 AND s.organization_id = $2`, programID, orgID)
	if err != nil {
		return nil, nil, mapPgError(err, "find schools with program")
	}
	classes, err := collectIDs(ctx, db, `
		SELECT cp.class_id
		  FROM onboarding_class_programs cp
		  JOIN onboarding_classes c ON c.id = cp.class_id
		 WHERE cp.program_id = $1 AND c.organization_id = $2`, programID, orgID)
	if err != nil {
		return nil, nil, mapPgError(err, "find classes with program")
	}
	return schools, classes, nil
}

func collectIDs(ctx context.Context, db composables.Querier, q string, args ...any) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *Store) InsertProgram(ctx context.Context, p entity.ProgramRecord) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO onboarding_programs (id, name, organization_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, organization_id = EXCLUDED.organization_id`,
		p.ID, p.Name, p.OrganizationID)
	return s.logged(ctx, mapPgError(err, "insert program"), logrus.Fields{"program_id": p.ID})
}

func (s *Store) FindRole(ctx context.Context, name string, orgID uuid.UUID) (entity.RoleRecord, error) {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return entity.RoleRecord{}, err
	}
	rec := entity.RoleRecord{Name: name, OrganizationID: orgID}
	err = db.QueryRow(ctx,
		`SELECT id FROM onboarding_roles WHERE organization_id = $1 AND name = $2`,
		orgID, name,
	).Scan(&rec.ID)
	if err != nil {
		return entity.RoleRecord{}, mapPgError(err, "find role")
	}
	return rec, nil
}

func (s *Store) InsertRole(ctx context.Context, r entity.RoleRecord) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO onboarding_roles (id, name, organization_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, organization_id = EXCLUDED.organization_id`,
		r.ID, r.Name, r.OrganizationID)
	return s.logged(ctx, mapPgError(err, "insert role"), logrus.Fields{"role_id": r.ID})
}

func (s *Store) InsertOrganization(ctx context.Context, o *entity.ValidatedOrganization) (uuid.UUID, error) {
	id, err := s.lookupID(ctx, "insert organization", `
		INSERT INTO onboarding_organizations (id, client_id, name, target_id, short_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE
		   SET name = EXCLUDED.name, target_id = EXCLUDED.target_id,
		       short_code = EXCLUDED.short_code, updated_at = now()
		RETURNING id`,
		o.ID(), o.ClientID(), o.Name(), o.TargetID(), o.ShortCode())
	return id, s.logged(ctx, err, logrus.Fields{"organization": o.Name()})
}

func (s *Store) InsertSchool(ctx context.Context, sc *entity.ValidatedSchool) (uuid.UUID, error) {
	var id uuid.UUID
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		id, err = s.lookupID(txCtx, "insert school", `
			INSERT INTO onboarding_schools (id, client_id, name, short_code, organization_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (client_id) DO UPDATE
			   SET name = EXCLUDED.name, short_code = EXCLUDED.short_code,
			       organization_id = EXCLUDED.organization_id, updated_at = now()
			RETURNING id`,
			sc.ID(), sc.ClientID(), sc.Name(), sc.ShortCode(), sc.OrganizationID())
		if err != nil {
			return err
		}
		return replaceLinks(txCtx, "school programs",
			`DELETE FROM onboarding_school_programs WHERE school_id = $1`,
			`INSERT INTO onboarding_school_programs (school_id, program_id) VALUES ($1, $2)`,
			id, toAny(sc.ProgramIDs()))
	})
	return id, s.logged(ctx, err, logrus.Fields{"school": sc.Name()})
}

func (s *Store) InsertClass(ctx context.Context, c *entity.ValidatedClass) (uuid.UUID, error) {
	var id uuid.UUID
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		id, err = s.lookupID(txCtx, "insert class", `
			INSERT INTO onboarding_classes (id, client_id, name, short_code, organization_id, school_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (client_id) DO UPDATE
			   SET name = EXCLUDED.name, short_code = EXCLUDED.short_code,
			       organization_id = EXCLUDED.organization_id, school_id = EXCLUDED.school_id,
			       updated_at = now()
			RETURNING id`,
			c.ID(), c.ClientID(), c.Name(), c.ShortCode(), c.OrganizationID(), c.SchoolID())
		if err != nil {
			return err
		}
		return replaceLinks(txCtx, "class programs",
			`DELETE FROM onboarding_class_programs WHERE class_id = $1`,
			`INSERT INTO onboarding_class_programs (class_id, program_id) VALUES ($1, $2)`,
			id, toAny(c.ProgramIDs()))
	})
	return id, s.logged(ctx, err, logrus.Fields{"class": c.Name()})
}

func (s *Store) InsertUser(ctx context.Context, u *entity.ValidatedUser) (uuid.UUID, error) {
	var id uuid.UUID
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		schoolID, hasSchool := u.SchoolID()
		var err error
		id, err = s.lookupID(txCtx, "insert user", `
			INSERT INTO onboarding_users
			       (id, client_id, given_name, family_name, email, phone, date_of_birth, gender, organization_id, school_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (client_id) DO UPDATE
			   SET given_name = EXCLUDED.given_name, family_name = EXCLUDED.family_name,
			       email = EXCLUDED.email, phone = EXCLUDED.phone,
			       date_of_birth = EXCLUDED.date_of_birth, gender = EXCLUDED.gender,
			       organization_id = EXCLUDED.organization_id, school_id = EXCLUDED.school_id,
			       updated_at = now()
			RETURNING id`,
			u.ID(), u.ClientID(), u.GivenName(), u.FamilyName(), u.Email(), u.Phone(),
			u.DateOfBirth(), u.Gender(), u.OrganizationID(), pgOptionalUUID(schoolID, hasSchool))
		if err != nil {
			return err
		}
		classIDs := make([]any, 0, len(u.ClassIDs()))
		for _, c := range u.ClassIDs() {
			classIDs = append(classIDs, c)
		}
		if err := replaceLinks(txCtx, "user classes",
			`DELETE FROM onboarding_user_classes WHERE user_id = $1`,
			`INSERT INTO onboarding_user_classes (user_id, class_id) VALUES ($1, $2)`,
			id, classIDs); err != nil {
			return err
		}
		return replaceLinks(txCtx, "user roles",
			`DELETE FROM onboarding_user_roles WHERE user_id = $1`,
			`INSERT INTO onboarding_user_roles (user_id, role_id) VALUES ($1, $2)`,
			id, toAny(u.RoleIDs()))
	})
	return id, s.logged(ctx, err, logrus.Fields{"user": u.ClientID()})
}

// replaceLinks swaps the owner's link rows in one batch.
func replaceLinks(ctx context.Context, what, deleteSQL, insertSQL string, owner uuid.UUID, targets []any) error {
	db, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	batch.Queue(deleteSQL, owner)
	seen := make(map[any]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		batch.Queue(insertSQL, owner, t)
	}
	br := db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return mapPgError(err, "replace "+what)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "close "+what+" batch")
	}
	return nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// logged reports a failed write through the request logger and returns err unchanged.
func (s *Store) logged(ctx context.Context, err error, fields logrus.Fields) error {
	if err != nil {
		composables.UseLogger(ctx).WithFields(fields).WithError(err).Warn("onboarding store write failed")
	}
	return err
}
