package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/policy"
)

type policyRepository struct {
	exec core.DBExecutor
}

var _ policy.Repository = (*policyRepository)(nil) // interface compliance check

func NewPolicyRepository(exec core.DBExecutor) *policyRepository {
	return &policyRepository{exec: exec}
}

const policyColumns = `id, name, is_whitelist_app, is_whitelist_web, target_role_id, block_start, block_end, school_days, created_at, updated_at`

func (repo policyRepository) CreatePolicy(ctx context.Context, pol *policy.Policy, exec ...core.DBExecutor) error {
	pol.ID = uuid.New().String()
	pol.CreatedAt = time.Now().UTC()
	pol.UpdatedAt = pol.CreatedAt

	const q = `INSERT INTO policy (id, name, is_whitelist_app, is_whitelist_web, target_role_id, block_start, block_end, school_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		pol.ID, pol.Name, pol.IsWhitelistApp, pol.IsWhitelistWeb, pol.TargetRoleID,
		pol.BlockStart, pol.BlockEnd, pol.SchoolDays, pol.CreatedAt, pol.UpdatedAt)
	return errors.Wrap(err, "inserting policy")
}

func (repo policyRepository) GetPolicyByID(ctx context.Context, id string, exec ...core.DBExecutor) (policy.Policy, error) {
	if _, err := uuid.Parse(id); err != nil {
		return policy.Policy{}, policy.ErrNotFound
	}
	var pol policy.Policy
	const q = `SELECT ` + policyColumns + ` FROM policy WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &pol, q, id); err != nil {
		return policy.Policy{}, trapNoRowsErr(err, policy.ErrNotFound, "finding policy")
	}
	return pol, nil
}

func (repo policyRepository) QueryPolicies(ctx context.Context, exec ...core.DBExecutor) ([]policy.Policy, error) {
	var pols []policy.Policy
	const q = `SELECT ` + policyColumns + ` FROM policy ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &pols, q); err != nil {
		return nil, errors.Wrap(err, "querying policies")
	}
	return pols, nil
}

func (repo policyRepository) QueryPoliciesByRole(ctx context.Context, roleID string, exec ...core.DBExecutor) ([]policy.Policy, error) {
	var pols []policy.Policy
	const q = `SELECT ` + policyColumns + ` FROM policy WHERE target_role_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &pols, q, roleID); err != nil {
		return nil, errors.Wrap(err, "querying role policies")
	}
	return pols, nil
}

func (repo policyRepository) UpdatePolicy(ctx context.Context, pol policy.Policy, exec ...core.DBExecutor) error {
	pol.UpdatedAt = time.Now().UTC()

	const q = `UPDATE policy SET name = $2, is_whitelist_app = $3, is_whitelist_web = $4,
		target_role_id = $5, block_start = $6, block_end = $7, school_days = $8, updated_at = $9
		WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		pol.ID, pol.Name, pol.IsWhitelistApp, pol.IsWhitelistWeb, pol.TargetRoleID,
		pol.BlockStart, pol.BlockEnd, pol.SchoolDays, pol.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "updating policy")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrNotFound
	}
	return nil
}

func (repo policyRepository) DeletePolicy(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := getExec(repo.exec, exec).ExecContext(ctx, `DELETE FROM policy WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting policy")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrNotFound
	}
	return nil
}

const entryColumns = `id, policy_id, kind, target_id, duration`

func (repo policyRepository) CreateEntry(ctx context.Context, ent *policy.Entry, exec ...core.DBExecutor) error {
	ent.ID = uuid.New().String()

	const q = `INSERT INTO policy_entry (id, policy_id, kind, target_id, duration) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		ent.ID, ent.PolicyID, ent.Kind, ent.TargetID, ent.Duration)
	if err != nil {
		// unique index on (policy_id, kind, target_id, COALESCE(duration, -1)):
		// postgres treats NULLs as distinct, so a plain unique key would let
		// two unlimited rows through for the same target
		if isUniqueViolation(err, "policy_entry_policy_kind_target_duration_idx") {
			return policy.ErrEntryExists
		}
		return errors.Wrap(err, "inserting policy entry")
	}
	return nil
}

func (repo policyRepository) GetEntry(ctx context.Context, id string, exec ...core.DBExecutor) (policy.Entry, error) {
	var ent policy.Entry
	const q = `SELECT ` + entryColumns + ` FROM policy_entry WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &ent, q, id); err != nil {
		return policy.Entry{}, trapNoRowsErr(err, policy.ErrEntryNotFound, "finding policy entry")
	}
	return ent, nil
}

func (repo policyRepository) QueryEntries(ctx context.Context, policyID string, kind policy.TargetKind, exec ...core.DBExecutor) ([]policy.Entry, error) {
	var ents []policy.Entry
	const q = `SELECT ` + entryColumns + ` FROM policy_entry WHERE policy_id = $1 AND kind = $2 ORDER BY target_id, duration`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &ents, q, policyID, kind); err != nil {
		return nil, errors.Wrap(err, "querying policy entries")
	}
	return ents, nil
}

func (repo policyRepository) QueryEntriesForTarget(ctx context.Context, policyID string, kind policy.TargetKind, targetID string, exec ...core.DBExecutor) ([]policy.Entry, error) {
	var ents []policy.Entry
	const q = `SELECT ` + entryColumns + ` FROM policy_entry WHERE policy_id = $1 AND kind = $2 AND target_id = $3`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &ents, q, policyID, kind, targetID); err != nil {
		return nil, errors.Wrap(err, "querying target entries")
	}
	return ents, nil
}

func (repo policyRepository) DeleteEntry(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := getExec(repo.exec, exec).ExecContext(ctx, `DELETE FROM policy_entry WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting policy entry")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrEntryNotFound
	}
	return nil
}

const exceptionColumns = `id, user_id, app_id, granted_by, expires_at, created_at`

func (repo policyRepository) CreateException(ctx context.Context, exc *policy.Exception, exec ...core.DBExecutor) error {
	exc.ID = uuid.New().String()
	exc.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO exception (id, user_id, app_id, granted_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		exc.ID, exc.UserID, exc.AppID, exc.GrantedBy, exc.ExpiresAt, exc.CreatedAt)
	return errors.Wrap(err, "inserting exception")
}

func (repo policyRepository) GetActiveException(ctx context.Context, userID, appID string, at time.Time, exec ...core.DBExecutor) (policy.Exception, error) {
	var exc policy.Exception
	const q = `SELECT ` + exceptionColumns + ` FROM exception
		WHERE user_id = $1 AND app_id = $2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &exc, q, userID, appID, at); err != nil {
		return policy.Exception{}, trapNoRowsErr(err, policy.ErrNotFound, "finding active exception")
	}
	return exc, nil
}

func (repo policyRepository) QueryExceptions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]policy.Exception, error) {
	var excs []policy.Exception
	const q = `SELECT ` + exceptionColumns + ` FROM exception WHERE user_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &excs, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying exceptions")
	}
	return excs, nil
}

func (repo policyRepository) ExpireException(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	res, err := getExec(repo.exec, exec).ExecContext(ctx,
		`UPDATE exception SET expires_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return errors.Wrap(err, "expiring exception")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrNotFound
	}
	return nil
}
