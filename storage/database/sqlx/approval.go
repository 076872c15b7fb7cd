package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/approval"
)

type approvalRepository struct {
	exec core.DBExecutor
}

var _ approval.Repository = (*approvalRepository)(nil) // interface compliance check

func NewApprovalRepository(exec core.DBExecutor) *approvalRepository {
	return &approvalRepository{exec: exec}
}

const requestColumns = `id, user_id, app_id, reason, status, reviewer_id, review_basis, created_at, reviewed_at`

func (repo approvalRepository) CreateRequest(ctx context.Context, req *approval.Request, exec ...core.DBExecutor) error {
	req.ID = uuid.New().String()

	// app_request_pending_key is a partial unique index over (user_id,
	// app_id) WHERE status = 'pending'.
	const q = `INSERT INTO app_request (id, user_id, app_id, reason, status, reviewer_id, review_basis, created_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		req.ID, req.UserID, req.AppID, req.Reason, req.Status,
		req.ReviewerID, req.ReviewBasis, req.CreatedAt, req.ReviewedAt)
	if err != nil {
		if isUniqueViolation(err, "app_request_pending_key") {
			return approval.ErrRequestPending
		}
		return errors.Wrap(err, "inserting request")
	}
	return nil
}

func (repo approvalRepository) GetRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (approval.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return approval.Request{}, approval.ErrNotFound
	}
	var req approval.Request
	const q = `SELECT ` + requestColumns + ` FROM app_request WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &req, q, id); err != nil {
		return approval.Request{}, trapNoRowsErr(err, approval.ErrNotFound, "finding request")
	}
	return req, nil
}

func (repo approvalRepository) GetPendingRequest(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (approval.Request, error) {
	var req approval.Request
	const q = `SELECT ` + requestColumns + ` FROM app_request
		WHERE user_id = $1 AND app_id = $2 AND status = $3`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &req, q, userID, appID, approval.StatusPending); err != nil {
		return approval.Request{}, trapNoRowsErr(err, approval.ErrNotFound, "finding pending request")
	}
	return req, nil
}

func (repo approvalRepository) QueryRequests(ctx context.Context, filter approval.QueryFilter, exec ...core.DBExecutor) ([]approval.Request, error) {
	q := `SELECT ` + requestColumns + ` FROM app_request WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.UserID != "" {
		q += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.AppID != "" {
		q += ` AND app_id = ` + arg(filter.AppID)
	}
	if filter.Status != "" {
		q += ` AND status = ` + arg(filter.Status)
	}
	q += ` ORDER BY created_at DESC`

	var reqs []approval.Request
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &reqs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	return reqs, nil
}

func (repo approvalRepository) UpdateRequest(ctx context.Context, req approval.Request, exec ...core.DBExecutor) error {
	const q = `UPDATE app_request SET status = $2, reviewer_id = $3, review_basis = $4, reviewed_at = $5 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		req.ID, req.Status, req.ReviewerID, req.ReviewBasis, req.ReviewedAt)
	if err != nil {
		return errors.Wrap(err, "updating request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return approval.ErrNotFound
	}
	return nil
}

func (repo approvalRepository) CreateLog(ctx context.Context, lg *approval.Log, exec ...core.DBExecutor) error {
	lg.ID = uuid.New().String()

	const q = `INSERT INTO app_request_log (id, request_id, status_was, status_to, admin_id, basis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		lg.ID, lg.RequestID, lg.StatusWas, lg.StatusTo, lg.AdminID, lg.Basis, lg.CreatedAt)
	return errors.Wrap(err, "inserting request log")
}

func (repo approvalRepository) QueryLogs(ctx context.Context, requestID string, exec ...core.DBExecutor) ([]approval.Log, error) {
	var logs []approval.Log
	const q = `SELECT id, request_id, status_was, status_to, admin_id, basis, created_at
		FROM app_request_log WHERE request_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &logs, q, requestID); err != nil {
		return nil, errors.Wrap(err, "querying request logs")
	}
	return logs, nil
}
