package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
)

type activityRepository struct {
	exec core.DBExecutor
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{exec: exec}
}

func (repo activityRepository) CreateAction(ctx context.Context, act *activity.Action, exec ...core.DBExecutor) error {
	act.ID = uuid.New().String()

	const q = `INSERT INTO action (id, name, degree) VALUES ($1, $2, $3)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, act.ID, act.Name, act.Degree)
	if err != nil {
		if isUniqueViolation(err, "action_name_key") {
			return activity.ErrActionExists
		}
		return errors.Wrap(err, "inserting action")
	}
	return nil
}

func (repo activityRepository) GetActionByID(ctx context.Context, id string, exec ...core.DBExecutor) (activity.Action, error) {
	if _, err := uuid.Parse(id); err != nil {
		return activity.Action{}, activity.ErrActionNotFound
	}
	var act activity.Action
	const q = `SELECT id, name, degree FROM action WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &act, q, id); err != nil {
		return activity.Action{}, trapNoRowsErr(err, activity.ErrActionNotFound, "finding action")
	}
	return act, nil
}

func (repo activityRepository) QueryActions(ctx context.Context, exec ...core.DBExecutor) ([]activity.Action, error) {
	var acts []activity.Action
	const q = `SELECT id, name, degree FROM action ORDER BY name`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &acts, q); err != nil {
		return nil, errors.Wrap(err, "querying actions")
	}
	return acts, nil
}

const logColumns = `id, user_id, user_device_id, user_app_id, app_id, action_id, degree, details, minutes, created_at`

func (repo activityRepository) CreateLog(ctx context.Context, lg *activity.Log, exec ...core.DBExecutor) error {
	lg.ID = uuid.New().String()

	const q = `INSERT INTO activity_log (id, user_id, user_device_id, user_app_id, app_id, action_id, degree, details, minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		lg.ID, lg.UserID, lg.UserDeviceID, lg.UserAppID, lg.AppID, lg.ActionID,
		lg.Degree, lg.Details, lg.Minutes, lg.CreatedAt)
	return errors.Wrap(err, "inserting log")
}

func (repo activityRepository) QueryLogs(ctx context.Context, filter activity.QueryFilter, exec ...core.DBExecutor) ([]activity.Log, error) {
	q := `SELECT ` + logColumns + ` FROM activity_log WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.UserID != "" {
		q += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.UserDeviceID != "" {
		q += ` AND user_device_id = ` + arg(filter.UserDeviceID)
	}
	if filter.AppID != "" {
		q += ` AND app_id = ` + arg(filter.AppID)
	}
	if filter.Degree != "" {
		q += ` AND degree = ` + arg(filter.Degree)
	}
	if !filter.From.IsZero() {
		q += ` AND created_at >= ` + arg(filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q += ` AND created_at < ` + arg(filter.To.UTC())
	}
	q += ` ORDER BY created_at DESC`

	var logs []activity.Log
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &logs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying logs")
	}
	return logs, nil
}

func (repo activityRepository) SumAppMinutes(ctx context.Context, userID, appID string, from, to time.Time, exec ...core.DBExecutor) (int, error) {
	var minutes int
	const q = `SELECT COALESCE(SUM(minutes), 0) FROM activity_log
		WHERE user_id = $1 AND app_id = $2 AND created_at >= $3 AND created_at < $4`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &minutes, q, userID, appID, from.UTC(), to.UTC()); err != nil {
		return 0, errors.Wrap(err, "summing app minutes")
	}
	return minutes, nil
}

func (repo activityRepository) TopApps(ctx context.Context, userID string, from, to time.Time, limit int, exec ...core.DBExecutor) ([]activity.AppUsage, error) {
	var usages []activity.AppUsage
	const q = `SELECT app_id, COALESCE(SUM(minutes), 0) AS minutes FROM activity_log
		WHERE user_id = $1 AND app_id IS NOT NULL AND created_at >= $2 AND created_at < $3
		GROUP BY app_id ORDER BY minutes DESC LIMIT $4`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &usages, q, userID, from.UTC(), to.UTC(), limit); err != nil {
		return nil, errors.Wrap(err, "querying top apps")
	}
	return usages, nil
}
