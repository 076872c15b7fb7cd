package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateAction(ctx context.Context, act *activity.Action, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.actions {
		if existing.Name == act.Name {
			return activity.ErrActionExists
		}
	}
	act.ID = uuid.New().String()
	stored := *act
	repo.db.actions[act.ID] = &stored
	return nil
}

func (repo *activityRepository) GetActionByID(ctx context.Context, id string, exec ...core.DBExecutor) (activity.Action, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if act, ok := repo.db.actions[id]; ok {
		return *act, nil
	}
	return activity.Action{}, activity.ErrActionNotFound
}

func (repo *activityRepository) QueryActions(ctx context.Context, exec ...core.DBExecutor) ([]activity.Action, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	acts := make([]activity.Action, 0, len(repo.db.actions))
	for _, act := range repo.db.actions {
		acts = append(acts, *act)
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].Name < acts[j].Name })
	return acts, nil
}

func (repo *activityRepository) CreateLog(ctx context.Context, lg *activity.Log, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lg.ID = uuid.New().String()
	stored := *lg
	repo.db.logs[lg.ID] = &stored
	return nil
}

func (repo *activityRepository) QueryLogs(ctx context.Context, filter activity.QueryFilter, exec ...core.DBExecutor) ([]activity.Log, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var logs []activity.Log
	for _, lg := range repo.db.logs {
		if filter.UserID != "" && lg.UserID != filter.UserID {
			continue
		}
		if filter.UserDeviceID != "" && lg.UserDeviceID != filter.UserDeviceID {
			continue
		}
		if filter.AppID != "" && lg.AppID.String != filter.AppID {
			continue
		}
		if filter.Degree != "" && lg.Degree != filter.Degree {
			continue
		}
		if !filter.From.IsZero() && lg.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !lg.CreatedAt.Before(filter.To) {
			continue
		}
		logs = append(logs, *lg)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	return logs, nil
}

func (repo *activityRepository) SumAppMinutes(ctx context.Context, userID, appID string, from, to time.Time, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var minutes int
	for _, lg := range repo.db.logs {
		if lg.UserID != userID || lg.AppID.String != appID {
			continue
		}
		if lg.CreatedAt.Before(from) || !lg.CreatedAt.Before(to) {
			continue
		}
		minutes += int(lg.Minutes.Int)
	}
	return minutes, nil
}

func (repo *activityRepository) TopApps(ctx context.Context, userID string, from, to time.Time, limit int, exec ...core.DBExecutor) ([]activity.AppUsage, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	byApp := make(map[string]int)
	for _, lg := range repo.db.logs {
		if lg.UserID != userID || !lg.AppID.Valid {
			continue
		}
		if lg.CreatedAt.Before(from) || !lg.CreatedAt.Before(to) {
			continue
		}
		byApp[lg.AppID.String] += int(lg.Minutes.Int)
	}

	usages := make([]activity.AppUsage, 0, len(byApp))
	for appID, mins := range byApp {
		usages = append(usages, activity.AppUsage{AppID: appID, Minutes: mins})
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].Minutes > usages[j].Minutes })
	if len(usages) > limit {
		usages = usages[:limit]
	}
	return usages, nil
}
