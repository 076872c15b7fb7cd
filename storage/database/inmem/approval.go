package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/approval"
)

type approvalRepository struct {
	db *DB
}

var _ approval.Repository = (*approvalRepository)(nil) // interface compliance check

func NewApprovalRepository(db *DB) *approvalRepository {
	return &approvalRepository{db: db}
}

func (repo *approvalRepository) CreateRequest(ctx context.Context, req *approval.Request, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if req.Status == approval.StatusPending {
		for _, existing := range repo.db.requests {
			if existing.UserID == req.UserID && existing.AppID == req.AppID &&
				existing.Status == approval.StatusPending {
				return approval.ErrRequestPending
			}
		}
	}
	req.ID = uuid.New().String()
	stored := *req
	repo.db.requests[req.ID] = &stored
	return nil
}

func (repo *approvalRepository) GetRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (approval.Request, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if req, ok := repo.db.requests[id]; ok {
		return *req, nil
	}
	return approval.Request{}, approval.ErrNotFound
}

func (repo *approvalRepository) GetPendingRequest(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (approval.Request, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, req := range repo.db.requests {
		if req.UserID == userID && req.AppID == appID && req.Status == approval.StatusPending {
			return *req, nil
		}
	}
	return approval.Request{}, approval.ErrNotFound
}

func (repo *approvalRepository) QueryRequests(ctx context.Context, filter approval.QueryFilter, exec ...core.DBExecutor) ([]approval.Request, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var reqs []approval.Request
	for _, req := range repo.db.requests {
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if filter.AppID != "" && req.AppID != filter.AppID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		reqs = append(reqs, *req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	return reqs, nil
}

func (repo *approvalRepository) UpdateRequest(ctx context.Context, req approval.Request, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.requests[req.ID]; !ok {
		return approval.ErrNotFound
	}
	stored := req
	repo.db.requests[req.ID] = &stored
	return nil
}

func (repo *approvalRepository) CreateLog(ctx context.Context, lg *approval.Log, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	lg.ID = uuid.New().String()
	stored := *lg
	repo.db.requestLogs[lg.ID] = &stored
	return nil
}

func (repo *approvalRepository) QueryLogs(ctx context.Context, requestID string, exec ...core.DBExecutor) ([]approval.Log, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var logs []approval.Log
	for _, lg := range repo.db.requestLogs {
		if lg.RequestID == requestID {
			logs = append(logs, *lg)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}
