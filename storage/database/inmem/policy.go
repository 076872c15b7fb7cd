package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/policy"
)

type policyRepository struct {
	db *DB
}

var _ policy.Repository = (*policyRepository)(nil) // interface compliance check

func NewPolicyRepository(db *DB) *policyRepository {
	return &policyRepository{db: db}
}

func (repo *policyRepository) CreatePolicy(ctx context.Context, pol *policy.Policy, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	pol.ID = uuid.New().String()
	pol.CreatedAt = time.Now().UTC()
	pol.UpdatedAt = pol.CreatedAt
	stored := *pol
	repo.db.policies[pol.ID] = &stored
	return nil
}

func (repo *policyRepository) GetPolicyByID(ctx context.Context, id string, exec ...core.DBExecutor) (policy.Policy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if pol, ok := repo.db.policies[id]; ok {
		return *pol, nil
	}
	return policy.Policy{}, policy.ErrNotFound
}

func (repo *policyRepository) QueryPolicies(ctx context.Context, exec ...core.DBExecutor) ([]policy.Policy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	pols := make([]policy.Policy, 0, len(repo.db.policies))
	for _, pol := range repo.db.policies {
		pols = append(pols, *pol)
	}
	sort.Slice(pols, func(i, j int) bool { return pols[i].CreatedAt.Before(pols[j].CreatedAt) })
	return pols, nil
}

func (repo *policyRepository) QueryPoliciesByRole(ctx context.Context, roleID string, exec ...core.DBExecutor) ([]policy.Policy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var pols []policy.Policy
	for _, pol := range repo.db.policies {
		if pol.TargetRoleID == roleID {
			pols = append(pols, *pol)
		}
	}
	sort.Slice(pols, func(i, j int) bool { return pols[i].CreatedAt.Before(pols[j].CreatedAt) })
	return pols, nil
}

func (repo *policyRepository) UpdatePolicy(ctx context.Context, pol policy.Policy, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.policies[pol.ID]; !ok {
		return policy.ErrNotFound
	}
	pol.UpdatedAt = time.Now().UTC()
	stored := pol
	repo.db.policies[pol.ID] = &stored
	return nil
}

func (repo *policyRepository) DeletePolicy(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.policies[id]; !ok {
		return policy.ErrNotFound
	}
	delete(repo.db.policies, id)
	for entryID, ent := range repo.db.entries {
		if ent.PolicyID == id {
			delete(repo.db.entries, entryID)
		}
	}
	return nil
}

func (repo *policyRepository) CreateEntry(ctx context.Context, ent *policy.Entry, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.entries {
		if existing.PolicyID == ent.PolicyID && existing.Kind == ent.Kind &&
			existing.TargetID == ent.TargetID && existing.Duration == ent.Duration {
			return policy.ErrEntryExists
		}
	}
	ent.ID = uuid.New().String()
	stored := *ent
	repo.db.entries[ent.ID] = &stored
	return nil
}

func (repo *policyRepository) GetEntry(ctx context.Context, id string, exec ...core.DBExecutor) (policy.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ent, ok := repo.db.entries[id]; ok {
		return *ent, nil
	}
	return policy.Entry{}, policy.ErrEntryNotFound
}

func (repo *policyRepository) QueryEntries(ctx context.Context, policyID string, kind policy.TargetKind, exec ...core.DBExecutor) ([]policy.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ents []policy.Entry
	for _, ent := range repo.db.entries {
		if ent.PolicyID == policyID && ent.Kind == kind {
			ents = append(ents, *ent)
		}
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].TargetID < ents[j].TargetID })
	return ents, nil
}

func (repo *policyRepository) QueryEntriesForTarget(ctx context.Context, policyID string, kind policy.TargetKind, targetID string, exec ...core.DBExecutor) ([]policy.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ents []policy.Entry
	for _, ent := range repo.db.entries {
		if ent.PolicyID == policyID && ent.Kind == kind && ent.TargetID == targetID {
			ents = append(ents, *ent)
		}
	}
	return ents, nil
}

func (repo *policyRepository) DeleteEntry(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.entries[id]; !ok {
		return policy.ErrEntryNotFound
	}
	delete(repo.db.entries, id)
	return nil
}

func (repo *policyRepository) CreateException(ctx context.Context, exc *policy.Exception, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	exc.ID = uuid.New().String()
	exc.CreatedAt = time.Now().UTC()
	stored := *exc
	repo.db.exceptions[exc.ID] = &stored
	return nil
}

func (repo *policyRepository) GetActiveException(ctx context.Context, userID, appID string, at time.Time, exec ...core.DBExecutor) (policy.Exception, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var found *policy.Exception
	for _, exc := range repo.db.exceptions {
		if exc.UserID == userID && exc.AppID == appID && exc.ActiveAt(at) {
			if found == nil || exc.CreatedAt.After(found.CreatedAt) {
				found = exc
			}
		}
	}
	if found == nil {
		return policy.Exception{}, policy.ErrNotFound
	}
	return *found, nil
}

func (repo *policyRepository) QueryExceptions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]policy.Exception, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var excs []policy.Exception
	for _, exc := range repo.db.exceptions {
		if exc.UserID == userID {
			excs = append(excs, *exc)
		}
	}
	sort.Slice(excs, func(i, j int) bool { return excs[i].CreatedAt.After(excs[j].CreatedAt) })
	return excs, nil
}

func (repo *policyRepository) ExpireException(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	exc, ok := repo.db.exceptions[id]
	if !ok {
		return policy.ErrNotFound
	}
	exc.ExpiresAt.SetValid(at)
	return nil
}
