package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) EnsureRole(ctx context.Context, name, schoolID string, exec ...core.DBExecutor) (user.Role, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, role := range repo.db.roles {
		if role.Name == name && role.SchoolID.String == schoolID {
			return *role, nil
		}
	}
	role := user.Role{
		ID:        uuid.New().String(),
		Name:      name,
		Level:     user.RoleLevel(name),
		SchoolID:  null.NewString(schoolID, schoolID != ""),
		CreatedAt: time.Now().UTC(),
	}
	role.UpdatedAt = role.CreatedAt
	repo.db.roles[role.ID] = &role
	return role, nil
}

func (repo *userRepository) GetRoleByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.Role, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if role, ok := repo.db.roles[id]; ok {
		return *role, nil
	}
	return user.Role{}, user.ErrRoleNotFound
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, u := range repo.db.users {
		if u.PhoneNumber == usr.PhoneNumber && u.RoleID == usr.RoleID {
			return user.User{}, user.ErrPhoneExists
		}
		if usr.Username != "" && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}
	usr.ID = uuid.New().String()
	stored := usr
	repo.db.users[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return repo.withRole(*usr), nil
}

func (repo *userRepository) GetUserByPhone(ctx context.Context, phone, roleName string, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		role, ok := repo.db.roles[usr.RoleID]
		if ok && usr.PhoneNumber == phone && role.Name == roleName {
			return repo.withRole(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var users []user.User
	for _, usr := range repo.db.users {
		role := repo.db.roles[usr.RoleID]
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(usr.PhoneNumber), s) &&
				!strings.Contains(strings.ToLower(usr.Username), s) {
				continue
			}
		}
		if filter.RoleName != "" && (role == nil || role.Name != filter.RoleName) {
			continue
		}
		if filter.SchoolID != "" && (role == nil || role.SchoolID.String != filter.SchoolID) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, repo.withRole(*usr))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.UpdatedAt = time.Now().UTC()
	stored := usr
	repo.db.users[usr.ID] = &stored
	return repo.withRole(usr), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func (repo *userRepository) withRole(usr user.User) user.User {
	if role, ok := repo.db.roles[usr.RoleID]; ok {
		usr.Role = *role
	}
	return usr
}

func (repo *userRepository) CreateStudentProfile(ctx context.Context, prof user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prof.ID = uuid.New().String()
	stored := prof
	repo.db.studentProfiles[prof.ID] = &stored
	return prof, nil
}

func (repo *userRepository) CreateParentProfile(ctx context.Context, prof user.ParentProfile, exec ...core.DBExecutor) (user.ParentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	prof.ID = uuid.New().String()
	stored := prof
	repo.db.parentProfiles[prof.ID] = &stored
	return prof, nil
}

func (repo *userRepository) GetStudentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.StudentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prof := range repo.db.studentProfiles {
		if prof.UserID == userID {
			return *prof, nil
		}
	}
	return user.StudentProfile{}, user.ErrNotFound
}

func (repo *userRepository) GetParentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.ParentProfile, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, prof := range repo.db.parentProfiles {
		if prof.UserID == userID {
			return *prof, nil
		}
	}
	return user.ParentProfile{}, user.ErrNotFound
}

func (repo *userRepository) UpdateStudentProfile(ctx context.Context, prof user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.studentProfiles[prof.ID]; !ok {
		return user.StudentProfile{}, user.ErrNotFound
	}
	stored := prof
	repo.db.studentProfiles[prof.ID] = &stored
	return prof, nil
}

func (repo *userRepository) UpdateParentProfile(ctx context.Context, prof user.ParentProfile, exec ...core.DBExecutor) (user.ParentProfile, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.parentProfiles[prof.ID]; !ok {
		return user.ParentProfile{}, user.ErrNotFound
	}
	stored := prof
	repo.db.parentProfiles[prof.ID] = &stored
	return prof, nil
}

func (repo *userRepository) GetChildren(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var children []user.User
	for _, prof := range repo.db.studentProfiles {
		if prof.FatherID.String == parentID || prof.MotherID.String == parentID {
			if usr, ok := repo.db.users[prof.UserID]; ok {
				children = append(children, repo.withRole(*usr))
			}
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].CreatedAt.Before(children[j].CreatedAt) })
	return children, nil
}

func (repo *userRepository) GetPreference(ctx context.Context, userID string, exec ...core.DBExecutor) (user.Preference, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, pref := range repo.db.preferences {
		if pref.UserID == userID {
			return *pref, nil
		}
	}
	return user.Preference{}, user.ErrNotFound
}

func (repo *userRepository) SavePreference(ctx context.Context, pref user.Preference, exec ...core.DBExecutor) (user.Preference, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, existing := range repo.db.preferences {
		if existing.UserID == pref.UserID {
			pref.ID = id
			stored := pref
			repo.db.preferences[id] = &stored
			return pref, nil
		}
	}
	pref.ID = uuid.New().String()
	stored := pref
	repo.db.preferences[pref.ID] = &stored
	return pref, nil
}
