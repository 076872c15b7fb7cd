package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
)

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

// trapNoRowsErr maps psql "no rows" err to the given sentinel.
func trapNoRowsErr(err, sentinel error, msg string) error {
	if err == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

const roleColumns = `id, name, user_level, school_id, created_at, updated_at`

func (repo userRepository) EnsureRole(ctx context.Context, name, schoolID string, exec ...core.DBExecutor) (user.Role, error) {
	role, err := repo.getRole(ctx, name, schoolID, exec)
	if err == nil {
		return role, nil
	}
	if errors.Cause(err) != user.ErrRoleNotFound {
		return user.Role{}, err
	}

	role = user.Role{
		ID:        uuid.New().String(),
		Name:      name,
		Level:     user.RoleLevel(name),
		SchoolID:  null.NewString(schoolID, schoolID != ""),
		CreatedAt: time.Now().UTC(),
	}
	role.UpdatedAt = role.CreatedAt

	const q = `INSERT INTO user_role (id, name, user_level, school_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = getExec(repo.exec, exec).ExecContext(ctx, q,
		role.ID, role.Name, role.Level, role.SchoolID, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		// racing insert; the surviving row wins
		if isUniqueViolation(err, "") {
			return repo.getRole(ctx, name, schoolID, exec)
		}
		return user.Role{}, errors.Wrap(err, "inserting role")
	}
	return role, nil
}

func (repo userRepository) getRole(ctx context.Context, name, schoolID string, exec []core.DBExecutor) (user.Role, error) {
	var role user.Role
	q := `SELECT ` + roleColumns + ` FROM user_role WHERE name = $1 AND school_id IS NULL`
	args := []interface{}{name}
	if schoolID != "" {
		q = `SELECT ` + roleColumns + ` FROM user_role WHERE name = $1 AND school_id = $2`
		args = append(args, schoolID)
	}
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &role, q, args...); err != nil {
		return user.Role{}, trapNoRowsErr(err, user.ErrRoleNotFound, "finding role")
	}
	return role, nil
}

func (repo userRepository) GetRoleByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.Role, error) {
	var role user.Role
	const q = `SELECT ` + roleColumns + ` FROM user_role WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &role, q, id); err != nil {
		return user.Role{}, trapNoRowsErr(err, user.ErrRoleNotFound, "finding role by ID")
	}
	return role, nil
}

const userColumns = `id, phone_number, username, password_hash, role_id, created_at, updated_at, last_login`

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()

	const q = `INSERT INTO "user" (id, phone_number, username, password_hash, role_id, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		usr.ID, usr.PhoneNumber, usr.Username, usr.PasswordHash, usr.RoleID,
		usr.CreatedAt, usr.UpdatedAt, usr.LastLogin)
	if err != nil {
		switch {
		case isUniqueViolation(err, "user_phone_number_role_id_key"):
			return user.User{}, user.ErrPhoneExists
		case isUniqueViolation(err, "user_username_key"):
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	var usr user.User
	const q = `SELECT ` + userColumns + ` FROM "user" WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &usr, q, id); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by ID")
	}
	return repo.attachRole(ctx, usr, exec)
}

func (repo userRepository) GetUserByPhone(ctx context.Context, phone, roleName string, exec ...core.DBExecutor) (user.User, error) {
	var usr user.User
	const q = `SELECT u.id, u.phone_number, u.username, u.password_hash, u.role_id, u.created_at, u.updated_at, u.last_login
		FROM "user" u JOIN user_role r ON r.id = u.role_id
		WHERE u.phone_number = $1 AND r.name = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &usr, q, phone, roleName); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user by phone")
	}
	return repo.attachRole(ctx, usr, exec)
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	q := `SELECT u.id, u.phone_number, u.username, u.password_hash, u.role_id, u.created_at, u.updated_at, u.last_login
		FROM "user" u JOIN user_role r ON r.id = u.role_id WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		q += ` AND (u.phone_number ILIKE ` + p + ` OR u.username ILIKE ` + p + `)`
	}
	if filter.RoleName != "" {
		q += ` AND r.name = ` + arg(filter.RoleName)
	}
	if filter.SchoolID != "" {
		q += ` AND r.school_id = ` + arg(filter.SchoolID)
	}
	if !filter.CreatedFrom.IsZero() {
		q += ` AND u.created_at >= ` + arg(filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		q += ` AND u.created_at <= ` + arg(filter.CreatedTo.UTC())
	}
	q += ` ORDER BY u.created_at DESC`

	var users []user.User
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &users, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.attachRoles(ctx, users, exec)
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.UpdatedAt = time.Now().UTC()

	const q = `UPDATE "user" SET phone_number = $2, username = $3, password_hash = $4,
		role_id = $5, updated_at = $6, last_login = $7 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		usr.ID, usr.PhoneNumber, usr.Username, usr.PasswordHash, usr.RoleID, usr.UpdatedAt, usr.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.attachRole(ctx, usr, exec)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	exe := getExec(repo.exec, exec)
	if _, err = exe.ExecContext(ctx, exe.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo userRepository) attachRole(ctx context.Context, usr user.User, exec []core.DBExecutor) (user.User, error) {
	role, err := repo.GetRoleByID(ctx, usr.RoleID, exec...)
	if err != nil {
		return user.User{}, err
	}
	usr.Role = role
	return usr, nil
}

func (repo userRepository) attachRoles(ctx context.Context, users []user.User, exec []core.DBExecutor) ([]user.User, error) {
	if len(users) == 0 {
		return users, nil
	}
	ids := make([]string, 0, len(users))
	for _, usr := range users {
		ids = append(ids, usr.RoleID)
	}
	q, args, err := sqlx.In(`SELECT `+roleColumns+` FROM user_role WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building roles query")
	}
	exe := getExec(repo.exec, exec)
	var roles []user.Role
	if err = sqlx.SelectContext(ctx, exe, &roles, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying roles")
	}
	byID := make(map[string]user.Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	for i := range users {
		users[i].Role = byID[users[i].RoleID]
	}
	return users, nil
}

const studentProfileColumns = `id, user_id, first_name, last_name, patronymic, age, gender, school_id, shift, father_id, mother_id`

func (repo userRepository) CreateStudentProfile(ctx context.Context, prof user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	prof.ID = uuid.New().String()

	const q = `INSERT INTO student_profile (id, user_id, first_name, last_name, patronymic, age, gender, school_id, shift, father_id, mother_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		prof.ID, prof.UserID, prof.FirstName, prof.LastName, prof.Patronymic,
		prof.Age, prof.Gender, prof.SchoolID, prof.Shift, prof.FatherID, prof.MotherID)
	if err != nil {
		return user.StudentProfile{}, errors.Wrap(err, "inserting student profile")
	}
	return prof, nil
}

func (repo userRepository) CreateParentProfile(ctx context.Context, prof user.ParentProfile, exec ...core.DBExecutor) (user.ParentProfile, error) {
	prof.ID = uuid.New().String()

	const q = `INSERT INTO parent_profile (id, user_id, first_name, last_name, patronymic, age, gender, passport_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		prof.ID, prof.UserID, prof.FirstName, prof.LastName, prof.Patronymic,
		prof.Age, prof.Gender, prof.PassportID)
	if err != nil {
		return user.ParentProfile{}, errors.Wrap(err, "inserting parent profile")
	}
	return prof, nil
}

func (repo userRepository) GetStudentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.StudentProfile, error) {
	var prof user.StudentProfile
	const q = `SELECT ` + studentProfileColumns + ` FROM student_profile WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &prof, q, userID); err != nil {
		return user.StudentProfile{}, trapNoRowsErr(err, user.ErrNotFound, "finding student profile")
	}
	return prof, nil
}

func (repo userRepository) GetParentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.ParentProfile, error) {
	var prof user.ParentProfile
	const q = `SELECT id, user_id, first_name, last_name, patronymic, age, gender, passport_id
		FROM parent_profile WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &prof, q, userID); err != nil {
		return user.ParentProfile{}, trapNoRowsErr(err, user.ErrNotFound, "finding parent profile")
	}
	return prof, nil
}

func (repo userRepository) UpdateStudentProfile(ctx context.Context, prof user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	const q = `UPDATE student_profile SET first_name = $2, last_name = $3, patronymic = $4,
		age = $5, gender = $6, school_id = $7, shift = $8, father_id = $9, mother_id = $10
		WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		prof.ID, prof.FirstName, prof.LastName, prof.Patronymic,
		prof.Age, prof.Gender, prof.SchoolID, prof.Shift, prof.FatherID, prof.MotherID)
	if err != nil {
		return user.StudentProfile{}, errors.Wrap(err, "updating student profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.StudentProfile{}, user.ErrNotFound
	}
	return prof, nil
}

func (repo userRepository) UpdateParentProfile(ctx context.Context, prof user.ParentProfile, exec ...core.DBExecutor) (user.ParentProfile, error) {
	const q = `UPDATE parent_profile SET first_name = $2, last_name = $3, patronymic = $4,
		age = $5, gender = $6, passport_id = $7 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		prof.ID, prof.FirstName, prof.LastName, prof.Patronymic,
		prof.Age, prof.Gender, prof.PassportID)
	if err != nil {
		return user.ParentProfile{}, errors.Wrap(err, "updating parent profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ParentProfile{}, user.ErrNotFound
	}
	return prof, nil
}

func (repo userRepository) GetChildren(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]user.User, error) {
	const q = `SELECT u.id, u.phone_number, u.username, u.password_hash, u.role_id, u.created_at, u.updated_at, u.last_login
		FROM "user" u JOIN student_profile sp ON sp.user_id = u.id
		WHERE sp.father_id = $1 OR sp.mother_id = $1
		ORDER BY u.created_at`
	var users []user.User
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &users, q, parentID); err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	return repo.attachRoles(ctx, users, exec)
}

func (repo userRepository) GetPreference(ctx context.Context, userID string, exec ...core.DBExecutor) (user.Preference, error) {
	var pref user.Preference
	const q = `SELECT id, user_id, language, theme, notifications_enabled FROM user_preference WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &pref, q, userID); err != nil {
		return user.Preference{}, trapNoRowsErr(err, user.ErrNotFound, "finding preference")
	}
	return pref, nil
}

func (repo userRepository) SavePreference(ctx context.Context, pref user.Preference, exec ...core.DBExecutor) (user.Preference, error) {
	if pref.ID == "" {
		pref.ID = uuid.New().String()
	}
	const q = `INSERT INTO user_preference (id, user_id, language, theme, notifications_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET language = $3, theme = $4, notifications_enabled = $5`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		pref.ID, pref.UserID, pref.Language, pref.Theme, pref.NotificationsEnabled)
	if err != nil {
		return user.Preference{}, errors.Wrap(err, "saving preference")
	}
	return repo.GetPreference(ctx, pref.UserID, exec...)
}
