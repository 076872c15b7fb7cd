package user

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/newedu/guardian/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrPhoneExists          = errors.New("a user with this phone number and role already exists")
	ErrUsernameExists       = errors.New("a user with this username already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// dummyHash keeps Authenticate timing uniform when the user does not exist.
	dummyHash, _ = bcrypt.GenerateFromPassword([]byte("guardian.dummy"), bcrypt.DefaultCost)
)

type (
	Repository interface {
		EnsureRole(ctx context.Context, name, schoolID string, exec ...core.DBExecutor) (Role, error)
		GetRoleByID(ctx context.Context, id string, exec ...core.DBExecutor) (Role, error)

		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByPhone(ctx context.Context, phone, roleName string, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND on available QueryFilter fields; Search does a
		// case-insensitive match on phone number or username.
		QueryUsers(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error

		CreateStudentProfile(ctx context.Context, prof StudentProfile, exec ...core.DBExecutor) (StudentProfile, error)
		CreateParentProfile(ctx context.Context, prof ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)
		GetStudentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (StudentProfile, error)
		GetParentProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (ParentProfile, error)
		UpdateStudentProfile(ctx context.Context, prof StudentProfile, exec ...core.DBExecutor) (StudentProfile, error)
		UpdateParentProfile(ctx context.Context, prof ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)
		// GetChildren resolves students whose profile references parentID as
		// father or mother.
		GetChildren(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]User, error)

		GetPreference(ctx context.Context, userID string, exec ...core.DBExecutor) (Preference, error)
		// SavePreference inserts or updates the single row per user; the
		// storage layer holds a unique (user_id) constraint.
		SavePreference(ctx context.Context, pref Preference, exec ...core.DBExecutor) (Preference, error)
	}

	Service struct {
		db   core.DB
		repo Repository
		sms  core.SMSService
		otp  core.OTPStore
		conf *core.Config
	}
)

func NewService(db core.DB, repo Repository, sms core.SMSService, otp core.OTPStore, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, sms: sms, otp: otp, conf: conf}
}

func (svc *Service) newUser(nu NewUser, role Role) (User, error) {
	now := time.Now().UTC()
	usr := User{
		PhoneNumber: nu.PhoneNumber,
		Username:    nu.Username,
		RoleID:      role.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Role:        role,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return usr, nil
}

// RegisterStudent creates a student account and its profile atomically:
// either both rows exist afterwards or neither does.
func (svc *Service) RegisterStudent(ctx context.Context, ns NewStudent) (User, error) {
	var usr User
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		role, err := svc.repo.EnsureRole(ctx, RoleStudent, ns.SchoolID, tx)
		if err != nil {
			return errors.Wrap(err, "ensuring student role")
		}
		if usr, err = svc.newUser(ns.NewUser, role); err != nil {
			return err
		}
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return err
		}

		prof := StudentProfile{
			UserID:     usr.ID,
			FirstName:  ns.FirstName,
			LastName:   ns.LastName,
			Patronymic: ns.Patronymic,
			SchoolID:   ns.SchoolID,
		}
		if ns.Age > 0 {
			prof.Age = null.IntFrom(ns.Age)
		}
		if ns.Gender != "" {
			prof.Gender = null.StringFrom(ns.Gender)
		}
		if ns.Shift != "" {
			prof.Shift = null.StringFrom(ns.Shift)
		}
		if prof.FatherID, err = svc.parentRef(ctx, ns.FatherPhone, "father_phone", tx); err != nil {
			return err
		}
		if prof.MotherID, err = svc.parentRef(ctx, ns.MotherPhone, "mother_phone", tx); err != nil {
			return err
		}
		_, err = svc.repo.CreateStudentProfile(ctx, prof, tx)
		return errors.Wrap(err, "creating student profile")
	})
	if err != nil {
		return User{}, err
	}

	svc.sendWelcomeSMS(usr)
	return usr, nil
}

// parentRef resolves an optional parent phone number to a user reference.
func (svc *Service) parentRef(ctx context.Context, phone, field string, exec ...core.DBExecutor) (null.String, error) {
	if phone == "" {
		return null.String{}, nil
	}
	parent, err := svc.repo.GetUserByPhone(ctx, phone, RoleParent, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return null.String{}, core.NewValidationError(err,
				core.FieldError{Field: field, Error: "no parent account with this phone number"})
		}
		return null.String{}, errors.Wrap(err, "resolving parent reference")
	}
	return null.StringFrom(parent.ID), nil
}

// RegisterParent creates a parent account and its profile atomically.
func (svc *Service) RegisterParent(ctx context.Context, np NewParent) (User, error) {
	var usr User
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		role, err := svc.repo.EnsureRole(ctx, RoleParent, "", tx)
		if err != nil {
			return errors.Wrap(err, "ensuring parent role")
		}
		if usr, err = svc.newUser(np.NewUser, role); err != nil {
			return err
		}
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return err
		}

		prof := ParentProfile{
			UserID:     usr.ID,
			FirstName:  np.FirstName,
			LastName:   np.LastName,
			Patronymic: np.Patronymic,
		}
		if np.Age > 0 {
			prof.Age = null.IntFrom(np.Age)
		}
		if np.Gender != "" {
			prof.Gender = null.StringFrom(np.Gender)
		}
		if np.PassportID != "" {
			prof.PassportID = null.StringFrom(np.PassportID)
		}
		_, err = svc.repo.CreateParentProfile(ctx, prof, tx)
		return errors.Wrap(err, "creating parent profile")
	})
	if err != nil {
		return User{}, err
	}

	svc.sendWelcomeSMS(usr)
	return usr, nil
}

// RegisterTeacher creates a teacher account scoped to a school.
func (svc *Service) RegisterTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	var usr User
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		role, err := svc.repo.EnsureRole(ctx, RoleTeacher, nt.SchoolID, tx)
		if err != nil {
			return errors.Wrap(err, "ensuring teacher role")
		}
		if usr, err = svc.newUser(nt.NewUser, role); err != nil {
			return err
		}
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// RegisterAdmin creates an administrator account.
func (svc *Service) RegisterAdmin(ctx context.Context, na NewAdmin) (User, error) {
	var usr User
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		role, err := svc.repo.EnsureRole(ctx, RoleAdmin, "", tx)
		if err != nil {
			return errors.Wrap(err, "ensuring admin role")
		}
		if usr, err = svc.newUser(na.NewUser, role); err != nil {
			return err
		}
		usr, err = svc.repo.CreateUser(ctx, usr, tx)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// Authenticate verifies credentials for a (phone, role) pair. A missing
// account and a wrong password are indistinguishable to the caller.
func (svc *Service) Authenticate(ctx context.Context, phone, password, roleName string) (User, error) {
	usr, err := svc.repo.GetUserByPhone(ctx, core.CleanString(phone), roleName)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			// burn the same cost as a real comparison
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by phone")
	}
	if err = usr.CheckPassword(password); err != nil {
		return User{}, ErrAuthenticationFailed
	}

	usr.LastLogin = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

// PhoneExists reports whether an account exists for the (phone, role) pair.
func (svc *Service) PhoneExists(ctx context.Context, phone, roleName string) (bool, error) {
	_, err := svc.repo.GetUserByPhone(ctx, core.CleanString(phone), roleName)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "checking phone")
	}
	return true, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	filter.Clean()
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids)
}

func (svc *Service) StudentProfile(ctx context.Context, userID string) (StudentProfile, error) {
	return svc.repo.GetStudentProfile(ctx, userID)
}

func (svc *Service) ParentProfile(ctx context.Context, userID string) (ParentProfile, error) {
	return svc.repo.GetParentProfile(ctx, userID)
}

func (svc *Service) UpdateStudentProfile(ctx context.Context, prof StudentProfile) (StudentProfile, error) {
	return svc.repo.UpdateStudentProfile(ctx, prof)
}

func (svc *Service) UpdateParentProfile(ctx context.Context, prof ParentProfile) (ParentProfile, error) {
	return svc.repo.UpdateParentProfile(ctx, prof)
}

// ChildrenOf resolves the students linked to a parent via their profiles'
// father/mother references.
func (svc *Service) ChildrenOf(ctx context.Context, parentID string) ([]User, error) {
	return svc.repo.GetChildren(ctx, parentID)
}

// IsParentOf reports whether childID's profile references parentID.
func (svc *Service) IsParentOf(ctx context.Context, parentID, childID string) (bool, error) {
	children, err := svc.repo.GetChildren(ctx, parentID)
	if err != nil {
		return false, err
	}
	for _, child := range children {
		if child.ID == childID {
			return true, nil
		}
	}
	return false, nil
}

// Preferences returns the user's settings, or an empty default set when none
// have been written yet.
func (svc *Service) Preferences(ctx context.Context, userID string) (Preference, error) {
	pref, err := svc.repo.GetPreference(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Preference{UserID: userID}, nil
		}
		return Preference{}, err
	}
	return pref, nil
}

// SetPreferences lazily creates the preference row on first write and patches
// only the provided fields.
func (svc *Service) SetPreferences(ctx context.Context, userID string, patch PreferencePatch) (Preference, error) {
	pref, err := svc.repo.GetPreference(ctx, userID)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return Preference{}, err
		}
		pref = Preference{UserID: userID}
	}
	if patch.Language != nil {
		pref.Language = null.StringFrom(*patch.Language)
	}
	if patch.Theme != nil {
		pref.Theme = null.StringFrom(*patch.Theme)
	}
	if patch.NotificationsEnabled != nil {
		pref.NotificationsEnabled = null.BoolFrom(*patch.NotificationsEnabled)
	}
	return svc.repo.SavePreference(ctx, pref)
}

// StartPhoneVerification stores a one-time code for the phone number and
// dispatches it by SMS. The SMS send is fire-and-forget.
func (svc *Service) StartPhoneVerification(ctx context.Context, phone string) error {
	code, err := generateOTP()
	if err != nil {
		return errors.Wrap(err, "generating verification code")
	}
	if err = svc.otp.Store(ctx, phone, code, svc.conf.OTPTTL); err != nil {
		return errors.Wrap(err, "storing verification code")
	}
	svc.sms.SendMessages(&core.SMSMessage{
		To:   phone,
		Body: fmt.Sprintf("%s verification code: %s", svc.conf.AppName, code),
	})
	return nil
}

// ConfirmPhoneVerification consumes the code on success.
func (svc *Service) ConfirmPhoneVerification(ctx context.Context, phone, code string) (bool, error) {
	ok, err := svc.otp.Check(ctx, phone, code)
	if err != nil {
		if errors.Cause(err) == core.ErrOTPNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "checking verification code")
	}
	return ok, nil
}

func (svc *Service) sendWelcomeSMS(usr User) {
	svc.sms.SendMessages(&core.SMSMessage{
		To:   usr.PhoneNumber,
		Body: fmt.Sprintf("Welcome to %s! Your %s account is ready.", svc.conf.AppName, usr.Role.Name),
	})
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
