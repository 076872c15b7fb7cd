package user

import (
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/newedu/guardian/core"
)

// Role names. Every user holds exactly one role; student and teacher roles
// may additionally be scoped to a school.
const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleParent, RoleTeacher, RoleAdmin}

	roleLevels = map[string]int{
		RoleAdmin:   30,
		RoleTeacher: 20,
		RoleParent:  10,
		RoleStudent: 1,
	}
)

func RoleLevel(name string) int {
	return roleLevels[name]
}

// Role is the persisted user type (student/parent/teacher/admin), optionally
// scoped to a school.
type Role struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Level     int         `json:"level" db:"user_level"`
	SchoolID  null.String `json:"school_id" db:"school_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

type User struct {
	ID           string    `json:"id" db:"id"`
	PhoneNumber  string    `json:"phone_number" db:"phone_number"`
	Username     string    `json:"username" db:"username"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	RoleID       string    `json:"role_id" db:"role_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login" db:"last_login"` // UTC

	Role Role `json:"role" db:"-"`
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsStudent() bool { return u.Role.Name == RoleStudent }
func (u *User) IsParent() bool  { return u.Role.Name == RoleParent }
func (u *User) IsTeacher() bool { return u.Role.Name == RoleTeacher }
func (u *User) IsAdmin() bool   { return u.Role.Name == RoleAdmin }

// Genders
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// School shifts
const (
	ShiftMorning   = "morning"
	ShiftAfternoon = "afternoon"
)

// StudentProfile is the 1:1 extension of a student User. Father and mother
// are ownership-free back-references to parent Users: deleting a parent never
// cascades to the student.
type StudentProfile struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"user_id" db:"user_id"`
	FirstName  string      `json:"first_name" db:"first_name"`
	LastName   string      `json:"last_name" db:"last_name"`
	Patronymic string      `json:"patronymic" db:"patronymic"`
	Age        null.Int    `json:"age" db:"age"`
	Gender     null.String `json:"gender" db:"gender"`
	SchoolID   string      `json:"school_id" db:"school_id"`
	Shift      null.String `json:"shift" db:"shift"`
	FatherID   null.String `json:"father_id" db:"father_id"`
	MotherID   null.String `json:"mother_id" db:"mother_id"`
}

// ParentProfile is the 1:1 extension of a parent User.
type ParentProfile struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"user_id" db:"user_id"`
	FirstName  string      `json:"first_name" db:"first_name"`
	LastName   string      `json:"last_name" db:"last_name"`
	Patronymic string      `json:"patronymic" db:"patronymic"`
	Age        null.Int    `json:"age" db:"age"`
	Gender     null.String `json:"gender" db:"gender"`
	PassportID null.String `json:"passport_id" db:"passport_id"`
}

// Preference languages & themes
const (
	LanguageUzbek   = "uz"
	LanguageRussian = "ru"
	LanguageEnglish = "en"

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

var (
	AllLanguages = []string{LanguageUzbek, LanguageRussian, LanguageEnglish}
	AllThemes    = []string{ThemeLight, ThemeDark, ThemeSystem}
)

// Preference holds per-user settings, created lazily on first write.
type Preference struct {
	ID                   string      `json:"id" db:"id"`
	UserID               string      `json:"user_id" db:"user_id"`
	Language             null.String `json:"language" db:"language"`
	Theme                null.String `json:"theme" db:"theme"`
	NotificationsEnabled null.Bool   `json:"notifications_enabled" db:"notifications_enabled"`
}

// NewUser contains the account fields shared by all registrations.
type NewUser struct {
	PhoneNumber     string `json:"phone_number" validate:"required,uzphone"`
	Username        string `json:"username" validate:"omitempty,min=4,alphanum_"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) clean() {
	nu.PhoneNumber = core.CleanString(nu.PhoneNumber)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
}

// NewStudent registers a student account plus its profile in one unit.
type NewStudent struct {
	NewUser
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Patronymic  string `json:"patronymic"`
	Age         int    `json:"age" validate:"omitempty,gte=6,lte=19"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female"`
	SchoolID    string `json:"school_id" validate:"required"`
	Shift       string `json:"shift" validate:"omitempty,oneof=morning afternoon"`
	FatherPhone string `json:"father_phone" validate:"omitempty,uzphone"`
	MotherPhone string `json:"mother_phone" validate:"omitempty,uzphone"`
}

func (ns *NewStudent) Validate() error {
	ns.clean()
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Patronymic = core.CleanString(ns.Patronymic)
	return core.Validate.Struct(ns)
}

// NewParent registers a parent account plus its profile.
type NewParent struct {
	NewUser
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Patronymic string `json:"patronymic"`
	Age        int    `json:"age" validate:"omitempty,gte=18,lte=100"`
	Gender     string `json:"gender" validate:"omitempty,oneof=male female"`
	PassportID string `json:"passport_id"`
}

func (np *NewParent) Validate() error {
	np.clean()
	np.FirstName = core.CleanString(np.FirstName)
	np.LastName = core.CleanString(np.LastName)
	np.Patronymic = core.CleanString(np.Patronymic)
	return core.Validate.Struct(np)
}

// NewTeacher registers a teacher account scoped to a school.
type NewTeacher struct {
	NewUser
	SchoolID string `json:"school_id" validate:"required"`
}

func (nt *NewTeacher) Validate() error {
	nt.clean()
	return core.Validate.Struct(nt)
}

// NewAdmin registers an administrator account.
type NewAdmin struct {
	NewUser
}

func (na *NewAdmin) Validate() error {
	na.clean()
	return core.Validate.Struct(na)
}

// PreferencePatch updates only the fields provided.
type PreferencePatch struct {
	Language             *string `json:"language" validate:"omitempty,oneof=uz ru en"`
	Theme                *string `json:"theme" validate:"omitempty,oneof=light dark system"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

func (pp *PreferencePatch) Validate() error { return core.Validate.Struct(pp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	RoleName    string    `query:"role"`
	SchoolID    string    `query:"school_id"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.RoleName == "" && qf.SchoolID == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.RoleName = core.CleanString(qf.RoleName, true /* lower */)
}
