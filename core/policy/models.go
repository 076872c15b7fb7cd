package policy

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// TargetKind discriminates what a rule or lookup refers to.
type TargetKind string

const (
	TargetApp TargetKind = "app"
	TargetWeb TargetKind = "web"
)

// Target identifies an app or website being resolved.
type Target struct {
	Kind TargetKind
	ID   string
}

func AppTarget(id string) Target { return Target{Kind: TargetApp, ID: id} }
func WebTarget(id string) Target { return Target{Kind: TargetWeb, ID: id} }

// Policy is a named rule set applied to one role (and, through a school's
// default policy, one school). Whitelist mode means default-deny-except-
// listed; blacklist mode means default-allow-except-listed. App and web
// targets carry independent modes.
//
// BlockStart/BlockEnd/SchoolDays describe the school-hours window evaluated
// on top of the list result; both layers must allow a target for access to
// be granted.
type Policy struct {
	ID             string      `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	IsWhitelistApp bool        `json:"is_whitelist_app" db:"is_whitelist_app"`
	IsWhitelistWeb bool        `json:"is_whitelist_web" db:"is_whitelist_web"`
	TargetRoleID   string      `json:"target_role_id" db:"target_role_id"`
	BlockStart     null.String `json:"block_start" db:"block_start"` // "15:04"
	BlockEnd       null.String `json:"block_end" db:"block_end"`
	SchoolDays     null.String `json:"school_days" db:"school_days"` // e.g. "12345", Mon=1
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Entry is one PolicyApp/PolicyWeb row. Duration, when set, is a per-day
// usage budget in minutes for whitelist entries. The same target may appear
// under one policy multiple times only with distinct duration values.
type Entry struct {
	ID       string     `json:"id" db:"id"`
	PolicyID string     `json:"policy_id" db:"policy_id"`
	Kind     TargetKind `json:"kind" db:"kind"`
	TargetID string     `json:"target_id" db:"target_id"`
	Duration null.Int   `json:"duration" db:"duration"` // minutes per day
}

// Exception grants one user access to one app regardless of policy; it is
// how an approved unblock request takes effect. A null expiry never lapses.
type Exception struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	AppID     string    `json:"app_id" db:"app_id"`
	GrantedBy string    `json:"granted_by" db:"granted_by"`
	ExpiresAt null.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (e Exception) ActiveAt(t time.Time) bool {
	return !e.ExpiresAt.Valid || e.ExpiresAt.Time.After(t)
}

// Decision is the outcome of a blocking resolution.
type Decision struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason"`
}

// Decision reasons
const (
	ReasonException   = "approved exception"
	ReasonNoPolicy    = "no policy applies"
	ReasonWhitelisted = "whitelisted"
	ReasonNotListed   = "not in whitelist"
	ReasonBlacklisted = "blacklisted"
	ReasonAllowed     = "allowed"
	ReasonBudgetSpent = "daily usage budget exhausted"
	ReasonSchoolHours = "school hours"
	ReasonHoliday     = "holiday"
)

type NewPolicy struct {
	Name           string `json:"name" validate:"required"`
	IsWhitelistApp bool   `json:"is_whitelist_app"`
	IsWhitelistWeb bool   `json:"is_whitelist_web"`
	TargetRoleID   string `json:"target_role_id" validate:"required"`
	BlockStart     string `json:"block_start" validate:"omitempty,datetime=15:04"`
	BlockEnd       string `json:"block_end" validate:"omitempty,datetime=15:04,required_with=BlockStart"`
	SchoolDays     string `json:"school_days" validate:"omitempty,max=7,numeric"`
}

func (np *NewPolicy) Validate() error {
	np.Name = core.CleanString(np.Name)
	return core.Validate.Struct(np)
}

type NewEntry struct {
	PolicyID string `json:"policy_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
	// Duration in minutes per day; nil means unlimited.
	Duration *int `json:"duration" validate:"omitempty,gt=0,lte=1440"`
}

func (ne *NewEntry) Validate() error { return core.Validate.Struct(ne) }
