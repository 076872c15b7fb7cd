package catalog

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// General types classify what an app or website is for.
const (
	GeneralTypeSocial        = "social"
	GeneralTypeEducation     = "education"
	GeneralTypeEntertainment = "entertainment"
	GeneralTypeGame          = "game"
	GeneralTypeMessaging     = "messaging"
	GeneralTypeUtility       = "utility"
)

// App types
const (
	AppTypeSystem    = "system"
	AppTypeInstalled = "installed"
)

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

var (
	AllGeneralTypes = []string{
		GeneralTypeSocial, GeneralTypeEducation, GeneralTypeEntertainment,
		GeneralTypeGame, GeneralTypeMessaging, GeneralTypeUtility,
	}
	AllAppTypes   = []string{AppTypeSystem, AppTypeInstalled}
	AllPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}
)

// App is a canonical catalog row, unique per package name.
type App struct {
	ID           string      `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Package      string      `json:"package" db:"package"`
	Icon         null.String `json:"icon" db:"icon"`
	GeneralType  null.String `json:"general_type" db:"general_type"`
	AppType      null.String `json:"app_type" db:"app_type"`
	Priority     null.String `json:"priority" db:"priority"`
	InstallCount int         `json:"install_count" db:"install_count"`
	AddedAt      time.Time   `json:"added_at" db:"added_at"`
}

// Website is a canonical catalog row, unique per domain.
type Website struct {
	ID          string      `json:"id" db:"id"`
	Domain      string      `json:"domain" db:"domain"`
	Name        string      `json:"name" db:"name"`
	Icon        null.String `json:"icon" db:"icon"`
	GeneralType null.String `json:"general_type" db:"general_type"`
	Priority    null.String `json:"priority" db:"priority"`
	VisitCount  int         `json:"visit_count" db:"visit_count"`
	AddedAt     time.Time   `json:"added_at" db:"added_at"`
}

// UserApp records that a user has an app installed. One row per (user, app);
// uninstalling deactivates the row, it is never deleted so activity history
// stays valid.
type UserApp struct {
	ID       string    `json:"id" db:"id"`
	UserID   string    `json:"user_id" db:"user_id"`
	AppID    string    `json:"app_id" db:"app_id"`
	IsActive bool      `json:"is_active" db:"is_active"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
}

type NewApp struct {
	Name        string `json:"name" validate:"required"`
	Package     string `json:"package" validate:"required"`
	GeneralType string `json:"general_type" validate:"omitempty,oneof=social education entertainment game messaging utility"`
	AppType     string `json:"app_type" validate:"omitempty,oneof=system installed"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

func (na *NewApp) Validate() error {
	na.Name = core.CleanString(na.Name)
	na.Package = core.CleanString(na.Package, true /* lower */)
	return core.Validate.Struct(na)
}

type NewWebsite struct {
	Domain      string `json:"domain" validate:"required,fqdn"`
	Name        string `json:"name" validate:"required"`
	GeneralType string `json:"general_type" validate:"omitempty,oneof=social education entertainment game messaging utility"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high"`
}

func (nw *NewWebsite) Validate() error {
	nw.Domain = core.CleanString(nw.Domain, true /* lower */)
	nw.Name = core.CleanString(nw.Name)
	return core.Validate.Struct(nw)
}

type QueryFilter struct {
	GeneralType string `query:"general_type"`
	AppType     string `query:"app_type"`
	Priority    string `query:"priority"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.GeneralType == "" && qf.AppType == "" && qf.Priority == ""
}
