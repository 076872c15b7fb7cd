package activity

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// Action degrees, from harmless to alarming.
const (
	DegreeNormal     = "normal"
	DegreeSuspicious = "suspicious"
	DegreeTerrible   = "terrible"
)

var AllDegrees = []string{DegreeNormal, DegreeSuspicious, DegreeTerrible}

// Action is a named kind of logged behavior with a severity degree.
type Action struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Degree string `json:"degree" db:"degree"`
}

// Log is one append-only activity record reported by a device agent. It is
// never updated after creation. Minutes carries the session length when the
// record describes app usage.
type Log struct {
	ID           string      `json:"id" db:"id"`
	UserID       string      `json:"user_id" db:"user_id"`
	UserDeviceID string      `json:"user_device_id" db:"user_device_id"`
	UserAppID    null.String `json:"user_app_id" db:"user_app_id"`
	AppID        null.String `json:"app_id" db:"app_id"`
	ActionID     string      `json:"action_id" db:"action_id"`
	Degree       string      `json:"degree" db:"degree"`
	Details      null.String `json:"details" db:"details"`
	Minutes      null.Int    `json:"minutes" db:"minutes"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

type NewAction struct {
	Name   string `json:"name" validate:"required"`
	Degree string `json:"degree" validate:"required,oneof=normal suspicious terrible"`
}

func (na *NewAction) Validate() error {
	na.Name = core.CleanString(na.Name, true /* lower */)
	return core.Validate.Struct(na)
}

type NewLog struct {
	UserDeviceID string `json:"user_device_id" validate:"required"`
	AppID        string `json:"app_id"`
	ActionID     string `json:"action_id" validate:"required"`
	Details      string `json:"details" validate:"omitempty,max=1000"`
	Minutes      int    `json:"minutes" validate:"omitempty,gte=0,lte=1440"`
}

func (nl *NewLog) Validate() error {
	nl.Details = core.CleanString(nl.Details)
	return core.Validate.Struct(nl)
}

type QueryFilter struct {
	UserID       string    `query:"user_id"`
	UserDeviceID string    `query:"user_device_id"`
	AppID        string    `query:"app_id"`
	Degree       string    `query:"degree"`
	From         time.Time `query:"from"`
	To           time.Time `query:"to"`
}

// Summary aggregates a user's logs over a window.
type Summary struct {
	UserID   string         `json:"user_id"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Total    int            `json:"total"`
	ByDegree map[string]int `json:"by_degree"`
	TopApps  []AppUsage     `json:"top_apps"`
}

// AppUsage is one app's aggregated minutes within a summary window.
type AppUsage struct {
	AppID   string `json:"app_id" db:"app_id"`
	Minutes int    `json:"minutes" db:"minutes"`
}
