package school

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// Region, City and District are administrative lookup tables; a School may
// only reference rows that already exist.
type (
	Region struct {
		ID   string `json:"id" db:"id"`
		Name string `json:"name" db:"name"`
	}

	City struct {
		ID       string `json:"id" db:"id"`
		Name     string `json:"name" db:"name"`
		RegionID string `json:"region_id" db:"region_id"`
	}

	District struct {
		ID       string `json:"id" db:"id"`
		Name     string `json:"name" db:"name"`
		RegionID string `json:"region_id" db:"region_id"`
	}
)

type School struct {
	ID         string       `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	Address    null.String  `json:"address" db:"address"`
	RegionID   string       `json:"region_id" db:"region_id"`
	CityID     string       `json:"city_id" db:"city_id"`
	DistrictID string       `json:"district_id" db:"district_id"`
	Latitude   null.Float64 `json:"latitude" db:"latitude"`
	Longitude  null.Float64 `json:"longitude" db:"longitude"`
	Radius     null.Float64 `json:"radius" db:"radius"` // meters
	PolicyID   null.String  `json:"policy_id" db:"policy_id"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// Holiday blocking modes: a holiday either lifts blocking entirely for the
// day or marks the day as running a modified schedule.
const (
	HolidayForceAllow = "force_allow"
	HolidayModified   = "modified"
)

// Holiday is a calendar entry overriding the school-hours schedule.
type Holiday struct {
	ID       string `json:"id" db:"id"`
	SchoolID string `json:"school_id" db:"school_id"`
	Date     string `json:"date" db:"date"` // YYYY-MM-DD
	Name     string `json:"name" db:"name"`
	Mode     string `json:"mode" db:"mode"`
}

type NewSchool struct {
	Name       string  `json:"name" validate:"required"`
	Address    string  `json:"address"`
	RegionID   string  `json:"region_id" validate:"required"`
	CityID     string  `json:"city_id" validate:"required"`
	DistrictID string  `json:"district_id" validate:"required"`
	Latitude   float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Radius     float64 `json:"radius" validate:"omitempty,gt=0"`
}

func (ns *NewSchool) Validate() error {
	ns.Name = core.CleanString(ns.Name)
	ns.Address = core.CleanString(ns.Address)
	return core.Validate.Struct(ns)
}

type NewHoliday struct {
	SchoolID string `json:"school_id" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Name     string `json:"name" validate:"required"`
	Mode     string `json:"mode" validate:"required,oneof=force_allow modified"`
}

func (nh *NewHoliday) Validate() error {
	nh.Name = core.CleanString(nh.Name)
	return core.Validate.Struct(nh)
}

type QueryFilter struct {
	Search     string `query:"search"`
	RegionID   string `query:"region_id"`
	CityID     string `query:"city_id"`
	DistrictID string `query:"district_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
