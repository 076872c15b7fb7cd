package school

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

var (
	// errors
	ErrNotFound         = errors.New("school not found")
	ErrRegionNotFound   = errors.New("region not found")
	ErrCityNotFound     = errors.New("city not found")
	ErrDistrictNotFound = errors.New("district not found")
	ErrNameExists       = errors.New("an entry with this name already exists")
	ErrHolidayExists    = errors.New("a holiday already exists for this school and date")
)

type (
	Repository interface {
		CreateRegion(ctx context.Context, region Region, exec ...core.DBExecutor) (Region, error)
		CreateCity(ctx context.Context, city City, exec ...core.DBExecutor) (City, error)
		CreateDistrict(ctx context.Context, district District, exec ...core.DBExecutor) (District, error)
		GetRegionByID(ctx context.Context, id string, exec ...core.DBExecutor) (Region, error)
		GetCityByID(ctx context.Context, id string, exec ...core.DBExecutor) (City, error)
		GetDistrictByID(ctx context.Context, id string, exec ...core.DBExecutor) (District, error)
		QueryRegions(ctx context.Context, exec ...core.DBExecutor) ([]Region, error)
		QueryCities(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]City, error)
		QueryDistricts(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]District, error)

		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchoolByID(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)

		CreateHoliday(ctx context.Context, hol Holiday, exec ...core.DBExecutor) (Holiday, error)
		// GetHoliday looks a holiday up by school and YYYY-MM-DD date.
		GetHoliday(ctx context.Context, schoolID, date string, exec ...core.DBExecutor) (Holiday, error)
		QueryHolidays(ctx context.Context, schoolID string, year, month int, exec ...core.DBExecutor) ([]Holiday, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

func (svc *Service) CreateRegion(ctx context.Context, name string) (Region, error) {
	return svc.repo.CreateRegion(ctx, Region{Name: core.CleanString(name)})
}

func (svc *Service) CreateCity(ctx context.Context, name, regionID string) (City, error) {
	if _, err := svc.repo.GetRegionByID(ctx, regionID); err != nil {
		return City{}, err
	}
	return svc.repo.CreateCity(ctx, City{Name: core.CleanString(name), RegionID: regionID})
}

func (svc *Service) CreateDistrict(ctx context.Context, name, regionID string) (District, error) {
	if _, err := svc.repo.GetRegionByID(ctx, regionID); err != nil {
		return District{}, err
	}
	return svc.repo.CreateDistrict(ctx, District{Name: core.CleanString(name), RegionID: regionID})
}

func (svc *Service) Regions(ctx context.Context) ([]Region, error) {
	return svc.repo.QueryRegions(ctx)
}

func (svc *Service) Cities(ctx context.Context, regionID string) ([]City, error) {
	return svc.repo.QueryCities(ctx, regionID)
}

func (svc *Service) Districts(ctx context.Context, regionID string) ([]District, error) {
	return svc.repo.QueryDistricts(ctx, regionID)
}

// Create registers a School after verifying its administrative references
// exist.
func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	if _, err := svc.repo.GetRegionByID(ctx, ns.RegionID); err != nil {
		return School{}, err
	}
	if _, err := svc.repo.GetCityByID(ctx, ns.CityID); err != nil {
		return School{}, err
	}
	if _, err := svc.repo.GetDistrictByID(ctx, ns.DistrictID); err != nil {
		return School{}, err
	}

	now := time.Now().UTC()
	sch := School{
		Name:       ns.Name,
		RegionID:   ns.RegionID,
		CityID:     ns.CityID,
		DistrictID: ns.DistrictID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ns.Address != "" {
		sch.Address = null.StringFrom(ns.Address)
	}
	if ns.Latitude != 0 || ns.Longitude != 0 {
		sch.Latitude = null.Float64From(ns.Latitude)
		sch.Longitude = null.Float64From(ns.Longitude)
	}
	if ns.Radius > 0 {
		sch.Radius = null.Float64From(ns.Radius)
	}
	return svc.repo.CreateSchool(ctx, sch)
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]School, error) {
	filter.Clean()
	return svc.repo.QuerySchools(ctx, filter)
}

// AssignPolicy points the school's default policy at policyID.
func (svc *Service) AssignPolicy(ctx context.Context, schoolID, policyID string) (School, error) {
	sch, err := svc.repo.GetSchoolByID(ctx, schoolID)
	if err != nil {
		return School{}, err
	}
	sch.PolicyID = null.StringFrom(policyID)
	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *Service) AddHoliday(ctx context.Context, nh NewHoliday) (Holiday, error) {
	if _, err := svc.repo.GetSchoolByID(ctx, nh.SchoolID); err != nil {
		return Holiday{}, err
	}
	return svc.repo.CreateHoliday(ctx, Holiday{
		SchoolID: nh.SchoolID,
		Date:     nh.Date,
		Name:     nh.Name,
		Mode:     nh.Mode,
	})
}

// HolidayOn returns the holiday entry for the given day, if any.
func (svc *Service) HolidayOn(ctx context.Context, schoolID string, day time.Time) (Holiday, bool, error) {
	hol, err := svc.repo.GetHoliday(ctx, schoolID, day.Format("2006-01-02"))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Holiday{}, false, nil
		}
		return Holiday{}, false, err
	}
	return hol, true, nil
}

// Schedule lists holidays for a month, for the calendar endpoint.
func (svc *Service) Schedule(ctx context.Context, schoolID string, year, month int) ([]Holiday, error) {
	return svc.repo.QueryHolidays(ctx, schoolID, year, month)
}
