package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/school"
)

type schoolRepository struct {
	exec core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{exec: exec}
}

func (repo schoolRepository) CreateRegion(ctx context.Context, region school.Region, exec ...core.DBExecutor) (school.Region, error) {
	region.ID = uuid.New().String()
	_, err := getExec(repo.exec, exec).ExecContext(ctx,
		`INSERT INTO region (id, name) VALUES ($1, $2)`, region.ID, region.Name)
	if err != nil {
		if isUniqueViolation(err, "") {
			return school.Region{}, school.ErrNameExists
		}
		return school.Region{}, errors.Wrap(err, "inserting region")
	}
	return region, nil
}

func (repo schoolRepository) CreateCity(ctx context.Context, city school.City, exec ...core.DBExecutor) (school.City, error) {
	city.ID = uuid.New().String()
	_, err := getExec(repo.exec, exec).ExecContext(ctx,
		`INSERT INTO city (id, name, region_id) VALUES ($1, $2, $3)`, city.ID, city.Name, city.RegionID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return school.City{}, school.ErrNameExists
		}
		return school.City{}, errors.Wrap(err, "inserting city")
	}
	return city, nil
}

func (repo schoolRepository) CreateDistrict(ctx context.Context, district school.District, exec ...core.DBExecutor) (school.District, error) {
	district.ID = uuid.New().String()
	_, err := getExec(repo.exec, exec).ExecContext(ctx,
		`INSERT INTO district (id, name, region_id) VALUES ($1, $2, $3)`, district.ID, district.Name, district.RegionID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return school.District{}, school.ErrNameExists
		}
		return school.District{}, errors.Wrap(err, "inserting district")
	}
	return district, nil
}

func (repo schoolRepository) GetRegionByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Region, error) {
	var region school.Region
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &region,
		`SELECT id, name FROM region WHERE id = $1`, id); err != nil {
		return school.Region{}, trapNoRowsErr(err, school.ErrRegionNotFound, "finding region")
	}
	return region, nil
}

func (repo schoolRepository) GetCityByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.City, error) {
	var city school.City
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &city,
		`SELECT id, name, region_id FROM city WHERE id = $1`, id); err != nil {
		return school.City{}, trapNoRowsErr(err, school.ErrCityNotFound, "finding city")
	}
	return city, nil
}

func (repo schoolRepository) GetDistrictByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.District, error) {
	var district school.District
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &district,
		`SELECT id, name, region_id FROM district WHERE id = $1`, id); err != nil {
		return school.District{}, trapNoRowsErr(err, school.ErrDistrictNotFound, "finding district")
	}
	return district, nil
}

func (repo schoolRepository) QueryRegions(ctx context.Context, exec ...core.DBExecutor) ([]school.Region, error) {
	var regions []school.Region
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &regions,
		`SELECT id, name FROM region ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "querying regions")
	}
	return regions, nil
}

func (repo schoolRepository) QueryCities(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]school.City, error) {
	var cities []school.City
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &cities,
		`SELECT id, name, region_id FROM city WHERE region_id = $1 ORDER BY name`, regionID); err != nil {
		return nil, errors.Wrap(err, "querying cities")
	}
	return cities, nil
}

func (repo schoolRepository) QueryDistricts(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]school.District, error) {
	var districts []school.District
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &districts,
		`SELECT id, name, region_id FROM district WHERE region_id = $1 ORDER BY name`, regionID); err != nil {
		return nil, errors.Wrap(err, "querying districts")
	}
	return districts, nil
}

const schoolColumns = `id, name, address, region_id, city_id, district_id, latitude, longitude, radius, policy_id, created_at, updated_at`

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.ID = uuid.New().String()

	const q = `INSERT INTO school (id, name, address, region_id, city_id, district_id, latitude, longitude, radius, policy_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		sch.ID, sch.Name, sch.Address, sch.RegionID, sch.CityID, sch.DistrictID,
		sch.Latitude, sch.Longitude, sch.Radius, sch.PolicyID, sch.CreatedAt, sch.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "school_name_district_id_key") {
			return school.School{}, school.ErrNameExists
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchoolByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.School{}, school.ErrNotFound
	}
	var sch school.School
	const q = `SELECT ` + schoolColumns + ` FROM school WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &sch, q, id); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "finding school")
	}
	return sch, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, exec ...core.DBExecutor) ([]school.School, error) {
	q := `SELECT ` + schoolColumns + ` FROM school WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		q += ` AND name ILIKE ` + arg("%"+filter.Search+"%")
	}
	if filter.RegionID != "" {
		q += ` AND region_id = ` + arg(filter.RegionID)
	}
	if filter.CityID != "" {
		q += ` AND city_id = ` + arg(filter.CityID)
	}
	if filter.DistrictID != "" {
		q += ` AND district_id = ` + arg(filter.DistrictID)
	}
	q += ` ORDER BY name`

	var schools []school.School
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &schools, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	return schools, nil
}

func (repo schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.UpdatedAt = time.Now().UTC()

	const q = `UPDATE school SET name = $2, address = $3, region_id = $4, city_id = $5, district_id = $6,
		latitude = $7, longitude = $8, radius = $9, policy_id = $10, updated_at = $11 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		sch.ID, sch.Name, sch.Address, sch.RegionID, sch.CityID, sch.DistrictID,
		sch.Latitude, sch.Longitude, sch.Radius, sch.PolicyID, sch.UpdatedAt)
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return sch, nil
}

func (repo schoolRepository) CreateHoliday(ctx context.Context, hol school.Holiday, exec ...core.DBExecutor) (school.Holiday, error) {
	hol.ID = uuid.New().String()

	const q = `INSERT INTO holiday (id, school_id, date, name, mode) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, hol.ID, hol.SchoolID, hol.Date, hol.Name, hol.Mode)
	if err != nil {
		if isUniqueViolation(err, "holiday_school_id_date_key") {
			return school.Holiday{}, school.ErrHolidayExists
		}
		return school.Holiday{}, errors.Wrap(err, "inserting holiday")
	}
	return hol, nil
}

func (repo schoolRepository) GetHoliday(ctx context.Context, schoolID, date string, exec ...core.DBExecutor) (school.Holiday, error) {
	var hol school.Holiday
	const q = `SELECT id, school_id, date, name, mode FROM holiday WHERE school_id = $1 AND date = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &hol, q, schoolID, date); err != nil {
		return school.Holiday{}, trapNoRowsErr(err, school.ErrNotFound, "finding holiday")
	}
	return hol, nil
}

func (repo schoolRepository) QueryHolidays(ctx context.Context, schoolID string, year, month int, exec ...core.DBExecutor) ([]school.Holiday, error) {
	var hols []school.Holiday
	const q = `SELECT id, school_id, date, name, mode FROM holiday
		WHERE school_id = $1 AND date LIKE $2 ORDER BY date`
	prefix := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01") + "%"
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &hols, q, schoolID, prefix); err != nil {
		return nil, errors.Wrap(err, "querying holidays")
	}
	return hols, nil
}
