package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateRegion(ctx context.Context, region school.Region, exec ...core.DBExecutor) (school.Region, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, r := range repo.db.regions {
		if r.Name == region.Name {
			return school.Region{}, school.ErrNameExists
		}
	}
	region.ID = uuid.New().String()
	stored := region
	repo.db.regions[region.ID] = &stored
	return region, nil
}

func (repo *schoolRepository) CreateCity(ctx context.Context, city school.City, exec ...core.DBExecutor) (school.City, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, c := range repo.db.cities {
		if c.Name == city.Name && c.RegionID == city.RegionID {
			return school.City{}, school.ErrNameExists
		}
	}
	city.ID = uuid.New().String()
	stored := city
	repo.db.cities[city.ID] = &stored
	return city, nil
}

func (repo *schoolRepository) CreateDistrict(ctx context.Context, district school.District, exec ...core.DBExecutor) (school.District, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, d := range repo.db.districts {
		if d.Name == district.Name && d.RegionID == district.RegionID {
			return school.District{}, school.ErrNameExists
		}
	}
	district.ID = uuid.New().String()
	stored := district
	repo.db.districts[district.ID] = &stored
	return district, nil
}

func (repo *schoolRepository) GetRegionByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Region, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if region, ok := repo.db.regions[id]; ok {
		return *region, nil
	}
	return school.Region{}, school.ErrRegionNotFound
}

func (repo *schoolRepository) GetCityByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.City, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if city, ok := repo.db.cities[id]; ok {
		return *city, nil
	}
	return school.City{}, school.ErrCityNotFound
}

func (repo *schoolRepository) GetDistrictByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.District, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if district, ok := repo.db.districts[id]; ok {
		return *district, nil
	}
	return school.District{}, school.ErrDistrictNotFound
}

func (repo *schoolRepository) QueryRegions(ctx context.Context, exec ...core.DBExecutor) ([]school.Region, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	regions := make([]school.Region, 0, len(repo.db.regions))
	for _, region := range repo.db.regions {
		regions = append(regions, *region)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Name < regions[j].Name })
	return regions, nil
}

func (repo *schoolRepository) QueryCities(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]school.City, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var cities []school.City
	for _, city := range repo.db.cities {
		if city.RegionID == regionID {
			cities = append(cities, *city)
		}
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].Name < cities[j].Name })
	return cities, nil
}

func (repo *schoolRepository) QueryDistricts(ctx context.Context, regionID string, exec ...core.DBExecutor) ([]school.District, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var districts []school.District
	for _, district := range repo.db.districts {
		if district.RegionID == regionID {
			districts = append(districts, *district)
		}
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i].Name < districts[j].Name })
	return districts, nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.schools {
		if s.Name == sch.Name && s.DistrictID == sch.DistrictID {
			return school.School{}, school.ErrNameExists
		}
	}
	sch.ID = uuid.New().String()
	stored := sch
	repo.db.schools[sch.ID] = &stored
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sch, ok := repo.db.schools[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) QuerySchools(ctx context.Context, filter school.QueryFilter, exec ...core.DBExecutor) ([]school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var schools []school.School
	for _, sch := range repo.db.schools {
		if filter.Search != "" && !strings.Contains(strings.ToLower(sch.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.RegionID != "" && sch.RegionID != filter.RegionID {
			continue
		}
		if filter.CityID != "" && sch.CityID != filter.CityID {
			continue
		}
		if filter.DistrictID != "" && sch.DistrictID != filter.DistrictID {
			continue
		}
		schools = append(schools, *sch)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schools[sch.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	sch.UpdatedAt = time.Now().UTC()
	stored := sch
	repo.db.schools[sch.ID] = &stored
	return sch, nil
}

func (repo *schoolRepository) CreateHoliday(ctx context.Context, hol school.Holiday, exec ...core.DBExecutor) (school.Holiday, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, h := range repo.db.holidays {
		if h.SchoolID == hol.SchoolID && h.Date == hol.Date {
			return school.Holiday{}, school.ErrHolidayExists
		}
	}
	hol.ID = uuid.New().String()
	stored := hol
	repo.db.holidays[hol.ID] = &stored
	return hol, nil
}

func (repo *schoolRepository) GetHoliday(ctx context.Context, schoolID, date string, exec ...core.DBExecutor) (school.Holiday, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, hol := range repo.db.holidays {
		if hol.SchoolID == schoolID && hol.Date == date {
			return *hol, nil
		}
	}
	return school.Holiday{}, school.ErrNotFound
}

func (repo *schoolRepository) QueryHolidays(ctx context.Context, schoolID string, year, month int, exec ...core.DBExecutor) ([]school.Holiday, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	prefix := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	var hols []school.Holiday
	for _, hol := range repo.db.holidays {
		if hol.SchoolID == schoolID && strings.HasPrefix(hol.Date, prefix) {
			hols = append(hols, *hol)
		}
	}
	sort.Slice(hols, func(i, j int) bool { return hols[i].Date < hols[j].Date })
	return hols, nil
}
