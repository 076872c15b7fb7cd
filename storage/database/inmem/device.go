package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/device"
)

type deviceRepository struct {
	db *DB
}

var _ device.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(db *DB) *deviceRepository {
	return &deviceRepository{db: db}
}

func (repo *deviceRepository) CreateOS(ctx context.Context, os *device.OS, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.oss {
		if existing.Name == os.Name && existing.Version == os.Version {
			return device.ErrOSExists
		}
	}
	os.ID = uuid.New().String()
	stored := *os
	repo.db.oss[os.ID] = &stored
	return nil
}

func (repo *deviceRepository) GetOS(ctx context.Context, name, version string, exec ...core.DBExecutor) (device.OS, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, os := range repo.db.oss {
		if os.Name == name && os.Version == version {
			return *os, nil
		}
	}
	return device.OS{}, device.ErrOSNotFound
}

func (repo *deviceRepository) QueryOS(ctx context.Context, exec ...core.DBExecutor) ([]device.OS, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	oss := make([]device.OS, 0, len(repo.db.oss))
	for _, os := range repo.db.oss {
		oss = append(oss, *os)
	}
	sort.Slice(oss, func(i, j int) bool {
		if oss[i].Name != oss[j].Name {
			return oss[i].Name < oss[j].Name
		}
		return oss[i].Version < oss[j].Version
	})
	return oss, nil
}

func (repo *deviceRepository) CreateDevice(ctx context.Context, dev *device.Device, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	dev.ID = uuid.New().String()
	stored := *dev
	repo.db.devices[dev.ID] = &stored
	return nil
}

func (repo *deviceRepository) GetDeviceByID(ctx context.Context, id string, exec ...core.DBExecutor) (device.Device, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if dev, ok := repo.db.devices[id]; ok {
		return *dev, nil
	}
	return device.Device{}, device.ErrNotFound
}

func (repo *deviceRepository) CreateUserDevice(ctx context.Context, ud *device.UserDevice, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.userDevices {
		if existing.UserID == ud.UserID && existing.DeviceID == ud.DeviceID {
			return device.ErrDeviceRegistered
		}
	}
	ud.ID = uuid.New().String()
	stored := *ud
	repo.db.userDevices[ud.ID] = &stored
	return nil
}

func (repo *deviceRepository) GetUserDevice(ctx context.Context, id string, exec ...core.DBExecutor) (device.UserDevice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ud, ok := repo.db.userDevices[id]; ok {
		return *ud, nil
	}
	return device.UserDevice{}, device.ErrNotFound
}

func (repo *deviceRepository) QueryUserDevices(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]device.UserDevice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var uds []device.UserDevice
	for _, ud := range repo.db.userDevices {
		if ud.UserID != userID {
			continue
		}
		if activeOnly && !ud.IsActive {
			continue
		}
		uds = append(uds, *ud)
	}
	sort.Slice(uds, func(i, j int) bool { return uds[i].AddedAt.Before(uds[j].AddedAt) })
	return uds, nil
}

func (repo *deviceRepository) UpdateUserDevice(ctx context.Context, ud device.UserDevice, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.userDevices[ud.ID]; !ok {
		return device.ErrNotFound
	}
	stored := ud
	repo.db.userDevices[ud.ID] = &stored
	return nil
}

func (repo *deviceRepository) CreateSetup(ctx context.Context, st *device.Setup, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored := *st
	repo.db.setups[st.UserDeviceID] = &stored
	return nil
}

func (repo *deviceRepository) GetSetup(ctx context.Context, userDeviceID string, exec ...core.DBExecutor) (device.Setup, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if st, ok := repo.db.setups[userDeviceID]; ok {
		return *st, nil
	}
	return device.Setup{}, device.ErrNotFound
}

func (repo *deviceRepository) UpdateSetup(ctx context.Context, st device.Setup, exec ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.setups[st.UserDeviceID]; !ok {
		return device.ErrNotFound
	}
	stored := st
	repo.db.setups[st.UserDeviceID] = &stored
	return nil
}
