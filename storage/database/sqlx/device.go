package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/device"
)

type deviceRepository struct {
	exec core.DBExecutor
}

var _ device.Repository = (*deviceRepository)(nil) // interface compliance check

func NewDeviceRepository(exec core.DBExecutor) *deviceRepository {
	return &deviceRepository{exec: exec}
}

func (repo deviceRepository) CreateOS(ctx context.Context, os *device.OS, exec ...core.DBExecutor) error {
	os.ID = uuid.New().String()

	const q = `INSERT INTO os (id, name, version, created_at) VALUES ($1, $2, $3, $4)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, os.ID, os.Name, os.Version, os.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "os_name_version_key") {
			return device.ErrOSExists
		}
		return errors.Wrap(err, "inserting OS")
	}
	return nil
}

func (repo deviceRepository) GetOS(ctx context.Context, name, version string, exec ...core.DBExecutor) (device.OS, error) {
	var os device.OS
	const q = `SELECT id, name, version, created_at FROM os WHERE name = $1 AND version = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &os, q, name, version); err != nil {
		return device.OS{}, trapNoRowsErr(err, device.ErrOSNotFound, "finding OS")
	}
	return os, nil
}

func (repo deviceRepository) QueryOS(ctx context.Context, exec ...core.DBExecutor) ([]device.OS, error) {
	var oss []device.OS
	const q = `SELECT id, name, version, created_at FROM os ORDER BY name, version`
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &oss, q); err != nil {
		return nil, errors.Wrap(err, "querying OS")
	}
	return oss, nil
}

func (repo deviceRepository) CreateDevice(ctx context.Context, dev *device.Device, exec ...core.DBExecutor) error {
	dev.ID = uuid.New().String()

	const q = `INSERT INTO device (id, brand, model, os_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, dev.ID, dev.Brand, dev.Model, dev.OSID, dev.CreatedAt)
	return errors.Wrap(err, "inserting device")
}

func (repo deviceRepository) GetDeviceByID(ctx context.Context, id string, exec ...core.DBExecutor) (device.Device, error) {
	if _, err := uuid.Parse(id); err != nil {
		return device.Device{}, device.ErrNotFound
	}
	var dev device.Device
	const q = `SELECT id, brand, model, os_id, created_at FROM device WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &dev, q, id); err != nil {
		return device.Device{}, trapNoRowsErr(err, device.ErrNotFound, "finding device")
	}
	return dev, nil
}

func (repo deviceRepository) CreateUserDevice(ctx context.Context, ud *device.UserDevice, exec ...core.DBExecutor) error {
	ud.ID = uuid.New().String()

	const q = `INSERT INTO user_device (id, user_id, device_id, is_active, added_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, ud.ID, ud.UserID, ud.DeviceID, ud.IsActive, ud.AddedAt)
	if err != nil {
		if isUniqueViolation(err, "user_device_user_id_device_id_key") {
			return device.ErrDeviceRegistered
		}
		return errors.Wrap(err, "inserting user device")
	}
	return nil
}

func (repo deviceRepository) GetUserDevice(ctx context.Context, id string, exec ...core.DBExecutor) (device.UserDevice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return device.UserDevice{}, device.ErrNotFound
	}
	var ud device.UserDevice
	const q = `SELECT id, user_id, device_id, is_active, added_at FROM user_device WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &ud, q, id); err != nil {
		return device.UserDevice{}, trapNoRowsErr(err, device.ErrNotFound, "finding user device")
	}
	return ud, nil
}

func (repo deviceRepository) QueryUserDevices(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]device.UserDevice, error) {
	q := `SELECT id, user_id, device_id, is_active, added_at FROM user_device WHERE user_id = $1`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY added_at`

	var uds []device.UserDevice
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &uds, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user devices")
	}
	return uds, nil
}

func (repo deviceRepository) UpdateUserDevice(ctx context.Context, ud device.UserDevice, exec ...core.DBExecutor) error {
	const q = `UPDATE user_device SET is_active = $2 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q, ud.ID, ud.IsActive)
	if err != nil {
		return errors.Wrap(err, "updating user device")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return device.ErrNotFound
	}
	return nil
}

func (repo deviceRepository) CreateSetup(ctx context.Context, st *device.Setup, exec ...core.DBExecutor) error {
	const q = `INSERT INTO device_setup (user_device_id, launcher_set, admin_granted, accessibility, overlay, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		st.UserDeviceID, st.LauncherSet, st.AdminGranted, st.Accessibility, st.Overlay, st.UpdatedAt)
	return errors.Wrap(err, "inserting setup")
}

func (repo deviceRepository) GetSetup(ctx context.Context, userDeviceID string, exec ...core.DBExecutor) (device.Setup, error) {
	var st device.Setup
	const q = `SELECT user_device_id, launcher_set, admin_granted, accessibility, overlay, updated_at
		FROM device_setup WHERE user_device_id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &st, q, userDeviceID); err != nil {
		return device.Setup{}, trapNoRowsErr(err, device.ErrNotFound, "finding setup")
	}
	return st, nil
}

func (repo deviceRepository) UpdateSetup(ctx context.Context, st device.Setup, exec ...core.DBExecutor) error {
	const q = `UPDATE device_setup SET launcher_set = $2, admin_granted = $3, accessibility = $4,
		overlay = $5, updated_at = $6 WHERE user_device_id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		st.UserDeviceID, st.LauncherSet, st.AdminGranted, st.Accessibility, st.Overlay, st.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "updating setup")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return device.ErrNotFound
	}
	return nil
}
