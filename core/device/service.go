package device

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
)

var (
	// errors
	ErrNotFound         = errors.New("device not found")
	ErrOSNotFound       = errors.New("operating system not found")
	ErrOSExists         = errors.New("an operating system with this name and version already exists")
	ErrDeviceRegistered = errors.New("device is already registered to this user")
)

type Repository interface {
	// CreateOS enforces uniqueness over (name, version).
	CreateOS(ctx context.Context, os *OS, exec ...core.DBExecutor) error
	GetOS(ctx context.Context, name, version string, exec ...core.DBExecutor) (OS, error)
	QueryOS(ctx context.Context, exec ...core.DBExecutor) ([]OS, error)

	CreateDevice(ctx context.Context, dev *Device, exec ...core.DBExecutor) error
	GetDeviceByID(ctx context.Context, id string, exec ...core.DBExecutor) (Device, error)

	// CreateUserDevice enforces uniqueness over (user_id, device_id).
	CreateUserDevice(ctx context.Context, ud *UserDevice, exec ...core.DBExecutor) error
	GetUserDevice(ctx context.Context, id string, exec ...core.DBExecutor) (UserDevice, error)
	QueryUserDevices(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]UserDevice, error)
	UpdateUserDevice(ctx context.Context, ud UserDevice, exec ...core.DBExecutor) error

	CreateSetup(ctx context.Context, st *Setup, exec ...core.DBExecutor) error
	GetSetup(ctx context.Context, userDeviceID string, exec ...core.DBExecutor) (Setup, error)
	UpdateSetup(ctx context.Context, st Setup, exec ...core.DBExecutor) error
}

type Service struct {
	db   core.DB
	repo Repository
}

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// RegisterOS is idempotent on (name, version); a racing duplicate insert
// resolves to the surviving row.
func (svc *Service) RegisterOS(ctx context.Context, no NewOS) (OS, error) {
	if os, err := svc.repo.GetOS(ctx, no.Name, no.Version); err == nil {
		return os, nil
	} else if errors.Cause(err) != ErrOSNotFound {
		return OS{}, errors.Wrap(err, "finding operating system")
	}

	os := OS{Name: no.Name, Version: no.Version, CreatedAt: time.Now().UTC()}
	if err := svc.repo.CreateOS(ctx, &os); err != nil {
		if errors.Cause(err) == ErrOSExists {
			return svc.repo.GetOS(ctx, no.Name, no.Version)
		}
		return OS{}, errors.Wrap(err, "creating operating system")
	}
	return os, nil
}

func (svc *Service) ListOS(ctx context.Context) ([]OS, error) {
	oss, err := svc.repo.QueryOS(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying operating systems")
	}
	return oss, nil
}

// Register records a new handset for userID: the device row, the ownership
// row and a blank setup, all in one transaction.
func (svc *Service) Register(ctx context.Context, userID string, nd NewDevice) (UserDevice, error) {
	dev := Device{Brand: nd.Brand, Model: nd.Model, CreatedAt: time.Now().UTC()}
	if nd.OSName != "" {
		os, err := svc.RegisterOS(ctx, NewOS{Name: nd.OSName, Version: nd.OSVersion})
		if err != nil {
			return UserDevice{}, err
		}
		dev.OSID.SetValid(os.ID)
	}

	var ud UserDevice
	err := core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.repo.CreateDevice(ctx, &dev, tx); err != nil {
			return errors.Wrap(err, "creating device")
		}
		ud = UserDevice{UserID: userID, DeviceID: dev.ID, IsActive: true, AddedAt: dev.CreatedAt}
		if err := svc.repo.CreateUserDevice(ctx, &ud, tx); err != nil {
			return errors.Wrap(err, "creating user device")
		}
		st := Setup{UserDeviceID: ud.ID, UpdatedAt: dev.CreatedAt}
		return errors.Wrap(svc.repo.CreateSetup(ctx, &st, tx), "creating setup")
	})
	if err != nil {
		return UserDevice{}, err
	}
	return ud, nil
}

// Deactivate flips the ownership row off; history referencing it remains.
func (svc *Service) Deactivate(ctx context.Context, userID, userDeviceID string) (UserDevice, error) {
	ud, err := svc.owned(ctx, userID, userDeviceID)
	if err != nil {
		return UserDevice{}, err
	}
	if !ud.IsActive {
		return ud, nil
	}
	ud.IsActive = false
	if err := svc.repo.UpdateUserDevice(ctx, ud); err != nil {
		return UserDevice{}, errors.Wrap(err, "deactivating user device")
	}
	return ud, nil
}

func (svc *Service) MyDevices(ctx context.Context, userID string) ([]UserDevice, error) {
	uds, err := svc.repo.QueryUserDevices(ctx, userID, false)
	if err != nil {
		return nil, errors.Wrapf(err, "querying devices of user %s", userID)
	}
	return uds, nil
}

func (svc *Service) GetUserDevice(ctx context.Context, userID, userDeviceID string) (UserDevice, error) {
	return svc.owned(ctx, userID, userDeviceID)
}

func (svc *Service) GetDevice(ctx context.Context, id string) (Device, error) {
	dev, err := svc.repo.GetDeviceByID(ctx, id)
	if err != nil {
		return Device{}, errors.Wrapf(err, "getting device %s", id)
	}
	return dev, nil
}

func (svc *Service) Setup(ctx context.Context, userID, userDeviceID string) (Setup, error) {
	if _, err := svc.owned(ctx, userID, userDeviceID); err != nil {
		return Setup{}, err
	}
	st, err := svc.repo.GetSetup(ctx, userDeviceID)
	if err != nil {
		return Setup{}, errors.Wrapf(err, "getting setup of user device %s", userDeviceID)
	}
	return st, nil
}

// UpdateSetup applies the agent's progress report to the setup row.
func (svc *Service) UpdateSetup(ctx context.Context, userID, userDeviceID string, patch SetupPatch) (Setup, error) {
	st, err := svc.Setup(ctx, userID, userDeviceID)
	if err != nil {
		return Setup{}, err
	}
	if patch.LauncherSet != nil {
		st.LauncherSet = *patch.LauncherSet
	}
	if patch.AdminGranted != nil {
		st.AdminGranted = *patch.AdminGranted
	}
	if patch.Accessibility != nil {
		st.Accessibility = *patch.Accessibility
	}
	if patch.Overlay != nil {
		st.Overlay = *patch.Overlay
	}
	st.UpdatedAt = time.Now().UTC()
	if err := svc.repo.UpdateSetup(ctx, st); err != nil {
		return Setup{}, errors.Wrap(err, "updating setup")
	}
	return st, nil
}

// owned fetches a user device and hides other users' rows behind not-found.
func (svc *Service) owned(ctx context.Context, userID, userDeviceID string) (UserDevice, error) {
	ud, err := svc.repo.GetUserDevice(ctx, userDeviceID)
	if err != nil {
		return UserDevice{}, errors.Wrapf(err, "getting user device %s", userDeviceID)
	}
	if ud.UserID != userID {
		return UserDevice{}, ErrNotFound
	}
	return ud, nil
}
