package device

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// OS is a canonical operating-system row, unique on (name, version).
type OS struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Version   string    `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Device is a physical handset. It references zero or one OS row.
type Device struct {
	ID        string      `json:"id" db:"id"`
	Brand     string      `json:"brand" db:"brand"`
	Model     string      `json:"model" db:"model"`
	OSID      null.String `json:"os_id" db:"os_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// UserDevice ties a device to its owner, unique on (user_id, device_id).
// Deactivation flips IsActive; the row and everything referencing it stays.
type UserDevice struct {
	ID       string    `json:"id" db:"id"`
	UserID   string    `json:"user_id" db:"user_id"`
	DeviceID string    `json:"device_id" db:"device_id"`
	IsActive bool      `json:"is_active" db:"is_active"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`
}

// Setup tracks how far the control agent got on one user device. Created
// with the registration and updated as the agent reports progress.
type Setup struct {
	UserDeviceID  string    `json:"user_device_id" db:"user_device_id"`
	LauncherSet   bool      `json:"launcher_set" db:"launcher_set"`
	AdminGranted  bool      `json:"admin_granted" db:"admin_granted"`
	Accessibility bool      `json:"accessibility" db:"accessibility"`
	Overlay       bool      `json:"overlay" db:"overlay"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

func (s Setup) Complete() bool {
	return s.LauncherSet && s.AdminGranted && s.Accessibility && s.Overlay
}

type NewOS struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

func (no *NewOS) Validate() error {
	no.Name = core.CleanString(no.Name)
	no.Version = core.CleanString(no.Version)
	return core.Validate.Struct(no)
}

type NewDevice struct {
	Brand     string `json:"brand" validate:"required"`
	Model     string `json:"model" validate:"required"`
	OSName    string `json:"os_name" validate:"omitempty"`
	OSVersion string `json:"os_version" validate:"required_with=OSName"`
}

func (nd *NewDevice) Validate() error {
	nd.Brand = core.CleanString(nd.Brand)
	nd.Model = core.CleanString(nd.Model)
	nd.OSName = core.CleanString(nd.OSName)
	nd.OSVersion = core.CleanString(nd.OSVersion)
	return core.Validate.Struct(nd)
}

// SetupPatch updates only the flags it carries.
type SetupPatch struct {
	LauncherSet   *bool `json:"launcher_set"`
	AdminGranted  *bool `json:"admin_granted"`
	Accessibility *bool `json:"accessibility"`
	Overlay       *bool `json:"overlay"`
}
