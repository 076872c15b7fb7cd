// Package inmemdb implements the core repositories on in-process maps. It
// mirrors the PostgreSQL implementation's uniqueness semantics so service
// tests exercise the same conflict paths.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
)

// DB is the shared in-memory store. It satisfies core.DB with no-op
// executor methods; the repositories never touch SQL and guard the maps
// with the embedded mutex instead.
type DB struct {
	mu sync.RWMutex

	roles           map[string]*user.Role
	users           map[string]*user.User
	studentProfiles map[string]*user.StudentProfile
	parentProfiles  map[string]*user.ParentProfile
	preferences     map[string]*user.Preference

	regions   map[string]*school.Region
	cities    map[string]*school.City
	districts map[string]*school.District
	schools   map[string]*school.School
	holidays  map[string]*school.Holiday

	apps     map[string]*catalog.App
	websites map[string]*catalog.Website
	userApps map[string]*catalog.UserApp

	policies   map[string]*policy.Policy
	entries    map[string]*policy.Entry
	exceptions map[string]*policy.Exception

	requests    map[string]*approval.Request
	requestLogs map[string]*approval.Log

	oss         map[string]*device.OS
	devices     map[string]*device.Device
	userDevices map[string]*device.UserDevice
	setups      map[string]*device.Setup

	actions map[string]*activity.Action
	logs    map[string]*activity.Log
}

var _ core.DB = (*DB)(nil) // interface compliance check

func NewDB() *DB {
	return &DB{
		roles:           make(map[string]*user.Role),
		users:           make(map[string]*user.User),
		studentProfiles: make(map[string]*user.StudentProfile),
		parentProfiles:  make(map[string]*user.ParentProfile),
		preferences:     make(map[string]*user.Preference),
		regions:         make(map[string]*school.Region),
		cities:          make(map[string]*school.City),
		districts:       make(map[string]*school.District),
		schools:         make(map[string]*school.School),
		holidays:        make(map[string]*school.Holiday),
		apps:            make(map[string]*catalog.App),
		websites:        make(map[string]*catalog.Website),
		userApps:        make(map[string]*catalog.UserApp),
		policies:        make(map[string]*policy.Policy),
		entries:         make(map[string]*policy.Entry),
		exceptions:      make(map[string]*policy.Exception),
		requests:        make(map[string]*approval.Request),
		requestLogs:     make(map[string]*approval.Log),
		oss:             make(map[string]*device.OS),
		devices:         make(map[string]*device.Device),
		userDevices:     make(map[string]*device.UserDevice),
		setups:          make(map[string]*device.Setup),
		actions:         make(map[string]*activity.Action),
		logs:            make(map[string]*activity.Log),
	}
}

func (db *DB) Begin(ctx context.Context) (core.DBTransactor, error) {
	return noopTx{db}, nil
}

// noopTx satisfies core.DBTransactor; in-memory writes apply immediately,
// so commit and rollback do nothing.
type noopTx struct{ *DB }

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

// The executor methods below exist only to satisfy core.DBExecutor; the
// in-memory repositories never run SQL.

func (db *DB) DriverName() string       { return "inmem" }
func (db *DB) Rebind(q string) string   { return q }
func (db *DB) BindNamed(q string, arg interface{}) (string, []interface{}, error) {
	return q, nil, nil
}
func (db *DB) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (db *DB) QueryxContext(ctx context.Context, q string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}
func (db *DB) QueryRowxContext(ctx context.Context, q string, args ...interface{}) *sqlx.Row {
	return nil
}
func (db *DB) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
