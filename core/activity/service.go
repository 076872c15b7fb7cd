package activity

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("log not found")
	ErrActionNotFound = errors.New("action not found")
	ErrActionExists   = errors.New("an action with this name already exists")

	// NowFunc stamps new log rows; tests override it.
	NowFunc = time.Now

	topAppsLimit = 5
)

type Repository interface {
	// CreateAction enforces uniqueness over name.
	CreateAction(ctx context.Context, act *Action, exec ...core.DBExecutor) error
	GetActionByID(ctx context.Context, id string, exec ...core.DBExecutor) (Action, error)
	QueryActions(ctx context.Context, exec ...core.DBExecutor) ([]Action, error)

	CreateLog(ctx context.Context, lg *Log, exec ...core.DBExecutor) error
	QueryLogs(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Log, error)
	SumAppMinutes(ctx context.Context, userID, appID string, from, to time.Time, exec ...core.DBExecutor) (int, error)
	TopApps(ctx context.Context, userID string, from, to time.Time, limit int, exec ...core.DBExecutor) ([]AppUsage, error)
}

// DeviceReader checks that a reported device belongs to the reporter.
type DeviceReader interface {
	GetUserDevice(ctx context.Context, userID, userDeviceID string) (device.UserDevice, error)
}

// CatalogReader resolves the installed-app row a usage log points at.
type CatalogReader interface {
	GetUserApp(ctx context.Context, userID, appID string) (catalog.UserApp, error)
}

// RelationReader answers whether a parent is linked to a student.
type RelationReader interface {
	IsParentOf(ctx context.Context, parentID, childID string) (bool, error)
}

type Service struct {
	repo      Repository
	devices   DeviceReader
	cat       CatalogReader
	relations RelationReader
}

func NewService(repo Repository, devices DeviceReader, cat CatalogReader, relations RelationReader) *Service {
	return &Service{repo: repo, devices: devices, cat: cat, relations: relations}
}

func (svc *Service) CreateAction(ctx context.Context, na NewAction) (Action, error) {
	act := Action{Name: na.Name, Degree: na.Degree}
	if err := svc.repo.CreateAction(ctx, &act); err != nil {
		return Action{}, errors.Wrap(err, "creating action")
	}
	return act, nil
}

func (svc *Service) Actions(ctx context.Context) ([]Action, error) {
	acts, err := svc.repo.QueryActions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying actions")
	}
	return acts, nil
}

// Record appends one activity log for usr. The device must belong to usr
// and, when an app is named, be one of usr's installed apps. Logs are never
// updated afterwards.
func (svc *Service) Record(ctx context.Context, usr user.User, nl NewLog) (Log, error) {
	if _, err := svc.devices.GetUserDevice(ctx, usr.ID, nl.UserDeviceID); err != nil {
		return Log{}, errors.Wrap(err, "checking device ownership")
	}
	act, err := svc.repo.GetActionByID(ctx, nl.ActionID)
	if err != nil {
		return Log{}, errors.Wrapf(err, "getting action %s", nl.ActionID)
	}

	lg := Log{
		UserID:       usr.ID,
		UserDeviceID: nl.UserDeviceID,
		ActionID:     act.ID,
		Degree:       act.Degree,
		CreatedAt:    NowFunc().UTC(),
	}
	if nl.AppID != "" {
		ua, err := svc.cat.GetUserApp(ctx, usr.ID, nl.AppID)
		if err != nil {
			return Log{}, errors.Wrap(err, "checking app ownership")
		}
		lg.UserAppID.SetValid(ua.ID)
		lg.AppID.SetValid(nl.AppID)
	}
	if nl.Details != "" {
		lg.Details.SetValid(nl.Details)
	}
	if nl.Minutes > 0 {
		lg.Minutes.SetValid(nl.Minutes)
	}

	if err := svc.repo.CreateLog(ctx, &lg); err != nil {
		return Log{}, errors.Wrap(err, "creating log")
	}
	return lg, nil
}

// Query returns logs visible to viewer. Students see their own, parents
// only their children's, admins anyone's. The scope check runs before any
// data access.
func (svc *Service) Query(ctx context.Context, viewer user.User, filter QueryFilter) ([]Log, error) {
	if err := svc.scope(ctx, viewer, &filter.UserID); err != nil {
		return nil, err
	}
	logs, err := svc.repo.QueryLogs(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying logs")
	}
	return logs, nil
}

// SummaryFor aggregates one user's logs over [from, to): totals per degree
// and the most used apps.
func (svc *Service) SummaryFor(ctx context.Context, viewer user.User, userID string, from, to time.Time) (Summary, error) {
	if err := svc.scope(ctx, viewer, &userID); err != nil {
		return Summary{}, err
	}

	logs, err := svc.repo.QueryLogs(ctx, QueryFilter{UserID: userID, From: from, To: to})
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying logs")
	}
	sum := Summary{
		UserID:   userID,
		From:     from,
		To:       to,
		Total:    len(logs),
		ByDegree: map[string]int{DegreeNormal: 0, DegreeSuspicious: 0, DegreeTerrible: 0},
	}
	for _, lg := range logs {
		sum.ByDegree[lg.Degree]++
	}

	sum.TopApps, err = svc.repo.TopApps(ctx, userID, from, to, topAppsLimit)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying top apps")
	}
	return sum, nil
}

// UsageMinutes sums the minutes userID spent on appID during the calendar
// day containing the given instant. The policy engine meters duration
// budgets with it.
func (svc *Service) UsageMinutes(ctx context.Context, userID, appID string, day time.Time) (int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.Add(24 * time.Hour)
	mins, err := svc.repo.SumAppMinutes(ctx, userID, appID, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "summing app minutes")
	}
	return mins, nil
}

// scope narrows or rejects a read on behalf of viewer, mirroring the
// access table: only admins read unrestricted, parents read their children,
// everyone else is pinned to themselves. An empty target defaults to self.
func (svc *Service) scope(ctx context.Context, viewer user.User, userID *string) error {
	switch {
	case viewer.IsAdmin():
		return nil
	case viewer.IsParent():
		if *userID == "" || *userID == viewer.ID {
			*userID = viewer.ID
			return nil
		}
		ok, err := svc.relations.IsParentOf(ctx, viewer.ID, *userID)
		if err != nil {
			return errors.Wrap(err, "checking parent link")
		}
		if !ok {
			return access.ErrPermissionDenied
		}
		return nil
	default:
		if *userID != "" && *userID != viewer.ID {
			return access.ErrPermissionDenied
		}
		*userID = viewer.ID
		return nil
	}
}
