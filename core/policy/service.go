package policy

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("policy not found")
	ErrEntryNotFound   = errors.New("policy entry not found")
	ErrEntryExists     = errors.New("an identical policy entry already exists")
	ErrExceptionExists = errors.New("an active exception already exists for this user and app")

	// NowFunc is the reference clock for request-time resolutions. Tests
	// override it for deterministic schedules and budgets.
	NowFunc = time.Now
)

type Repository interface {
	CreatePolicy(ctx context.Context, pol *Policy, exec ...core.DBExecutor) error
	GetPolicyByID(ctx context.Context, id string, exec ...core.DBExecutor) (Policy, error)
	QueryPolicies(ctx context.Context, exec ...core.DBExecutor) ([]Policy, error)
	QueryPoliciesByRole(ctx context.Context, roleID string, exec ...core.DBExecutor) ([]Policy, error)
	UpdatePolicy(ctx context.Context, pol Policy, exec ...core.DBExecutor) error
	DeletePolicy(ctx context.Context, id string, exec ...core.DBExecutor) error

	// CreateEntry enforces uniqueness over (policy_id, kind, target_id, duration).
	CreateEntry(ctx context.Context, ent *Entry, exec ...core.DBExecutor) error
	GetEntry(ctx context.Context, id string, exec ...core.DBExecutor) (Entry, error)
	QueryEntries(ctx context.Context, policyID string, kind TargetKind, exec ...core.DBExecutor) ([]Entry, error)
	QueryEntriesForTarget(ctx context.Context, policyID string, kind TargetKind, targetID string, exec ...core.DBExecutor) ([]Entry, error)
	DeleteEntry(ctx context.Context, id string, exec ...core.DBExecutor) error

	CreateException(ctx context.Context, exc *Exception, exec ...core.DBExecutor) error
	GetActiveException(ctx context.Context, userID, appID string, at time.Time, exec ...core.DBExecutor) (Exception, error)
	QueryExceptions(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Exception, error)
	ExpireException(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) error
}

// UsageReader reports the minutes a user spent on an app during one day.
// The activity service implements it.
type UsageReader interface {
	UsageMinutes(ctx context.Context, userID, appID string, day time.Time) (int, error)
}

// SchoolReader resolves a school's default policy and calendar.
type SchoolReader interface {
	GetByID(ctx context.Context, id string) (school.School, error)
	HolidayOn(ctx context.Context, schoolID string, day time.Time) (school.Holiday, bool, error)
}

// CatalogReader lists a user's installed apps for block summaries.
type CatalogReader interface {
	InstalledApps(ctx context.Context, userID string) ([]catalog.UserApp, error)
}

type Service struct {
	db      core.DB
	repo    Repository
	usage   UsageReader
	schools SchoolReader
	cat     CatalogReader
	conf    *core.Config
}

func NewService(db core.DB, repo Repository, usage UsageReader, schools SchoolReader, cat CatalogReader, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, usage: usage, schools: schools, cat: cat, conf: conf}
}

// ---------------------------------------------------------------- CRUD

func (svc *Service) Create(ctx context.Context, np NewPolicy) (Policy, error) {
	pol := Policy{
		Name:           np.Name,
		IsWhitelistApp: np.IsWhitelistApp,
		IsWhitelistWeb: np.IsWhitelistWeb,
		TargetRoleID:   np.TargetRoleID,
	}
	if np.BlockStart != "" {
		pol.BlockStart.SetValid(np.BlockStart)
	}
	if np.BlockEnd != "" {
		pol.BlockEnd.SetValid(np.BlockEnd)
	}
	if np.SchoolDays != "" {
		pol.SchoolDays.SetValid(np.SchoolDays)
	}
	if err := svc.repo.CreatePolicy(ctx, &pol); err != nil {
		return Policy{}, errors.Wrap(err, "creating policy")
	}
	return pol, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Policy, error) {
	pol, err := svc.repo.GetPolicyByID(ctx, id)
	if err != nil {
		return Policy{}, errors.Wrapf(err, "getting policy %s", id)
	}
	return pol, nil
}

func (svc *Service) Query(ctx context.Context) ([]Policy, error) {
	pols, err := svc.repo.QueryPolicies(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying policies")
	}
	return pols, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeletePolicy(ctx, id); err != nil {
		return errors.Wrapf(err, "deleting policy %s", id)
	}
	return nil
}

// AddAppEntry attaches an app rule to a policy. Duplicate (policy, app,
// duration) rows are rejected so each tier exists once.
func (svc *Service) AddAppEntry(ctx context.Context, ne NewEntry) (Entry, error) {
	return svc.addEntry(ctx, ne, TargetApp)
}

// AddWebEntry attaches a website rule to a policy.
func (svc *Service) AddWebEntry(ctx context.Context, ne NewEntry) (Entry, error) {
	return svc.addEntry(ctx, ne, TargetWeb)
}

func (svc *Service) addEntry(ctx context.Context, ne NewEntry, kind TargetKind) (Entry, error) {
	if _, err := svc.repo.GetPolicyByID(ctx, ne.PolicyID); err != nil {
		return Entry{}, errors.Wrapf(err, "getting policy %s", ne.PolicyID)
	}
	ent := Entry{PolicyID: ne.PolicyID, Kind: kind, TargetID: ne.TargetID}
	if ne.Duration != nil {
		ent.Duration.SetValid(*ne.Duration)
	}
	if err := svc.repo.CreateEntry(ctx, &ent); err != nil {
		return Entry{}, errors.Wrap(err, "creating policy entry")
	}
	return ent, nil
}

func (svc *Service) RemoveEntry(ctx context.Context, id string) error {
	if err := svc.repo.DeleteEntry(ctx, id); err != nil {
		return errors.Wrapf(err, "deleting policy entry %s", id)
	}
	return nil
}

func (svc *Service) Entries(ctx context.Context, policyID string, kind TargetKind) ([]Entry, error) {
	ents, err := svc.repo.QueryEntries(ctx, policyID, kind)
	if err != nil {
		return nil, errors.Wrapf(err, "querying entries of policy %s", policyID)
	}
	return ents, nil
}

// GrantException records a user-scoped unblock for an app. A still-active
// grant for the same pair is a conflict.
func (svc *Service) GrantException(ctx context.Context, userID, appID, grantedBy string, expiresAt *time.Time, exec ...core.DBExecutor) (Exception, error) {
	now := NowFunc()
	if _, err := svc.repo.GetActiveException(ctx, userID, appID, now, exec...); err == nil {
		return Exception{}, ErrExceptionExists
	} else if errors.Cause(err) != ErrNotFound {
		return Exception{}, errors.Wrap(err, "checking existing exception")
	}

	exc := Exception{UserID: userID, AppID: appID, GrantedBy: grantedBy}
	if expiresAt != nil {
		exc.ExpiresAt.SetValid(*expiresAt)
	}
	if err := svc.repo.CreateException(ctx, &exc, exec...); err != nil {
		return Exception{}, errors.Wrap(err, "creating exception")
	}
	return exc, nil
}

func (svc *Service) Exceptions(ctx context.Context, userID string) ([]Exception, error) {
	excs, err := svc.repo.QueryExceptions(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying exceptions of user %s", userID)
	}
	return excs, nil
}

func (svc *Service) RevokeException(ctx context.Context, id string) error {
	if err := svc.repo.ExpireException(ctx, id, NowFunc()); err != nil {
		return errors.Wrapf(err, "revoking exception %s", id)
	}
	return nil
}

// ---------------------------------------------------------------- engine

// IsBlocked resolves whether usr may open target at instant now. Resolution
// is layered, first match wins:
//
//  1. an active user-scoped exception allows app targets outright;
//  2. no applicable policy falls back to the configured default (open
//     unless PolicyFailClosed);
//  3. the policy's list rules decide: whitelist mode denies unlisted
//     targets and meters listed ones against their daily duration budget,
//     blacklist mode denies listed targets;
//  4. a target the lists allow is still denied inside the policy's
//     school-hours window on a school day, unless the school's calendar
//     marks the day force-allow.
//
// The same (usr, target, now) always yields the same decision; nothing here
// mutates state.
func (svc *Service) IsBlocked(ctx context.Context, usr user.User, target Target, now time.Time) (Decision, error) {
	if target.Kind == TargetApp {
		_, err := svc.repo.GetActiveException(ctx, usr.ID, target.ID, now)
		switch errors.Cause(err) {
		case nil:
			return Decision{Blocked: false, Reason: ReasonException}, nil
		case ErrNotFound:
		default:
			return Decision{}, errors.Wrap(err, "checking exception")
		}
	}

	pol, ok, err := svc.policyFor(ctx, usr)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Blocked: svc.conf.PolicyFailClosed, Reason: ReasonNoPolicy}, nil
	}

	dec, err := svc.resolveLists(ctx, usr, pol, target, now)
	if err != nil {
		return Decision{}, err
	}
	if dec.Blocked {
		return dec, nil
	}

	blocked, err := svc.inSchoolHours(ctx, usr, pol, now)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		return Decision{Blocked: true, Reason: ReasonSchoolHours}, nil
	}
	return dec, nil
}

// policyFor picks the policy targeting the user's role. For a school-scoped
// role the school's assigned default policy wins among candidates.
func (svc *Service) policyFor(ctx context.Context, usr user.User) (Policy, bool, error) {
	pols, err := svc.repo.QueryPoliciesByRole(ctx, usr.RoleID)
	if err != nil {
		return Policy{}, false, errors.Wrap(err, "querying role policies")
	}
	if len(pols) == 0 {
		return Policy{}, false, nil
	}
	if usr.Role.SchoolID.Valid {
		sch, err := svc.schools.GetByID(ctx, usr.Role.SchoolID.String)
		if err != nil {
			return Policy{}, false, errors.Wrap(err, "getting user school")
		}
		if sch.PolicyID.Valid {
			for _, pol := range pols {
				if pol.ID == sch.PolicyID.String {
					return pol, true, nil
				}
			}
		}
	}
	return pols[0], true, nil
}

func (svc *Service) resolveLists(ctx context.Context, usr user.User, pol Policy, target Target, now time.Time) (Decision, error) {
	ents, err := svc.repo.QueryEntriesForTarget(ctx, pol.ID, target.Kind, target.ID)
	if err != nil {
		return Decision{}, errors.Wrap(err, "querying target entries")
	}

	whitelist := pol.IsWhitelistApp
	if target.Kind == TargetWeb {
		whitelist = pol.IsWhitelistWeb
	}

	if !whitelist {
		if len(ents) > 0 {
			return Decision{Blocked: true, Reason: ReasonBlacklisted}, nil
		}
		return Decision{Blocked: false, Reason: ReasonAllowed}, nil
	}

	if len(ents) == 0 {
		return Decision{Blocked: true, Reason: ReasonNotListed}, nil
	}

	// Tiered allowances: the most generous budget applies. A row with no
	// duration lifts metering entirely.
	budget, limited := 0, true
	for _, ent := range ents {
		if !ent.Duration.Valid {
			limited = false
			break
		}
		if b := int(ent.Duration.Int); b > budget {
			budget = b
		}
	}
	if limited && target.Kind == TargetApp {
		used, err := svc.usage.UsageMinutes(ctx, usr.ID, target.ID, now)
		if err != nil {
			return Decision{}, errors.Wrap(err, "reading usage minutes")
		}
		if used >= budget {
			return Decision{Blocked: true, Reason: ReasonBudgetSpent}, nil
		}
	}
	return Decision{Blocked: false, Reason: ReasonWhitelisted}, nil
}

// inSchoolHours reports whether now falls inside the policy's blocking
// window on a school day. A force-allow holiday suspends the window.
func (svc *Service) inSchoolHours(ctx context.Context, usr user.User, pol Policy, now time.Time) (bool, error) {
	if !pol.BlockStart.Valid || !pol.BlockEnd.Valid {
		return false, nil
	}
	if !schoolDay(pol, now) {
		return false, nil
	}
	start, err := clockOn(now, pol.BlockStart.String)
	if err != nil {
		return false, errors.Wrap(err, "parsing block start")
	}
	end, err := clockOn(now, pol.BlockEnd.String)
	if err != nil {
		return false, errors.Wrap(err, "parsing block end")
	}
	if now.Before(start) || !now.Before(end) {
		return false, nil
	}

	if usr.Role.SchoolID.Valid {
		hol, ok, err := svc.schools.HolidayOn(ctx, usr.Role.SchoolID.String, now)
		if err != nil {
			return false, errors.Wrap(err, "checking holiday")
		}
		if ok && hol.Mode == school.HolidayForceAllow {
			return false, nil
		}
	}
	return true, nil
}

// schoolDay checks now's weekday against the policy's school_days digits
// (Mon=1..Sun=7). An empty value means Monday through Friday.
func schoolDay(pol Policy, now time.Time) bool {
	wd := int(now.Weekday())
	if wd == 0 {
		wd = 7
	}
	days := pol.SchoolDays.String
	if !pol.SchoolDays.Valid || days == "" {
		days = "12345"
	}
	for _, d := range days {
		if int(d-'0') == wd {
			return true
		}
	}
	return false
}

func clockOn(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// BlockedApps returns, among the user's installed apps, those currently
// blocked, each with its reason.
func (svc *Service) BlockedApps(ctx context.Context, usr user.User, now time.Time) (map[string]Decision, error) {
	apps, err := svc.cat.InstalledApps(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing installed apps")
	}
	blocked := make(map[string]Decision)
	for _, ua := range apps {
		dec, err := svc.IsBlocked(ctx, usr, AppTarget(ua.AppID), now)
		if err != nil {
			return nil, err
		}
		if dec.Blocked {
			blocked[ua.AppID] = dec
		}
	}
	return blocked, nil
}

// Status summarizes the user's current standing: whether a school-hours
// window is active and which installed apps are blocked right now.
type Status struct {
	At          time.Time           `json:"at"`
	SchoolHours bool                `json:"school_hours"`
	BlockedApps map[string]Decision `json:"blocked_apps"`
}

func (svc *Service) StatusFor(ctx context.Context, usr user.User, now time.Time) (Status, error) {
	st := Status{At: now, BlockedApps: map[string]Decision{}}

	pol, ok, err := svc.policyFor(ctx, usr)
	if err != nil {
		return Status{}, err
	}
	if ok {
		st.SchoolHours, err = svc.inSchoolHours(ctx, usr, pol, now)
		if err != nil {
			return Status{}, err
		}
	}

	st.BlockedApps, err = svc.BlockedApps(ctx, usr, now)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}
