package approval

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("request not found")
	ErrRequestPending = errors.New("a pending request already exists for this app")
	ErrRequestClosed  = errors.New("request has already been decided")

	// NowFunc stamps transitions; tests override it.
	NowFunc = time.Now
)

type Repository interface {
	// CreateRequest enforces at most one pending row per (user_id, app_id)
	// via a partial unique constraint.
	CreateRequest(ctx context.Context, req *Request, exec ...core.DBExecutor) error
	GetRequestByID(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
	GetPendingRequest(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (Request, error)
	QueryRequests(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Request, error)
	UpdateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) error

	CreateLog(ctx context.Context, lg *Log, exec ...core.DBExecutor) error
	QueryLogs(ctx context.Context, requestID string, exec ...core.DBExecutor) ([]Log, error)
}

// CatalogReader verifies the target app exists before a request is filed.
type CatalogReader interface {
	GetApp(ctx context.Context, id string) (catalog.App, error)
}

// ExceptionGranter turns an approval into an active unblock. The policy
// service implements it; the exec argument keeps the grant inside the
// review transaction.
type ExceptionGranter interface {
	GrantException(ctx context.Context, userID, appID, grantedBy string, expiresAt *time.Time, exec ...core.DBExecutor) (policy.Exception, error)
}

type Service struct {
	db     core.DB
	repo   Repository
	cat    CatalogReader
	grants ExceptionGranter
	mail   core.EmailService
	logger core.Logger
	conf   *core.Config
}

func NewService(db core.DB, repo Repository, cat CatalogReader, grants ExceptionGranter, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{db: db, repo: repo, cat: cat, grants: grants, mail: mailSvc, logger: logger, conf: conf}
}

// Submit files an unblock request for usr. Refused with ErrRequestPending
// while an earlier request for the same app is still undecided; a decided
// one does not stand in the way of a fresh submission.
func (svc *Service) Submit(ctx context.Context, usr user.User, nr NewRequest) (Request, error) {
	app, err := svc.cat.GetApp(ctx, nr.AppID)
	if err != nil {
		return Request{}, errors.Wrapf(err, "getting app %s", nr.AppID)
	}

	if _, err = svc.repo.GetPendingRequest(ctx, usr.ID, nr.AppID); err == nil {
		return Request{}, ErrRequestPending
	} else if errors.Cause(err) != ErrNotFound {
		return Request{}, errors.Wrap(err, "checking pending request")
	}

	req := Request{
		UserID:    usr.ID,
		AppID:     nr.AppID,
		Reason:    nr.Reason,
		Status:    StatusPending,
		CreatedAt: NowFunc().UTC(),
	}
	if err = svc.repo.CreateRequest(ctx, &req); err != nil {
		return Request{}, errors.Wrap(err, "creating request")
	}

	go svc.notifyAdmin(usr, app, req)
	return req, nil
}

// Approve closes a pending request and grants the matching exception, both
// in one transaction.
func (svc *Service) Approve(ctx context.Context, reviewer user.User, requestID string, rv Review) (Request, error) {
	return svc.review(ctx, reviewer, requestID, rv, StatusApproved)
}

// Deny closes a pending request without granting anything.
func (svc *Service) Deny(ctx context.Context, reviewer user.User, requestID string, rv Review) (Request, error) {
	return svc.review(ctx, reviewer, requestID, rv, StatusDenied)
}

func (svc *Service) review(ctx context.Context, reviewer user.User, requestID string, rv Review, status string) (Request, error) {
	req, err := svc.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return Request{}, errors.Wrapf(err, "getting request %s", requestID)
	}
	if req.Closed() {
		return Request{}, ErrRequestClosed
	}

	now := NowFunc().UTC()
	statusWas := req.Status
	req.Status = status
	req.ReviewerID.SetValid(reviewer.ID)
	req.ReviewedAt.SetValid(now)
	if rv.Basis != "" {
		req.ReviewBasis.SetValid(rv.Basis)
	}

	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		if err := svc.repo.UpdateRequest(ctx, req, tx); err != nil {
			return errors.Wrap(err, "updating request")
		}
		lg := Log{
			RequestID: req.ID,
			StatusWas: statusWas,
			StatusTo:  status,
			AdminID:   reviewer.ID,
			CreatedAt: now,
		}
		if rv.Basis != "" {
			lg.Basis.SetValid(rv.Basis)
		}
		if err := svc.repo.CreateLog(ctx, &lg, tx); err != nil {
			return errors.Wrap(err, "logging review")
		}
		if status == StatusApproved {
			_, err := svc.grants.GrantException(ctx, req.UserID, req.AppID, reviewer.ID, rv.ExpiresAt, tx)
			// An exception granted out of band does not void the approval.
			if err != nil && errors.Cause(err) != policy.ErrExceptionExists {
				return errors.Wrap(err, "granting exception")
			}
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Request, error) {
	req, err := svc.repo.GetRequestByID(ctx, id)
	if err != nil {
		return Request{}, errors.Wrapf(err, "getting request %s", id)
	}
	return req, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Request, error) {
	reqs, err := svc.repo.QueryRequests(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	return reqs, nil
}

// Logs returns the request's audit trail, oldest first.
func (svc *Service) Logs(ctx context.Context, requestID string) ([]Log, error) {
	if _, err := svc.repo.GetRequestByID(ctx, requestID); err != nil {
		return nil, errors.Wrapf(err, "getting request %s", requestID)
	}
	logs, err := svc.repo.QueryLogs(ctx, requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying logs of request %s", requestID)
	}
	return logs, nil
}

func (svc *Service) notifyAdmin(usr user.User, app catalog.App, req Request) {
	if svc.conf.AdminEmail == "" {
		return
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: svc.conf.AdminEmail}},
		Subject: fmt.Sprintf("%s | New unblock request", svc.conf.AppName),
		Body: fmt.Sprintf(
			"User %s requested access to %s (%s).\n\nReason: %s\n\nReview it at %s/requests/%s",
			usr.Username, app.Name, app.Package, req.Reason, svc.conf.FrontendBaseURL, req.ID,
		),
	}
	svc.mail.SendMessages(msg)
}
