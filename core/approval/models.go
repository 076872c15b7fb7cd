package approval

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

// Request statuses. Pending is the only non-terminal state.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// Request is a student's plea to unblock an app. At most one pending
// request may exist per (user, app); a decided request is immutable.
type Request struct {
	ID          string      `json:"id" db:"id"`
	UserID      string      `json:"user_id" db:"user_id"`
	AppID       string      `json:"app_id" db:"app_id"`
	Reason      string      `json:"reason" db:"reason"`
	Status      string      `json:"status" db:"status"`
	ReviewerID  null.String `json:"reviewer_id" db:"reviewer_id"`
	ReviewBasis null.String `json:"review_basis" db:"review_basis"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ReviewedAt  null.Time   `json:"reviewed_at" db:"reviewed_at"`
}

func (r Request) Closed() bool { return r.Status != StatusPending }

// Log is one immutable audit row; every status transition of a request
// appends exactly one.
type Log struct {
	ID        string      `json:"id" db:"id"`
	RequestID string      `json:"request_id" db:"request_id"`
	StatusWas string      `json:"status_was" db:"status_was"`
	StatusTo  string      `json:"status_to" db:"status_to"`
	AdminID   string      `json:"admin_id" db:"admin_id"`
	Basis     null.String `json:"basis" db:"basis"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

type NewRequest struct {
	AppID  string `json:"app_id" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (nr *NewRequest) Validate() error {
	nr.Reason = core.CleanString(nr.Reason)
	return core.Validate.Struct(nr)
}

// Review carries a decision on a pending request. Basis is the admin's
// justification; ExpiresAt bounds the exception created on approval, empty
// meaning it never lapses.
type Review struct {
	Basis     string     `json:"basis" validate:"omitempty,max=500"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (rv *Review) Validate() error {
	rv.Basis = core.CleanString(rv.Basis)
	return core.Validate.Struct(rv)
}

type QueryFilter struct {
	UserID string `query:"user_id"`
	AppID  string `query:"app_id"`
	Status string `query:"status"`
}
